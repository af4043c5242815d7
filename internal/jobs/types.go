package jobs

import (
	"encoding/json"
	"time"
)

// Type identifies a kind of long-running job. At most one job of each
// type may be active at a time.
type Type string

const (
	// TypeScan is a library directory scan.
	TypeScan Type = "SCAN"
	// TypeMigration is a catalog path normalization pass.
	TypeMigration Type = "MIGRATION"
	// TypeRefillMetaSource back-fills sidecar paths for artworks that
	// have one on disk but none recorded.
	TypeRefillMetaSource Type = "REFILL_META_SOURCE"
)

// Status is a job lifecycle state.
type Status string

const (
	// StatusPending means the job is created but not yet picked up.
	StatusPending Status = "PENDING"
	// StatusRunning means the job is executing.
	StatusRunning Status = "RUNNING"
	// StatusPaused means the job is suspended and can be resumed.
	StatusPaused Status = "PAUSED"
	// StatusCancelling means cancellation was requested and the worker
	// has not yet observed it.
	StatusCancelling Status = "CANCELLING"
	// StatusCompleted is the successful terminal state.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed is the error terminal state.
	StatusFailed Status = "FAILED"
	// StatusCancelled is the terminal state after a worker observed a
	// cancellation request.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is one of the three end states.
// Every non-terminal status counts as "active" for mutual exclusion.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one row of the job ledger.
type Job struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Status    Status          `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ScanSummary is the typed result payload of SCAN jobs.
type ScanSummary struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// MigrationSummary is the typed result payload of MIGRATION jobs.
type MigrationSummary struct {
	Rewritten int `json:"rewritten"`
	Examined  int `json:"examined"`
}

// RefillSummary is the typed result payload of REFILL_META_SOURCE jobs.
type RefillSummary struct {
	Filled   int `json:"filled"`
	Examined int `json:"examined"`
}

// ScanResult decodes the job's result payload as a ScanSummary.
func (j *Job) ScanResult() (*ScanSummary, error) {
	if j.Result == nil {
		return nil, nil
	}
	var s ScanSummary
	if err := json.Unmarshal(j.Result, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
