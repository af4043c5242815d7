package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gallery-sync/internal/jobs"
	"gallery-sync/internal/logging"
	"gallery-sync/internal/progress"
	"gallery-sync/internal/scanner"
)

type scanRequest struct {
	Type  string   `json:"type"` // "full" or "list"
	Paths []string `json:"paths,omitempty"`
	Force bool     `json:"force,omitempty"`
}

// StartScan initiates a library scan and streams its progress as
// server-sent events until the job reaches a terminal state.
func (h *Handlers) StartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var opts scanner.Options
	switch req.Type {
	case "", "full":
	case "list":
		if len(req.Paths) == 0 {
			writeJSONError(w, "a list scan requires a non-empty paths array", http.StatusBadRequest)
			return
		}
		opts.RestrictToPaths = req.Paths
	default:
		writeJSONError(w, "scan type must be \"full\" or \"list\"", http.StatusBadRequest)
		return
	}
	opts.ForceUpdate = req.Force

	h.streamJob(w, r, jobs.TypeScan, func(onProgress scanner.ProgressFunc, checkCancelled scanner.CancelFunc) (interface{}, error) {
		result, err := h.scanner.Scan(context.Background(), opts, onProgress, checkCancelled)
		if err != nil {
			return nil, err
		}
		return &jobs.ScanSummary{
			New:     result.New,
			Updated: result.Updated,
			Removed: result.Removed,
			Skipped: result.Skipped,
			Errors:  result.Errors,
		}, nil
	})
}

// StartMigration initiates a catalog path migration job.
func (h *Handlers) StartMigration(w http.ResponseWriter, r *http.Request) {
	h.streamJob(w, r, jobs.TypeMigration, func(onProgress scanner.ProgressFunc, checkCancelled scanner.CancelFunc) (interface{}, error) {
		return h.scanner.MigrateImagePaths(context.Background(), onProgress, checkCancelled)
	})
}

// StartRefillMetaSource initiates a sidecar path refill job.
func (h *Handlers) StartRefillMetaSource(w http.ResponseWriter, r *http.Request) {
	h.streamJob(w, r, jobs.TypeRefillMetaSource, func(onProgress scanner.ProgressFunc, checkCancelled scanner.CancelFunc) (interface{}, error) {
		return h.scanner.RefillMetaSource(context.Background(), onProgress, checkCancelled)
	})
}

// streamJob creates a job of the given type, runs it in the background,
// and relays its progress over an SSE stream. The handler blocks until
// the job reaches a terminal state even if the client disconnects, so
// the job's ledger row always gets its terminal transition.
func (h *Handlers) streamJob(w http.ResponseWriter, r *http.Request, jobType jobs.Type,
	run func(scanner.ProgressFunc, scanner.CancelFunc) (interface{}, error)) {

	job, err := h.ledger.Create(r.Context(), jobType)
	if err != nil {
		if errors.Is(err, jobs.ErrConflict) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSONError(w, "failed to create job", http.StatusInternalServerError)
		return
	}

	ch := progress.NewChannel(r.Context(), w, h.ledger, job.ID, h.persistInterval)
	defer ch.Close()

	onProgress := func(p scanner.Progress) {
		ch.Progress(string(p.Phase), p.Message, p.Current, p.Total, p.Percentage, p.ETASeconds)
	}
	checkCancelled := func() bool {
		return h.ledger.CancelRequested(context.Background(), job.ID)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		result, err := run(onProgress, checkCancelled)
		switch {
		case err == nil:
			if ledgerErr := h.ledger.Complete(context.Background(), job.ID, result); ledgerErr != nil {
				logging.Error("failed to complete job %s: %v", job.ID, ledgerErr)
			}
			ch.Complete(result)
		case errors.Is(err, jobs.ErrCancelled):
			if ledgerErr := h.ledger.MarkCancelled(context.Background(), job.ID); ledgerErr != nil {
				logging.Error("failed to mark job %s cancelled: %v", job.ID, ledgerErr)
			}
			ch.Cancelled()
		default:
			logging.Error("Job %s (%s) failed: %v", job.ID, jobType, err)
			if ledgerErr := h.ledger.Fail(context.Background(), job.ID, err); ledgerErr != nil {
				logging.Error("failed to mark job %s failed: %v", job.ID, ledgerErr)
			}
			ch.Fail(err)
		}
	}()

	<-done
}
