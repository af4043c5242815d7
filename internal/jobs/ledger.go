package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gallery-sync/internal/database"
	"gallery-sync/internal/logging"
	"gallery-sync/internal/metrics"
)

// Sentinel errors for ledger operations.
var (
	// ErrConflict indicates another job of the same type is active.
	ErrConflict = errors.New("job already in progress")

	// ErrCancelled indicates cooperative cancellation was observed.
	ErrCancelled = errors.New("job cancelled")

	// ErrNotFound indicates the job id does not exist.
	ErrNotFound = errors.New("job not found")
)

const opTimeout = 5 * time.Second

// Ledger is the database-backed mutual-exclusion lock and state machine
// for long-running jobs. It owns the jobs table; workers poll it for
// cancellation and callers poll it for status, so job state survives
// client disconnects.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a Ledger on the catalog database.
func NewLedger(db *database.Database) *Ledger {
	return &Ledger{db: db.Conn()}
}

// Create inserts a new RUNNING job of the given type. The existence
// check and the insert run in one transaction: if any job of this type
// is in a non-terminal state the call fails with ErrConflict.
func (l *Ledger) Create(ctx context.Context, jobType Type) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin job transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE type = ? AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
	`, jobType).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}

	if active > 0 {
		metrics.JobConflictsTotal.WithLabelValues(string(jobType)).Inc()
		return nil, fmt.Errorf("%s: %w", jobType, ErrConflict)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, progress, message, created_at, updated_at)
		VALUES (?, ?, ?, 0, '', ?, ?)
	`, job.ID, job.Type, job.Status, job.CreatedAt.Unix(), job.UpdatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job creation: %w", err)
	}

	metrics.JobsStartedTotal.WithLabelValues(string(jobType)).Inc()
	metrics.JobsActive.WithLabelValues(string(jobType)).Inc()
	logging.Info("Job %s (%s) created", job.ID, job.Type)
	return job, nil
}

// UpdateProgress records progress for an active job. If cancellation
// has been requested it fails with ErrCancelled so the worker can wind
// down. A write against a job that already reached a terminal state is
// a silent no-op: late writes must never resurrect a finished job.
func (l *Ledger) UpdateProgress(ctx context.Context, id string, percent int, message string) error {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := l.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, message = ?, updated_at = strftime('%s', 'now')
		WHERE id = ? AND status IN ('PENDING', 'RUNNING', 'PAUSED')
	`, percent, message, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// No active row matched: cancelling, terminal, or missing.
	status, err := l.status(ctx, id)
	if err != nil {
		return err
	}
	if status == StatusCancelling {
		return ErrCancelled
	}
	return nil
}

// Complete transitions a job to COMPLETED with the given result payload.
func (l *Ledger) Complete(ctx context.Context, id string, result interface{}) error {
	var payload []byte
	if result != nil {
		var err error
		payload, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
	}

	return l.finish(ctx, id, StatusCompleted, `
		UPDATE jobs SET status = ?, progress = 100, result = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, StatusCompleted, nullable(payload), id)
}

// Fail transitions a job to FAILED carrying the error message.
func (l *Ledger) Fail(ctx context.Context, id string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return l.finish(ctx, id, StatusFailed, `
		UPDATE jobs SET status = ?, error = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, StatusFailed, msg, id)
}

// MarkCancelled transitions a job to CANCELLED. Workers call this once
// they have observed a cancellation request and stopped.
func (l *Ledger) MarkCancelled(ctx context.Context, id string) error {
	return l.finish(ctx, id, StatusCancelled, `
		UPDATE jobs SET status = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, StatusCancelled, id)
}

func (l *Ledger) finish(ctx context.Context, id string, status Status, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	job, err := l.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}

	metrics.JobsActive.WithLabelValues(string(job.Type)).Dec()
	metrics.JobsFinishedTotal.WithLabelValues(string(job.Type), string(status)).Inc()
	logging.Info("Job %s (%s) -> %s", id, job.Type, status)
	return nil
}

// Cancel requests cooperative cancellation. Allowed only from PENDING,
// RUNNING, or PAUSED; the worker observes CANCELLING at its next
// checkpoint and winds down on its own schedule. Cancelling a job that
// is already CANCELLING is a no-op; cancelling a terminal job fails.
func (l *Ledger) Cancel(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := l.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'CANCELLING', updated_at = strftime('%s', 'now')
		WHERE id = ? AND status IN ('PENDING', 'RUNNING', 'PAUSED')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		logging.Info("Job %s cancellation requested", id)
		return nil
	}

	status, err := l.status(ctx, id)
	if err != nil {
		return err
	}
	if status == StatusCancelling {
		return nil
	}
	return fmt.Errorf("cannot cancel job in status %s: %w", status, ErrConflict)
}

// Pause suspends a PENDING or RUNNING job. Any other state is a no-op.
func (l *Ledger) Pause(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusPaused, "PENDING", "RUNNING")
}

// Resume moves a PAUSED job back to RUNNING. Any other state is a no-op.
func (l *Ledger) Resume(ctx context.Context, id string) error {
	return l.transition(ctx, id, StatusRunning, "PAUSED")
}

func (l *Ledger) transition(ctx context.Context, id string, to Status, from ...string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	placeholders := ""
	args := []interface{}{to, id}
	for i, s := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, s)
	}

	result, err := l.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, updated_at = strftime('%s', 'now') WHERE id = ? AND status IN ("+placeholders+")",
		args...)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		logging.Info("Job %s -> %s", id, to)
	}
	return nil
}

// CancelActive requests cancellation of every job that is still in an
// active state. Used during graceful shutdown; workers observe the
// CANCELLING status at their next checkpoint.
func (l *Ledger) CancelActive(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := l.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'CANCELLING', updated_at = strftime('%s', 'now')
		WHERE status IN ('PENDING', 'RUNNING', 'PAUSED')
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel active jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// RecoverInterrupted marks jobs left in a non-terminal state by a
// previous process as FAILED. Called once at startup, before any new
// job can be created, so a crashed run never blocks its job type.
func (l *Ledger) RecoverInterrupted(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := l.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'FAILED', error = 'interrupted by restart',
			updated_at = strftime('%s', 'now')
		WHERE status IN ('PENDING', 'RUNNING', 'PAUSED', 'CANCELLING')
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// CancelRequested reports whether cancellation has been requested for
// the job. Workers poll this between units of work.
func (l *Ledger) CancelRequested(ctx context.Context, id string) bool {
	status, err := l.status(ctx, id)
	if err != nil {
		logging.Warn("failed to poll cancellation for job %s: %v", id, err)
		return false
	}
	return status == StatusCancelling
}

// Get retrieves one job by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := l.db.QueryRowContext(ctx, `
		SELECT id, type, status, progress, message, result, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// List returns jobs, newest first, optionally filtered by type.
func (l *Ledger) List(ctx context.Context, jobType Type) ([]*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, type, status, progress, message, result, error, created_at, updated_at
		FROM jobs`
	var args []interface{}
	if jobType != "" {
		query += " WHERE type = ?"
		args = append(args, jobType)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (l *Ledger) status(ctx context.Context, id string) (Status, error) {
	var status Status
	err := l.db.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var result, errMsg sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&job.ID, &job.Type, &job.Status, &job.Progress, &job.Message,
		&result, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.Error = errMsg.String
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	return &job, nil
}

func nullable(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
