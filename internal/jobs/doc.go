// Package jobs implements the job ledger: a database-backed mutual
// exclusion lock and state machine for long-running operations.
//
// For each job type at most one job may be in a non-terminal state.
// The state machine is PENDING -> RUNNING -> {COMPLETED, FAILED},
// RUNNING <-> PAUSED, and {PENDING, RUNNING, PAUSED} -> CANCELLING ->
// CANCELLED. Cancellation is cooperative: Cancel only marks the row,
// and the worker observes it at its next checkpoint.
package jobs
