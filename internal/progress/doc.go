// Package progress streams job progress as server-sent events while
// throttling the persistence of the same progress into the job ledger.
package progress
