package ingest

import (
	"os"
	"time"

	"gallery-sync/internal/logging"
	"gallery-sync/internal/metrics"
)

const (
	cleanupRetries        = 3
	cleanupInitialBackoff = 100 * time.Millisecond
	cleanupMaxBackoff     = 2 * time.Second
)

// removeBackup deletes a backup directory after a successful replace.
// Removal is best-effort: the media set and catalog are already
// consistent, so a leftover backup costs disk space, not correctness.
// Failures are logged and counted, never surfaced to the caller.
func removeBackup(backupDir string) {
	var lastErr error
	backoff := cleanupInitialBackoff

	for attempt := 0; attempt <= cleanupRetries; attempt++ {
		if err := os.RemoveAll(backupDir); err == nil {
			if attempt > 0 {
				logging.Info("Backup cleanup succeeded on retry %d for %s", attempt, backupDir)
			}
			logging.Debug("Removed backup directory %s", backupDir)
			return
		} else {
			lastErr = err
		}

		if attempt < cleanupRetries {
			logging.Debug("Backup cleanup failed for %s, retrying in %v (attempt %d/%d)",
				backupDir, backoff, attempt+1, cleanupRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > cleanupMaxBackoff {
				backoff = cleanupMaxBackoff
			}
		}
	}

	logging.Warn("Failed to remove backup directory %s after %d retries: %v",
		backupDir, cleanupRetries, lastErr)
	metrics.IngestBackupCleanupFailures.Inc()
}
