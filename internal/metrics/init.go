package metrics

// InitializeMetrics pre-populates expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, jobType := range []string{"SCAN", "MIGRATION", "REFILL_META_SOURCE"} {
		JobsStartedTotal.WithLabelValues(jobType)
		JobConflictsTotal.WithLabelValues(jobType)
		JobsActive.WithLabelValues(jobType)
		for _, status := range []string{"COMPLETED", "FAILED", "CANCELLED"} {
			JobsFinishedTotal.WithLabelValues(jobType, status)
		}
	}

	for _, outcome := range []string{"new", "updated", "skipped", "removed", "conflict"} {
		ScanArtworksProcessed.WithLabelValues(outcome)
	}

	for _, outcome := range []string{"success", "rollback"} {
		IngestRunsTotal.WithLabelValues(outcome)
	}

	for _, event := range []string{"connection", "progress", "complete", "error", "cancelled", "heartbeat"} {
		ProgressEventsTotal.WithLabelValues(event)
	}

	for _, op := range []string{"initialize_schema", "create_job", "update_job", "get_job",
		"upsert_artist", "upsert_artwork", "replace_images", "list_summaries", "cleanup_missing"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}
}
