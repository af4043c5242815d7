package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_sync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sync_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_sync_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_sync_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sync_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Job ledger metrics
var (
	JobsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_jobs_started_total",
			Help: "Total number of jobs started, by type",
		},
		[]string{"type"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal state, by type and status",
		},
		[]string{"type", "status"},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_sync_jobs_active",
			Help: "Number of jobs currently in a non-terminal state, by type",
		},
		[]string{"type"},
	)

	JobConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_job_conflicts_total",
			Help: "Job creation attempts refused because a job of the same type was active",
		},
		[]string{"type"},
	)
)

// Scanner metrics
var (
	ScanIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sync_scan_running",
			Help: "Whether a scan is currently running (1) or not (0)",
		},
	)

	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_sync_scan_runs_total",
			Help: "Total number of scan runs",
		},
	)

	ScanErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_sync_scan_errors_total",
			Help: "Total number of per-directory errors encountered while scanning",
		},
	)

	ScanArtworksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_scan_artworks_processed_total",
			Help: "Artworks processed by scans, by outcome",
		},
		[]string{"outcome"}, // "new", "updated", "skipped", "removed", "conflict"
	)

	ScanLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sync_scan_last_run_duration_seconds",
			Help: "Duration of the last completed scan",
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sync_scan_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed scan",
		},
	)
)

// Ingestion metrics
var (
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_ingest_runs_total",
			Help: "Total number of media replacement runs, by outcome",
		},
		[]string{"outcome"}, // "success", "rollback"
	)

	IngestFilesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_sync_ingest_files_written_total",
			Help: "Total number of media files written by ingestion",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_sync_ingest_duration_seconds",
			Help:    "Duration of media replacement runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	IngestBackupCleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_sync_ingest_backup_cleanup_failures_total",
			Help: "Best-effort backup directory removals that failed after retries",
		},
	)
)

// Progress streaming metrics
var (
	ProgressEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sync_progress_events_total",
			Help: "Progress stream events emitted, by event type",
		},
		[]string{"event"},
	)

	ProgressCheckpointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_sync_progress_checkpoints_total",
			Help: "Throttled progress writes persisted into the job ledger",
		},
	)
)
