package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gallery-sync/internal/database"
	"gallery-sync/internal/handlers"
	"gallery-sync/internal/ingest"
	"gallery-sync/internal/jobs"
	"gallery-sync/internal/logging"
	"gallery-sync/internal/metrics"
	"gallery-sync/internal/middleware"
	"gallery-sync/internal/scanner"
	"gallery-sync/internal/startup"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	logging.Info("Database ready in %v", time.Since(dbStart).Round(time.Millisecond))

	metrics.InitializeMetrics()

	// Initialize the job ledger and fail any jobs a previous process
	// left behind, so stale rows never block new submissions.
	ledger := jobs.NewLedger(db)
	if n, err := ledger.RecoverInterrupted(context.Background()); err != nil {
		startup.LogFatal("Failed to recover interrupted jobs: %v", err)
	} else if n > 0 {
		logging.Warn("Marked %d interrupted job(s) as failed", n)
	}

	// Initialize scanner and ingestor
	scan := scanner.New(db, config.LibraryDir, scanner.Config{
		BatchSize:     config.ScanBatchSize,
		RemoveMissing: config.ScanRemoveMissing,
	})
	ing := ingest.New(db, config.LibraryDir)

	// Initialize handlers
	h := handlers.New(db, ledger, scan, ing, config)

	// Setup router
	router := setupRouter(h)
	startup.LogHTTPRoutes(router)

	// Apply logging and metrics middleware
	loggedHandler := middleware.Logger(middleware.LoggingConfig{
		LogHealthChecks: config.LogHealthChecks,
	})(router)
	handler := middleware.Metrics()(loggedHandler)

	// Create server. WriteTimeout stays 0 because job submissions hold
	// the response open as a server-sent event stream.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Serve Prometheus metrics on a separate listener
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:        ":" + config.MetricsPort,
			Handler:     metricsMux,
			ReadTimeout: 15 * time.Second,
		}
		go func() {
			logging.Info("Metrics listening on :%s", config.MetricsPort)
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, ledger)

	// Start server
	startup.LogServerStarted(config.Port, time.Since(startTime))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Job submission routes (each streams progress as SSE)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scan", h.StartScan).Methods("POST")
	api.HandleFunc("/maintenance/migrate-paths", h.StartMigration).Methods("POST")
	api.HandleFunc("/maintenance/refill-meta-source", h.StartRefillMetaSource).Methods("POST")

	// Job lifecycle routes
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/pause", h.PauseJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/resume", h.ResumeJob).Methods("POST")

	// Media replacement
	api.HandleFunc("/artworks/{id}/media", h.ReplaceMedia).Methods("PUT")

	return r
}

func handleShutdown(srv, metricsSrv *http.Server, ledger *jobs.Ledger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Request cancellation of running jobs first; their handlers hold
	// open SSE responses that Shutdown waits for.
	startup.LogShutdownStep("Cancelling active jobs")
	if n, err := ledger.CancelActive(ctx); err != nil {
		logging.Warn("Failed to cancel active jobs: %v", err)
	} else if n > 0 {
		logging.Info("  Requested cancellation of %d job(s)", n)
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownComplete()
}
