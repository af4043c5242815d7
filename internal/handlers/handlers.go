package handlers

import (
	"time"

	"gallery-sync/internal/database"
	"gallery-sync/internal/ingest"
	"gallery-sync/internal/jobs"
	"gallery-sync/internal/scanner"
	"gallery-sync/internal/startup"
)

// Handlers carries the explicitly constructed service instances the
// HTTP layer dispatches into.
type Handlers struct {
	db              *database.Database
	ledger          *jobs.Ledger
	scanner         *scanner.Scanner
	ingestor        *ingest.Ingestor
	persistInterval time.Duration
	startTime       time.Time
}

// New creates the handler set.
func New(db *database.Database, ledger *jobs.Ledger, scan *scanner.Scanner, ing *ingest.Ingestor, config *startup.Config) *Handlers {
	return &Handlers{
		db:              db,
		ledger:          ledger,
		scanner:         scan,
		ingestor:        ing,
		persistInterval: config.ProgressPersistInterval,
		startTime:       time.Now(),
	}
}
