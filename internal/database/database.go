package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"gallery-sync/internal/logging"
	"gallery-sync/internal/metrics"
)

// Default timeout for single database operations
const defaultTimeout = 5 * time.Second

// Database manages all catalog storage for the sync engine.
type Database struct {
	db     *sql.DB
	dbPath string
}

// Batch is an open batch transaction. It carries its start time so that
// EndBatch can record transaction duration metrics.
type Batch struct {
	Tx    *sql.Tx
	start time.Time
}

// New opens (or creates) the catalog database at dbPath.
// The parent directory must already exist and be writable; use
// startup.LoadConfig to validate directories before calling this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Catalog database path: %s", dbPath)

	// WAL keeps readers unblocked during scan batches; busy_timeout
	// prevents "database is locked" errors under concurrent writers.
	// _foreign_keys must ride on the DSN so every pooled connection
	// enforces cascades, not just the one a PRAGMA happened to run on.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Catalog database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	schema := `
	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS artworks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		artist_id INTEGER NOT NULL,
		image_count INTEGER NOT NULL DEFAULT 0,
		meta_source TEXT NOT NULL DEFAULT '',
		directory_created_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (artist_id) REFERENCES artists(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_artworks_artist ON artworks(artist_id);
	CREATE INDEX IF NOT EXISTS idx_artworks_external ON artworks(external_id);

	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artwork_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (artwork_id) REFERENCES artworks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_images_artwork ON images(artwork_id, sort_order);

	CREATE TABLE IF NOT EXISTS artwork_tags (
		artwork_id INTEGER NOT NULL,
		tag TEXT NOT NULL,
		FOREIGN KEY (artwork_id) REFERENCES artworks(id) ON DELETE CASCADE,
		UNIQUE(artwork_id, tag)
	);

	CREATE INDEX IF NOT EXISTS idx_artwork_tags_tag ON artwork_tags(tag);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		result TEXT,
		error TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_type_status ON jobs(type, status);
	`

	_, err := d.db.ExecContext(ctx, schema)
	recordQuery("initialize_schema", start, err)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Conn exposes the underlying handle for components that own their own
// table (the job ledger). Catalog tables are accessed through the typed
// methods on Database only.
func (d *Database) Conn() *sql.DB {
	return d.db
}

// BeginBatch starts a transaction for batched catalog writes.
// The caller must finish it with EndBatch.
func (d *Database) BeginBatch() (*Batch, error) {
	// Background context: the batch lifetime is governed by EndBatch,
	// not a per-operation timeout.
	tx, err := d.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	return &Batch{Tx: tx, start: time.Now()}, nil
}

// EndBatch commits the batch, or rolls it back when err is non-nil.
// The original error is returned (joined with the rollback error if
// rollback also failed).
func (d *Database) EndBatch(b *Batch, err error) error {
	duration := time.Since(b.start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := b.Tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return b.Tx.Commit()
}

// UpdateDBMetrics refreshes database connection gauges.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
