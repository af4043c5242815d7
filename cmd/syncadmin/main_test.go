package main

import (
	"context"
	"path/filepath"
	"testing"

	"gallery-sync/internal/database"
	"gallery-sync/internal/jobs"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPrintUsage(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("printUsage panicked: %v", r)
		}
	}()
	printUsage()
}

func TestShowStatsEmptyCatalog(t *testing.T) {
	db := setupTestDB(t)
	if !showStats(context.Background(), db) {
		t.Error("showStats failed on empty catalog")
	}
}

func TestListJobsEmpty(t *testing.T) {
	db := setupTestDB(t)
	if !listJobs(context.Background(), db) {
		t.Error("listJobs failed on empty ledger")
	}
}

func TestRecoverJobs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ledger := jobs.NewLedger(db)
	job, err := ledger.Create(ctx, jobs.TypeScan)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !recoverJobs(ctx, db) {
		t.Fatal("recoverJobs failed")
	}

	got, err := ledger.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != jobs.StatusFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
}
