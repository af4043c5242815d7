package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"gallery-sync/internal/database"
	"gallery-sync/internal/jobs"
)

const defaultDatabaseDir = "/database"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "catalog.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open catalog: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close catalog: %v\n", err)
		}
	}()

	ok := true
	switch command {
	case "stats":
		ok = showStats(ctx, db)
	case "jobs":
		ok = listJobs(ctx, db)
	case "recover":
		ok = recoverJobs(ctx, db)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", command)
		printUsage()
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Gallery Sync Catalog Administration")
	fmt.Println("")
	fmt.Println("Usage: syncadmin <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  stats    - Print catalog counts")
	fmt.Println("  jobs     - List recent jobs")
	fmt.Println("  recover  - Mark jobs interrupted by a crash as failed")
	fmt.Println("")
	fmt.Println("The catalog is located via DATABASE_DIR (default /database).")
	fmt.Println("Run recover only while the server is stopped.")
}

func showStats(ctx context.Context, db *database.Database) bool {
	stats, err := db.CalculateStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read catalog stats: %v\n", err)
		return false
	}
	fmt.Printf("Artists:  %d\n", stats.Artists)
	fmt.Printf("Artworks: %d\n", stats.Artworks)
	fmt.Printf("Images:   %d\n", stats.Images)
	return true
}

func listJobs(ctx context.Context, db *database.Database) bool {
	ledger := jobs.NewLedger(db)
	list, err := ledger.List(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list jobs: %v\n", err)
		return false
	}
	if len(list) == 0 {
		fmt.Println("No jobs recorded.")
		return true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tUPDATED")
	for _, job := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n",
			job.ID, job.Type, job.Status, job.Progress,
			job.UpdatedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	return true
}

func recoverJobs(ctx context.Context, db *database.Database) bool {
	ledger := jobs.NewLedger(db)
	n, err := ledger.RecoverInterrupted(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to recover jobs: %v\n", err)
		return false
	}
	if n == 0 {
		fmt.Println("No interrupted jobs found.")
	} else {
		fmt.Printf("Marked %d interrupted job(s) as failed.\n", n)
	}
	return true
}
