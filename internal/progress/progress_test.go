package progress

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gallery-sync/internal/database"
	"gallery-sync/internal/jobs"
)

func setupJob(t *testing.T) (*jobs.Ledger, *jobs.Job) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ledger := jobs.NewLedger(db)
	job, err := ledger.Create(context.Background(), jobs.TypeScan)
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	return ledger, job
}

func countEvents(buf *bytes.Buffer, eventType EventType) int {
	return strings.Count(buf.String(), "event: "+string(eventType)+"\n")
}

func TestChannelEmitsConnectionEvent(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ch := NewChannel(context.Background(), &buf, ledger, job.ID, time.Hour)
	defer ch.Close()

	if countEvents(&buf, EventConnection) != 1 {
		t.Errorf("connection events = %d, want 1\n%s", countEvents(&buf, EventConnection), buf.String())
	}
	if !strings.Contains(buf.String(), job.ID) {
		t.Error("connection event does not carry the job id")
	}
}

func TestChannelStreamsEveryProgressEvent(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ch := NewChannel(context.Background(), &buf, ledger, job.ID, time.Hour)
	defer ch.Close()

	for i := 1; i <= 5; i++ {
		ch.Progress("scanning", "step", i, 5, i*10, -1)
	}

	if got := countEvents(&buf, EventProgress); got != 5 {
		t.Errorf("progress events = %d, want 5", got)
	}

	// Frames are well-formed SSE: event line, data line, blank line.
	for _, frame := range strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n") {
		lines := strings.SplitN(frame, "\n", 2)
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "event: ") || !strings.HasPrefix(lines[1], "data: ") {
			t.Errorf("malformed SSE frame: %q", frame)
		}
	}
}

func TestChannelThrottlesLedgerCheckpoints(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ch := NewChannel(context.Background(), &buf, ledger, job.ID, time.Hour)
	defer ch.Close()

	// The first event is persisted immediately; the rest fall inside the
	// persist interval and only reach the sink.
	ch.Progress("scanning", "first", 1, 10, 10, -1)
	ch.Progress("scanning", "second", 2, 10, 20, -1)
	ch.Progress("scanning", "third", 3, 10, 30, -1)

	got, err := ledger.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Progress != 10 {
		t.Errorf("ledger progress = %d, want 10 (only the first checkpoint)", got.Progress)
	}
	if got.Message != "first" {
		t.Errorf("ledger message = %q, want %q", got.Message, "first")
	}

	if countEvents(&buf, EventProgress) != 3 {
		t.Errorf("sink got %d progress events, want all 3", countEvents(&buf, EventProgress))
	}
}

func TestChannelCheckpointsAfterInterval(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ch := NewChannel(context.Background(), &buf, ledger, job.ID, 10*time.Millisecond)
	defer ch.Close()

	ch.Progress("scanning", "first", 1, 2, 10, -1)
	time.Sleep(20 * time.Millisecond)
	ch.Progress("scanning", "second", 2, 2, 90, -1)

	got, err := ledger.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Progress != 90 {
		t.Errorf("ledger progress = %d, want 90", got.Progress)
	}
}

func TestChannelEmitsExactlyOneTerminalEvent(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ch := NewChannel(context.Background(), &buf, ledger, job.ID, time.Hour)
	defer ch.Close()

	ch.Complete(map[string]int{"new": 3})
	ch.Fail(nil)
	ch.Cancelled()
	ch.Complete(nil)

	total := countEvents(&buf, EventComplete) + countEvents(&buf, EventError) + countEvents(&buf, EventCancelled)
	if total != 1 {
		t.Errorf("terminal events = %d, want exactly 1\n%s", total, buf.String())
	}
	if countEvents(&buf, EventComplete) != 1 {
		t.Error("the first terminal event (complete) was not the one emitted")
	}
}

func TestChannelDropsEventsAfterClientGone(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // client disconnected before the stream opened

	ch := NewChannel(ctx, &buf, ledger, job.ID, time.Hour)
	defer ch.Close()

	ch.Progress("scanning", "unseen", 1, 2, 40, -1)
	ch.Complete(nil)

	if buf.Len() != 0 {
		t.Errorf("sink received %d bytes after disconnect:\n%s", buf.Len(), buf.String())
	}

	// The ledger checkpoint still happened; pollers can observe progress.
	got, err := ledger.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Progress != 40 {
		t.Errorf("ledger progress = %d, want 40 despite disconnect", got.Progress)
	}
}

func TestChannelCloseStopsHeartbeat(t *testing.T) {
	t.Parallel()

	ledger, job := setupJob(t)
	var buf bytes.Buffer

	ch := NewChannel(context.Background(), &buf, ledger, job.ID, time.Hour)

	done := make(chan struct{})
	go func() {
		ch.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
