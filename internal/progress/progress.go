package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"gallery-sync/internal/jobs"
	"gallery-sync/internal/logging"
	"gallery-sync/internal/metrics"
)

// EventType identifies one kind of stream event.
type EventType string

const (
	// EventConnection is sent once when the stream opens.
	EventConnection EventType = "connection"
	// EventProgress carries phase/percentage updates.
	EventProgress EventType = "progress"
	// EventComplete is the successful terminal event.
	EventComplete EventType = "complete"
	// EventError is the failure terminal event.
	EventError EventType = "error"
	// EventCancelled is the cancellation terminal event.
	EventCancelled EventType = "cancelled"
	// EventHeartbeat keeps long-lived connections alive through
	// intermediaries.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one server-sent event on the progress stream.
type Event struct {
	Type       EventType   `json:"type"`
	JobID      string      `json:"jobId,omitempty"`
	Phase      string      `json:"phase,omitempty"`
	Message    string      `json:"message,omitempty"`
	Current    int         `json:"current,omitempty"`
	Total      int         `json:"total,omitempty"`
	Percentage int         `json:"percentage"`
	ETASeconds int         `json:"estimatedSecondsRemaining,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

const (
	defaultPersistInterval = time.Second
	heartbeatInterval      = 15 * time.Second
)

// Channel streams job progress to one live sink and throttles the
// persistence of the same progress into the job ledger.
//
// Every progress event reaches the sink immediately; ledger writes are
// coalesced to at most one per persist interval, so database load does
// not scale with event frequency. A disconnected sink never aborts the
// job: events are dropped and the job keeps checkpointing the ledger,
// which status pollers can read without re-subscribing.
//
// Exactly one terminal event (complete, error, or cancelled) is emitted
// per channel; later terminal calls are ignored.
type Channel struct {
	ctx             context.Context
	w               io.Writer
	flusher         http.Flusher
	ledger          *jobs.Ledger
	jobID           string
	persistInterval time.Duration

	mu           sync.Mutex
	lastPersist  time.Time
	terminalSent bool
	clientGone   bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// NewChannel creates a progress channel for one job over w. If w is an
// http.ResponseWriter the SSE headers are set and writes are flushed;
// ctx should be the request context so client disconnects are noticed.
// persistInterval <= 0 uses the 1s default. Callers must call Close.
func NewChannel(ctx context.Context, w io.Writer, ledger *jobs.Ledger, jobID string, persistInterval time.Duration) *Channel {
	if persistInterval <= 0 {
		persistInterval = defaultPersistInterval
	}

	c := &Channel{
		ctx:             ctx,
		w:               w,
		ledger:          ledger,
		jobID:           jobID,
		persistInterval: persistInterval,
		stopHeartbeat:   make(chan struct{}),
		heartbeatDone:   make(chan struct{}),
	}

	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")
		rw.Header().Set("X-Accel-Buffering", "no")
	}
	if f, ok := w.(http.Flusher); ok {
		c.flusher = f
	}

	c.emit(Event{Type: EventConnection, JobID: jobID})
	go c.heartbeatLoop()
	return c
}

// Progress emits one progress event to the sink and, at most once per
// persist interval, checkpoints it into the job ledger.
func (c *Channel) Progress(phase, message string, current, total, percentage, etaSeconds int) {
	c.emit(Event{
		Type:       EventProgress,
		JobID:      c.jobID,
		Phase:      phase,
		Message:    message,
		Current:    current,
		Total:      total,
		Percentage: percentage,
		ETASeconds: etaSeconds,
	})

	c.mu.Lock()
	due := time.Since(c.lastPersist) >= c.persistInterval
	if due {
		c.lastPersist = time.Now()
	}
	c.mu.Unlock()

	if !due {
		return
	}

	// Detached context: a client disconnect must not stop checkpoints.
	if err := c.ledger.UpdateProgress(context.Background(), c.jobID, percentage, message); err != nil {
		if !errors.Is(err, jobs.ErrCancelled) {
			logging.Warn("failed to checkpoint progress for job %s: %v", c.jobID, err)
		}
		return
	}
	metrics.ProgressCheckpointsTotal.Inc()
}

// Complete emits the successful terminal event carrying the result.
func (c *Channel) Complete(result interface{}) {
	c.terminal(Event{Type: EventComplete, JobID: c.jobID, Percentage: 100, Result: result})
}

// Fail emits the failure terminal event.
func (c *Channel) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.terminal(Event{Type: EventError, JobID: c.jobID, Error: msg})
}

// Cancelled emits the cancellation terminal event.
func (c *Channel) Cancelled() {
	c.terminal(Event{Type: EventCancelled, JobID: c.jobID})
}

// Close stops the heartbeat. It does not emit anything; a consumer that
// sees the stream end without a terminal event must treat the job state
// as unknown and poll status.
func (c *Channel) Close() {
	close(c.stopHeartbeat)
	<-c.heartbeatDone
}

func (c *Channel) terminal(event Event) {
	c.mu.Lock()
	if c.terminalSent {
		c.mu.Unlock()
		logging.Warn("dropping duplicate terminal event %s for job %s", event.Type, c.jobID)
		return
	}
	c.terminalSent = true
	c.mu.Unlock()

	c.emit(event)
}

// emit writes one SSE frame to the sink. Once the client is gone all
// further writes are dropped silently; the ledger remains the source
// of truth for reconnecting clients.
func (c *Channel) emit(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clientGone {
		return
	}
	if c.ctx.Err() != nil {
		c.clientGone = true
		logging.Debug("progress client for job %s disconnected", c.jobID)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logging.Error("failed to marshal progress event: %v", err)
		return
	}

	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		c.clientGone = true
		logging.Debug("progress write for job %s failed, dropping further events: %v", c.jobID, err)
		return
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}

	metrics.ProgressEventsTotal.WithLabelValues(string(event.Type)).Inc()
}

func (c *Channel) heartbeatLoop() {
	defer close(c.heartbeatDone)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.emit(Event{Type: EventHeartbeat, JobID: c.jobID})
		case <-c.stopHeartbeat:
			return
		case <-c.ctx.Done():
			return
		}
	}
}
