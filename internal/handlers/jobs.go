package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"gallery-sync/internal/jobs"
)

// GetJob returns one job's status, progress, and result or error.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ledger.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeJSONError(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, job)
}

// ListJobs returns recent jobs, optionally filtered with ?type=SCAN.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.List(r.Context(), jobs.Type(r.URL.Query().Get("type")))
	if err != nil {
		writeJSONError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, list)
}

// CancelJob requests cooperative cancellation of a job.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	err := h.ledger.Cancel(r.Context(), mux.Vars(r)["id"])
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "cancelling"})
	case errors.Is(err, jobs.ErrNotFound):
		writeJSONError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, jobs.ErrConflict):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		writeJSONError(w, "failed to cancel job", http.StatusInternalServerError)
	}
}

// PauseJob suspends a pending or running job.
func (h *Handlers) PauseJob(w http.ResponseWriter, r *http.Request) {
	h.transitionJob(w, r, h.ledger.Pause, "paused")
}

// ResumeJob resumes a paused job.
func (h *Handlers) ResumeJob(w http.ResponseWriter, r *http.Request) {
	h.transitionJob(w, r, h.ledger.Resume, "resumed")
}

func (h *Handlers) transitionJob(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id string) error, status string) {
	if err := op(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeJSONError(w, "failed to update job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": status})
}
