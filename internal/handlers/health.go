package handlers

import (
	"net/http"
	"time"

	"gallery-sync/internal/database"
)

// healthResponse is the payload of the health endpoint.
type healthResponse struct {
	Status  string         `json:"status"`
	Uptime  string         `json:"uptime"`
	Catalog database.Stats `json:"catalog"`
}

// HealthCheck reports overall service health and catalog counts.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.CalculateStats(r.Context())
	if err != nil {
		writeJSONError(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}

	h.db.UpdateDBMetrics()
	writeJSON(w, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Catalog: stats,
	})
}

// LivenessCheck reports that the process is alive.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "alive"})
}

// ReadinessCheck reports whether the catalog is reachable.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.CalculateStats(r.Context()); err != nil {
		writeJSONError(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}
