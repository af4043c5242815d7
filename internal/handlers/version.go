package handlers

import (
	"net/http"

	"gallery-sync/internal/startup"
)

// GetVersion returns build information for the running binary.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, startup.GetBuildInfo())
}
