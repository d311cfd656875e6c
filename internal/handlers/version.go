package handlers

import (
	"net/http"

	"fs-delta-tracker/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	h.writeJSON(w, startup.GetBuildInfo())
}
