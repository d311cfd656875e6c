package handlers

import (
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"fs-delta-tracker/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`

	TrackedFiles      int64 `json:"trackedFiles"`
	OpenScanRuns      int64 `json:"openScanRuns"`
	FinalizedScanRuns int64 `json:"finalizedScanRuns"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports store connectivity and contents. It returns 503 when
// the database cannot be reached.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
		Database:     "ok",
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	status := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Health check: database unreachable", zap.Error(err))
		response.Status = statusDegraded
		response.Database = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		stats := h.store.GetStats()
		response.TrackedFiles = stats.TrackedFiles
		response.OpenScanRuns = stats.OpenScanRuns
		response.FinalizedScanRuns = stats.FinalizedScanRuns
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	h.writeJSON(w, response)
}

// LivenessCheck reports that the process is serving (always 200).
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		h.writeJSON(w, map[string]string{"status": "alive"})
	}
}
