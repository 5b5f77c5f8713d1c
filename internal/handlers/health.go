package handlers

import (
	"net/http"
	"runtime"
	"time"

	"wardrobe-storage/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	TotalItems        int    `json:"totalItems"`
	ItemsMissingImage int    `json:"itemsMissingImage"`
	Error             string `json:"error,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	total, missing, err := h.DB.CountItems(r.Context())
	if err != nil {
		response.Status = statusDegraded
		response.Error = err.Error()
	}
	response.TotalItems = total
	response.ItemsMissingImage = missing

	status := http.StatusOK
	if !ready {
		response.Status = statusStarting
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// LivenessCheck always returns 200 while the process serves requests
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck returns 200 once startup migration and reconciliation ran
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready.Load() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}
