package handlers

import (
	"net/http"
	"strconv"

	"wardrobe-storage/internal/cache"
)

// StorageHealth returns the storage health report. Reports are cached for
// 30 seconds; ?refresh=true forces a new analysis. The analysis is
// read-only, POST /api/storage/cleanup reclaims space.
func (h *Handlers) StorageHealth(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if !refresh {
		if cached, ok := h.reports.Get(healthCacheKey); ok {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	report, err := h.Cache.Analyze(r.Context())
	if err != nil {
		apiLog.Error("storage analysis failed: %v", err)
		writeJSONError(w, "storage analysis failed", http.StatusInternalServerError)
		return
	}

	h.reports.SetDefault(healthCacheKey, report)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, report)
}

// CleanupResponse is returned by the cleanup endpoint.
type CleanupResponse struct {
	Succeeded bool               `json:"succeeded"`
	Report    *cache.HealthReport `json:"report,omitempty"`
}

// Cleanup runs an emergency cleanup of images whose items no longer exist.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Cache.EmergencyCleanup(r.Context())
	if err != nil {
		apiLog.Error("cleanup failed: %v", err)
		writeJSONError(w, "cleanup failed", http.StatusInternalServerError)
		return
	}
	h.invalidateReports()

	resp := CleanupResponse{Succeeded: ok}
	if report, err := h.Cache.Analyze(r.Context()); err == nil {
		h.reports.SetDefault(healthCacheKey, report)
		resp.Report = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reconcile re-checks every item's image against the disk.
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.Validator.Reset()
	report, err := h.Validator.ReconcileAll(r.Context())
	if err != nil {
		apiLog.Error("reconciliation failed: %v", err)
		writeJSONError(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	h.invalidateReports()
	writeJSON(w, http.StatusOK, report)
}

// Migrate reruns the legacy migration passes.
func (h *Handlers) Migrate(w http.ResponseWriter, r *http.Request) {
	h.Migration.Reset()
	report, err := h.Migration.Run(r.Context())
	if err != nil {
		apiLog.Error("migration failed: %v", err)
		writeJSONError(w, "migration failed", http.StatusInternalServerError)
		return
	}
	h.invalidateReports()
	writeJSON(w, http.StatusOK, report)
}
