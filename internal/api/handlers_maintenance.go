package api

import (
	"context"
	"net/http"
	"time"
)

// handleMaintenanceStatus reports database size and retention state.
// GET /api/v1/maintenance
func (r *Router) handleMaintenanceStatus(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance service not available")
		return
	}
	status, err := r.maintenance.Status(req.Context())
	if err != nil {
		r.logger.Error("getting maintenance status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleMaintenanceSweep runs a retention sweep now.
// POST /api/v1/maintenance/sweep
func (r *Router) handleMaintenanceSweep(w http.ResponseWriter, req *http.Request) {
	if r.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "maintenance service not available")
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Minute)
	defer cancel()

	res, err := r.maintenance.Sweep(ctx, time.Now())
	if err != nil {
		r.logger.Error("retention sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListSnapshots lists the database snapshots taken before sweeps.
// GET /api/v1/maintenance/snapshots
func (r *Router) handleListSnapshots(w http.ResponseWriter, _ *http.Request) {
	if r.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	snaps, err := r.backup.List()
	if err != nil {
		r.logger.Error("listing snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}
