package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sydlexius/scanarr/internal/scan"
	"github.com/sydlexius/scanarr/internal/scanner"
	"github.com/sydlexius/scanarr/internal/settings"
)

type triggerRequest struct {
	// Folders overrides the configured scan folders for this run.
	Folders []string `json:"folders"`
}

type triggerResponse struct {
	ID     string      `json:"id"`
	Roots  []string    `json:"roots"`
	Status scan.Status `json:"status"`
}

// handleTriggerScan starts a scan of the configured folders.
// POST /api/v1/scans
func (r *Router) handleTriggerScan(w http.ResponseWriter, req *http.Request) {
	var body triggerRequest
	if err := decodeBody(req, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := r.settings.Get(req.Context())
	if err != nil {
		r.logger.Error("loading settings for scan", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(body.Folders) > 0 {
		snap.ScanFolders = body.Folders
		snap = snap.Normalize()
		if err := snap.Validate(); err != nil {
			writeValidation(w, err)
			return
		}
	}

	h, err := r.coordinator.Trigger(req.Context(), snap)
	switch {
	case errors.Is(err, scanner.ErrScanInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, scanner.ErrNoRoots):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, scanner.ErrRootUnreachable) && h != nil:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   err.Error(),
			"scan_id": h.ID,
		})
		return
	case err != nil:
		r.logger.Error("triggering scan", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusAccepted, triggerResponse{ID: h.ID, Roots: h.Roots, Status: scan.StatusRunning})
}

// handleListScans lists stored scans, newest first.
// GET /api/v1/scans?search=&from=&to=&status=&with_problems=&limit=
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) {
	f, err := scanFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scans, err := r.store.List(req.Context(), f)
	if err != nil {
		r.logger.Error("listing scans", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if scans == nil {
		scans = []scan.Scan{}
	}
	writeJSON(w, http.StatusOK, scans)
}

func scanFilter(req *http.Request) (scan.ScanFilter, error) {
	q := req.URL.Query()
	f := scan.ScanFilter{Search: q.Get("search")}

	fromDay, err := queryDay(req, "from")
	if err != nil {
		return f, err
	}
	toDay, err := queryDay(req, "to")
	if err != nil {
		return f, err
	}
	if !fromDay.IsZero() && !toDay.IsZero() && toDay.Before(fromDay) {
		return f, errors.New("to must not be before from")
	}
	f.From, f.To = scan.DayRange(fromDay, toDay)

	if s := scan.Status(q.Get("status")); s != "" {
		if !s.Valid() {
			return f, errors.New("unknown status " + string(s))
		}
		f.Status = s
	}
	if f.WithProblems, err = queryBool(req, "with_problems"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(req, "limit", 0); err != nil {
		return f, err
	}
	return f, nil
}

// handleActiveScans lists running scans.
// GET /api/v1/scans/active
func (r *Router) handleActiveScans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.coordinator.Active())
}

// handleGetScan returns one scan, running or stored.
// GET /api/v1/scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if s, ok := r.coordinator.Running(id); ok {
		writeJSON(w, http.StatusOK, s)
		return
	}
	s, err := r.store.Get(req.Context(), id)
	if errors.Is(err, scan.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		r.logger.Error("getting scan", "scan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handleCancelScan requests cancellation of a running scan.
// POST /api/v1/scans/{id}/cancel
func (r *Router) handleCancelScan(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if r.coordinator.Cancel(id) {
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
		return
	}
	if _, err := r.store.Get(req.Context(), id); err == nil {
		writeError(w, http.StatusConflict, "scan is not running")
		return
	}
	writeError(w, http.StatusNotFound, "scan not found")
}

type reportResponse struct {
	Scan         scan.Scan          `json:"scan"`
	ProblemFiles []scan.ProblemFile `json:"problem_files"`
}

// handleScanReport returns a stored scan with its problem files, the input
// of report rendering.
// GET /api/v1/scans/{id}/report
func (r *Router) handleScanReport(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if _, running := r.coordinator.Running(id); running {
		writeError(w, http.StatusConflict, "scan is still running")
		return
	}
	s, err := r.store.Get(req.Context(), id)
	if errors.Is(err, scan.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	if err != nil {
		r.logger.Error("getting scan for report", "scan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	files, err := r.store.ListProblemFiles(req.Context(), scan.ProblemFileFilter{ScanID: id})
	if err != nil {
		r.logger.Error("listing problem files for report", "scan_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if files == nil {
		files = []scan.ProblemFile{}
	}
	writeJSON(w, http.StatusOK, reportResponse{Scan: s, ProblemFiles: files})
}

// handleListProblemFiles searches problem files across stored scans.
// GET /api/v1/problem-files?scan_id=&search=&limit=
func (r *Router) handleListProblemFiles(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := req.URL.Query()
	files, err := r.store.ListProblemFiles(req.Context(), scan.ProblemFileFilter{
		ScanID: q.Get("scan_id"),
		Search: q.Get("search"),
		Limit:  limit,
	})
	if err != nil {
		r.logger.Error("listing problem files", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if files == nil {
		files = []scan.ProblemFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

// handleStatistics returns dashboard rollups over stored scans.
// GET /api/v1/statistics
func (r *Router) handleStatistics(w http.ResponseWriter, req *http.Request) {
	st, err := r.stats.Statistics(req.Context())
	if err != nil {
		r.logger.Error("computing statistics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeValidation(w http.ResponseWriter, err error) {
	var ve *settings.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid settings",
			"fields": ve.Fields,
		})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
