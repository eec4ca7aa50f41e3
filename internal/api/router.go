// Package api exposes the scan, statistics, settings and folder browsing
// operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sydlexius/scanarr/internal/api/middleware"
	"github.com/sydlexius/scanarr/internal/backup"
	"github.com/sydlexius/scanarr/internal/maintenance"
	"github.com/sydlexius/scanarr/internal/notify"
	"github.com/sydlexius/scanarr/internal/scan"
	"github.com/sydlexius/scanarr/internal/scanner"
	"github.com/sydlexius/scanarr/internal/settings"
	"github.com/sydlexius/scanarr/internal/stats"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Coordinator *scanner.Coordinator
	Scheduler   *scanner.Scheduler
	Store       scan.Store
	Stats       *stats.Aggregator
	Settings    *settings.Service
	Dispatcher  *notify.Dispatcher
	Maintenance *maintenance.Service
	Backup      *backup.Service // optional
	Logger      *slog.Logger
	BasePath    string
	// TriggerEvery and TriggerBurst rate-limit scan triggers per client.
	TriggerEvery time.Duration
	TriggerBurst int
}

// Router serves the HTTP API.
type Router struct {
	coordinator *scanner.Coordinator
	scheduler   *scanner.Scheduler
	store       scan.Store
	stats       *stats.Aggregator
	settings    *settings.Service
	dispatcher  *notify.Dispatcher
	maintenance *maintenance.Service
	backup      *backup.Service
	logger      *slog.Logger
	basePath    string
	limiter     *middleware.RateLimiter
}

// NewRouter creates a Router. The trigger rate limiter stops cleaning up
// idle clients when ctx is canceled.
func NewRouter(ctx context.Context, deps RouterDeps) *Router {
	every := deps.TriggerEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	burst := deps.TriggerBurst
	if burst <= 0 {
		burst = 3
	}
	return &Router{
		coordinator: deps.Coordinator,
		scheduler:   deps.Scheduler,
		store:       deps.Store,
		stats:       deps.Stats,
		settings:    deps.Settings,
		dispatcher:  deps.Dispatcher,
		maintenance: deps.Maintenance,
		backup:      deps.Backup,
		logger:      deps.Logger.With(slog.String("component", "api")),
		basePath:    strings.TrimRight(deps.BasePath, "/"),
		limiter:     middleware.NewRateLimiter(ctx, every, burst),
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(middleware.Logging(r.logger))
	mux.Use(chimw.Recoverer)

	api := chi.NewRouter()
	api.Get("/health", r.handleHealth)

	api.Route("/scans", func(sr chi.Router) {
		sr.With(r.limiter.Middleware).Post("/", r.handleTriggerScan)
		sr.Get("/", r.handleListScans)
		sr.Get("/active", r.handleActiveScans)
		sr.Get("/{id}", r.handleGetScan)
		sr.Post("/{id}/cancel", r.handleCancelScan)
		sr.Get("/{id}/report", r.handleScanReport)
	})
	api.Get("/problem-files", r.handleListProblemFiles)
	api.Get("/statistics", r.handleStatistics)

	api.Get("/settings", r.handleGetSettings)
	api.Put("/settings", r.handleUpdateSettings)
	api.Post("/notifications/test", r.handleTestNotification)

	api.Route("/fs", func(fr chi.Router) {
		fr.Get("/children", r.handleFSChildren)
		fr.Get("/validate", r.handleFSValidate)
		fr.Get("/breadcrumbs", r.handleFSBreadcrumbs)
		fr.Get("/tree", r.handleFSTree)
	})

	api.Get("/maintenance", r.handleMaintenanceStatus)
	api.Post("/maintenance/sweep", r.handleMaintenanceSweep)
	api.Get("/maintenance/snapshots", r.handleListSnapshots)

	api.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	api.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	mux.Mount(r.basePath+"/api/v1", api)
	return mux
}
