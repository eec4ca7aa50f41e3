package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sydlexius/scanarr/internal/settings"
)

// SettingsSource provides the current user settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Scheduler triggers a scan of the configured folders every
// ScanFrequencyHours. The interval is re-read from settings after each run.
type Scheduler struct {
	coord    *Coordinator
	settings SettingsSource
	logger   *slog.Logger
	wake     chan struct{}

	// hour is the unit of ScanFrequencyHours; tests shrink it.
	hour time.Duration
}

// NewScheduler creates a scan scheduler.
func NewScheduler(coord *Coordinator, src SettingsSource, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		coord:    coord,
		settings: src,
		logger:   logger.With(slog.String("component", "scan-scheduler")),
		wake:     make(chan struct{}, 1),
		hour:     time.Hour,
	}
}

// Reschedule restarts the current wait using the latest frequency. Call it
// after settings change.
func (s *Scheduler) Reschedule() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start blocks until ctx is canceled, triggering a scan every interval.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.interval(ctx)
	s.logger.Info("scan scheduler started", "interval", interval.String())
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan scheduler stopped")
			return
		case <-s.wake:
			next := s.interval(ctx)
			if next != interval {
				s.logger.Info("scan schedule changed", "interval", next.String())
			}
			interval = next
			timer.Reset(interval)
		case <-timer.C:
			s.runScheduled(ctx)
			interval = s.interval(ctx)
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) interval(ctx context.Context) time.Duration {
	hours := settings.DefaultFrequencyHours
	if cur, err := s.settings.Get(ctx); err != nil {
		s.logger.Error("loading settings for schedule", "error", err)
	} else if cur.ScanFrequencyHours >= settings.MinFrequencyHours && cur.ScanFrequencyHours <= settings.MaxFrequencyHours {
		hours = cur.ScanFrequencyHours
	}
	return time.Duration(hours) * s.hour
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	cur, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("scheduled scan: loading settings", "error", err)
		return
	}
	if len(cur.ScanFolders) == 0 {
		s.logger.Debug("scheduled scan skipped: no scan folders")
		return
	}

	h, err := s.coord.Trigger(ctx, cur)
	switch {
	case errors.Is(err, ErrScanInProgress):
		s.logger.Info("scheduled scan skipped: scan already in progress", "roots", cur.ScanFolders)
	case err != nil && h == nil:
		s.logger.Error("scheduled scan not started", "error", err)
	case err != nil:
		s.logger.Warn("scheduled scan failed", "scan_id", h.ID, "error", err)
	default:
		s.logger.Info("scheduled scan started", "scan_id", h.ID)
	}
}
