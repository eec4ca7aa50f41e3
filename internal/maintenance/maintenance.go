// Package maintenance enforces the scan history retention window and keeps
// the SQLite database tidy.
package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sydlexius/scanarr/internal/backup"
	"github.com/sydlexius/scanarr/internal/event"
)

const keyLastSweep = "maintenance.last_sweep_at"

// Purger removes scans started before a cutoff together with their problem
// files and reports how many scans were removed.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int, error)
}

// Snapshotter copies the database before history is deleted.
type Snapshotter interface {
	Create(ctx context.Context) (backup.Snapshot, error)
}

// Status holds maintenance status information.
type Status struct {
	DBFileSize    int64  `json:"db_file_size"`
	WALFileSize   int64  `json:"wal_file_size"`
	PageCount     int64  `json:"page_count"`
	PageSize      int64  `json:"page_size"`
	LastSweepAt   string `json:"last_sweep_at,omitempty"`
	RetentionDays int    `json:"retention_days"`
}

// SweepResult describes one retention sweep.
type SweepResult struct {
	Cutoff time.Time `json:"cutoff"`
	Purged int       `json:"purged"`
	// Snapshot is the copy taken before purging, if any.
	Snapshot *backup.Snapshot `json:"snapshot,omitempty"`
}

// Service runs retention sweeps. db may be nil when the scans live in
// memory; database housekeeping is then skipped.
type Service struct {
	store         Purger
	db            *sql.DB
	dbPath        string
	retentionDays int
	logger        *slog.Logger
	eventBus      *event.Bus
	snapshots     Snapshotter
}

// NewService creates a maintenance service that keeps retentionDays of scan
// history.
func NewService(store Purger, db *sql.DB, dbPath string, retentionDays int, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		db:            db,
		dbPath:        dbPath,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "maintenance")),
	}
}

// SetEventBus sets the event bus for publishing purge events.
func (s *Service) SetEventBus(bus *event.Bus) {
	s.eventBus = bus
}

// SetSnapshotter makes every sweep take a database snapshot first. A sweep
// whose snapshot fails purges nothing.
func (s *Service) SetSnapshotter(sn Snapshotter) {
	s.snapshots = sn
}

// Cutoff returns the oldest start time that survives a sweep at now.
func (s *Service) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -s.retentionDays)
}

// Sweep purges every scan started before now minus the retention window,
// then optimizes the database.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	cutoff := s.Cutoff(now)
	res := SweepResult{Cutoff: cutoff}
	if s.snapshots != nil {
		snap, err := s.snapshots.Create(ctx)
		if err != nil {
			return SweepResult{}, fmt.Errorf("snapshot before purge: %w", err)
		}
		res.Snapshot = &snap
	}

	n, err := s.store.Purge(ctx, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("purging scans before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	res.Purged = n
	s.logger.Info("retention sweep complete", "cutoff", cutoff.Format(time.RFC3339), "purged", n)

	if s.eventBus != nil && n > 0 {
		s.eventBus.Publish(event.Event{
			Type: event.ScansPurged,
			Data: map[string]any{event.KeyPurged: n, event.KeyCutoff: cutoff},
		})
	}

	if s.db == nil {
		return res, nil
	}
	if err := s.Optimize(ctx); err != nil {
		s.logger.Warn("optimize after sweep", "error", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		keyLastSweep, stamp, stamp)
	if err != nil {
		s.logger.Warn("recording sweep timestamp", "error", err)
	}
	return res, nil
}

// Status returns current database and retention status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{RetentionDays: s.retentionDays}
	if s.db == nil {
		return st, nil
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", "error", err)
	}

	var last string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keyLastSweep).Scan(&last)
	switch {
	case err == nil:
		st.LastSweepAt = last
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("reading last sweep time: %w", err)
	}
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	return nil
}

// StartScheduler sweeps once at start and then on a fixed interval until
// the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("retention scheduler started",
		slog.String("interval", interval.String()),
		slog.Int("retention_days", s.retentionDays))

	if _, err := s.Sweep(ctx, time.Now()); err != nil {
		s.logger.Error("retention sweep failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, time.Now()); err != nil {
				s.logger.Error("retention sweep failed", slog.Any("error", err))
			}
		}
	}
}
