// Package backup keeps rolling SQLite snapshots so a retention sweep never
// deletes scan history without a copy to restore from.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	filePrefix = "scanarr-"
	fileSuffix = ".db"
	stampFmt   = "20060102-150405"
)

var namePattern = regexp.MustCompile(`^scanarr-\d{8}-\d{6}\.db$`)

// Snapshot describes one snapshot file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes snapshots into dir and keeps the newest keep of them.
type Service struct {
	db     *sql.DB
	dir    string
	keep   int
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a snapshot service. keep below 1 is treated as 1.
func NewService(db *sql.DB, dir string, keep int, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dir:    dir,
		keep:   max(keep, 1),
		logger: logger.With(slog.String("component", "backup")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dir returns the snapshot directory.
func (s *Service) Dir() string { return s.dir }

// Create writes a consistent copy of the database with VACUUM INTO and then
// prunes old snapshots. A prune failure is logged, not returned.
func (s *Service) Create(ctx context.Context) (Snapshot, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return Snapshot{}, fmt.Errorf("creating snapshot directory: %w", err)
	}

	created := s.now().Truncate(time.Second)
	name := filePrefix + created.Format(stampFmt) + fileSuffix
	dest := filepath.Join(s.dir, name)
	if _, err := os.Stat(dest); err == nil {
		return Snapshot{}, fmt.Errorf("snapshot %s already exists", name)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return Snapshot{}, fmt.Errorf("VACUUM INTO: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat snapshot: %w", err)
	}
	snap := Snapshot{Filename: name, Size: info.Size(), CreatedAt: created}
	s.logger.Info("database snapshot written", "filename", name, "size", info.Size())

	if _, err := s.Prune(); err != nil {
		s.logger.Warn("pruning snapshots", "error", err)
	}
	return snap, nil
}

// List returns the snapshots in dir, newest first. A missing directory
// yields an empty list.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	out := []Snapshot{}
	for _, e := range entries {
		if e.IsDir() || !ValidName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(e.Name(), filePrefix), fileSuffix)
		created, err := time.Parse(stampFmt, stamp)
		if err != nil {
			created = info.ModTime().UTC()
		}
		out = append(out, Snapshot{Filename: e.Name(), Size: info.Size(), CreatedAt: created})
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// Prune removes all but the newest keep snapshots and returns how many
// were removed.
func (s *Service) Prune() (int, error) {
	snaps, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= s.keep {
		return 0, nil
	}
	removed := 0
	for _, snap := range snaps[s.keep:] {
		if err := os.Remove(filepath.Join(s.dir, snap.Filename)); err != nil {
			s.logger.Warn("removing old snapshot", "filename", snap.Filename, "error", err)
			continue
		}
		removed++
	}
	s.logger.Debug("snapshots pruned", "removed", removed, "keep", s.keep)
	return removed, nil
}

// ValidName reports whether name is a snapshot file name. Names with path
// separators never match.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
