// Package watcher triggers scans when new media files appear under the
// configured scan folders.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/scanarr/internal/event"
)

// maxWatches bounds the number of directories watched per service.
const maxWatches = 8192

// RootLister returns the folders to watch.
type RootLister interface {
	Roots(ctx context.Context) ([]string, error)
}

// RootsFunc adapts a function to RootLister.
type RootsFunc func(ctx context.Context) ([]string, error)

// Roots implements RootLister.
func (f RootsFunc) Roots(ctx context.Context) ([]string, error) { return f(ctx) }

// FileMatcher decides which created files count as media.
type FileMatcher interface {
	Matches(name string) bool
}

// Service watches scan folders and their subdirectories. A created media
// file arms a debounce timer; when it elapses scanFn runs once for the
// whole burst.
type Service struct {
	scanFn        func(ctx context.Context) error
	roots         RootLister
	matcher       FileMatcher
	eventBus      *event.Bus
	logger        *slog.Logger
	debounce      time.Duration
	refreshPeriod time.Duration
	probeCache    *ProbeCache

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	watching map[string]string // watched dir -> owning root
}

// NewService creates a new filesystem watcher service. probeCache may be
// nil, in which case every root is watched.
func NewService(scanFn func(ctx context.Context) error, roots RootLister, matcher FileMatcher, eventBus *event.Bus, logger *slog.Logger, probeCache *ProbeCache) *Service {
	return &Service{
		scanFn:        scanFn,
		roots:         roots,
		matcher:       matcher,
		eventBus:      eventBus,
		logger:        logger.With(slog.String("component", "fs-watcher")),
		debounce:      30 * time.Second,
		refreshPeriod: 5 * time.Minute,
		probeCache:    probeCache,
		watching:      make(map[string]string),
	}
}

// SetDebounce overrides the default debounce interval.
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Start blocks until ctx is canceled. If fsnotify is unavailable it logs
// and returns.
func (s *Service) Start(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, watcher disabled", "error", err)
		return
	}
	defer w.Close() //nolint:errcheck
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	s.refreshWatchPaths(ctx)

	s.logger.Info("filesystem watcher starting")

	refreshTicker := time.NewTicker(s.refreshPeriod)
	defer refreshTicker.Stop()

	// Starts stopped; reset on each media create.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	scanPending := false

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("filesystem watcher stopping")
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if s.handleFSEvent(ev) {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(s.debounce)
				scanPending = true
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-debounceTimer.C:
			if scanPending {
				scanPending = false
				s.logger.Info("debounce elapsed, triggering scan")
				if err := s.scanFn(ctx); err != nil {
					s.logger.Error("scan triggered by fs watcher failed", "error", err)
				}
			}

		case <-refreshTicker.C:
			s.refreshWatchPaths(ctx)
		}
	}
}

// handleFSEvent reports whether ev should schedule a scan.
func (s *Service) handleFSEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}

	parent := filepath.Dir(ev.Name)
	s.mu.Lock()
	root, watched := s.watching[parent]
	s.mu.Unlock()
	if !watched {
		return false
	}

	if !ev.Has(fsnotify.Create) {
		// A removed or renamed watched directory drops its watch.
		s.mu.Lock()
		s.unwatchTree(ev.Name)
		s.mu.Unlock()
		return false
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if isHidden(filepath.Base(ev.Name)) {
			return false
		}
		s.mu.Lock()
		s.watchTree(ev.Name, root)
		s.mu.Unlock()
		// Files moved in with the directory produce no events of their own.
		return s.containsMedia(ev.Name)
	}
	if !info.Mode().IsRegular() || !s.matcher.Matches(filepath.Base(ev.Name)) {
		return false
	}

	s.logger.Info("media file detected", "path", ev.Name, "root", root)
	if s.eventBus != nil {
		s.eventBus.Publish(event.Event{
			Type: event.MediaDetected,
			Data: map[string]any{event.KeyPath: ev.Name, event.KeyRoots: []string{root}},
		})
	}
	return true
}

// refreshWatchPaths synchronizes the watched roots with the configured
// scan folders.
func (s *Service) refreshWatchPaths(ctx context.Context) {
	roots, err := s.roots.Roots(ctx)
	if err != nil {
		s.logger.Error("failed to list scan folders for watch refresh", "error", err)
		return
	}

	wanted := make(map[string]bool)
	for _, root := range roots {
		if s.probeCache != nil {
			if supported, ok := s.probeCache.Get(root); ok && !supported {
				continue
			}
		}
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			s.logger.Warn("scan folder not watchable", "path", root, "error", err)
			continue
		}
		wanted[root] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for dir, root := range s.watching {
		if !wanted[root] {
			if err := s.watcher.Remove(dir); err != nil {
				s.logger.Debug("failed to remove watch", "path", dir, "error", err)
			}
			delete(s.watching, dir)
		}
	}
	for root := range wanted {
		if _, ok := s.watching[root]; ok {
			continue
		}
		s.watchTree(root, root)
		s.logger.Info("watching scan folder", "path", root)
	}
}

// watchTree adds dir and its visible subdirectories. Callers hold s.mu.
func (s *Service) watchTree(dir, root string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return fs.SkipDir
		}
		if _, ok := s.watching[path]; ok {
			return nil
		}
		if len(s.watching) >= maxWatches {
			s.logger.Warn("watch limit reached, not watching deeper folders", "limit", maxWatches, "path", path)
			return fs.SkipAll
		}
		if err := s.watcher.Add(path); err != nil {
			s.logger.Warn("failed to watch folder", "path", path, "error", err)
			return fs.SkipDir
		}
		s.watching[path] = root
		return nil
	})
}

// unwatchTree forgets dir and everything below it. Callers hold s.mu.
func (s *Service) unwatchTree(dir string) {
	prefix := dir + string(filepath.Separator)
	for path := range s.watching {
		if path == dir || strings.HasPrefix(path, prefix) {
			_ = s.watcher.Remove(path)
			delete(s.watching, path)
		}
	}
}

func (s *Service) containsMedia(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() && s.matcher.Matches(d.Name()) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// Watching returns the number of watched directories.
func (s *Service) Watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watching)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
