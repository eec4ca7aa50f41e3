package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ProbeCache remembers whether fsnotify works on each scan folder. Network
// mounts often accept a watch but never deliver events.
type ProbeCache struct {
	mu      sync.RWMutex
	results map[string]bool
}

// NewProbeCache creates an empty probe cache.
func NewProbeCache() *ProbeCache {
	return &ProbeCache{results: make(map[string]bool)}
}

// Get returns the cached result for root; ok is false if root was never
// probed.
func (pc *ProbeCache) Get(root string) (supported, ok bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	supported, ok = pc.results[root]
	return supported, ok
}

// Set records a probe result.
func (pc *ProbeCache) Set(root string, supported bool) {
	pc.mu.Lock()
	pc.results[root] = supported
	pc.mu.Unlock()
}

// ProbeAll probes every root not yet in the cache. Unreachable roots are
// recorded as unsupported.
func (pc *ProbeCache) ProbeAll(ctx context.Context, roots []string, logger *slog.Logger) {
	for _, root := range roots {
		if ctx.Err() != nil {
			return
		}
		if _, ok := pc.Get(root); ok {
			continue
		}
		supported := ProbeFSNotify(root, 2*time.Second)
		pc.Set(root, supported)
		logger.Info("fsnotify probe result", "path", root, "supported", supported)
	}
}

// ProbeFSNotify reports whether a Create event for a scratch file in dir
// arrives within timeout.
func ProbeFSNotify(dir string, timeout time.Duration) bool {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck
	if err := w.Add(dir); err != nil {
		return false
	}

	f, err := os.CreateTemp(dir, ".scanarr-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	defer os.Remove(name) //nolint:errcheck

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == filepath.Base(name) {
				return true
			}
		case <-w.Errors:
			return false
		case <-deadline.C:
			return false
		}
	}
}
