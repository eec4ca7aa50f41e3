package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sydlexius/scanarr/internal/scan"
)

// Memory is an in-process scan.Store used for dry runs and tests.
type Memory struct {
	mu    sync.RWMutex
	scans map[string]scan.Scan
	files map[string][]scan.ProblemFile
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scans: make(map[string]scan.Scan),
		files: make(map[string][]scan.ProblemFile),
	}
}

// Append implements scan.Store.
func (m *Memory) Append(ctx context.Context, s scan.Scan, files []scan.ProblemFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scan.CheckRecord(s, files); err != nil {
		return err
	}

	copied := make([]scan.ProblemFile, len(files))
	for i, f := range files {
		copied[i] = f.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.scans[s.ID]; exists {
		return errDuplicate(s.ID)
	}
	stored := s.Clone()
	if stored.ProblemFileIDs == nil {
		stored.ProblemFileIDs = []string{}
	}
	if stored.RootFolders == nil {
		stored.RootFolders = []string{}
	}
	m.scans[s.ID] = stored
	m.files[s.ID] = copied
	return nil
}

// Get implements scan.Store.
func (m *Memory) Get(_ context.Context, id string) (scan.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scans[id]
	if !ok {
		return scan.Scan{}, scan.ErrNotFound
	}
	return s.Clone(), nil
}

// List implements scan.Store.
func (m *Memory) List(_ context.Context, f scan.ScanFilter) ([]scan.Scan, error) {
	m.mu.RLock()
	out := make([]scan.Scan, 0, len(m.scans))
	for _, s := range m.scans {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, newestFirst)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListProblemFiles implements scan.Store.
func (m *Memory) ListProblemFiles(ctx context.Context, f scan.ProblemFileFilter) ([]scan.ProblemFile, error) {
	scans, err := m.List(ctx, scan.ScanFilter{})
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scan.ProblemFile
	for _, s := range scans {
		if f.ScanID != "" && s.ID != f.ScanID {
			continue
		}
		for _, pf := range m.files[s.ID] {
			if !f.Match(pf) {
				continue
			}
			out = append(out, pf.Clone())
			if f.Limit > 0 && len(out) == f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Purge implements scan.Store.
func (m *Memory) Purge(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.scans {
		if s.StartedAt.Before(before) {
			delete(m.scans, id)
			delete(m.files, id)
			n++
		}
	}
	return n, nil
}

func newestFirst(a, b scan.Scan) int {
	if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
