package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeFSNotify_LocalDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, ProbeFSNotify(dir, 2*time.Second))

	// the scratch file is cleaned up
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProbeFSNotify_MissingDir(t *testing.T) {
	assert.False(t, ProbeFSNotify(filepath.Join(t.TempDir(), "missing"), 200*time.Millisecond))
}

func TestProbeCache(t *testing.T) {
	pc := NewProbeCache()
	_, ok := pc.Get("/media")
	assert.False(t, ok)

	pc.Set("/media", true)
	supported, ok := pc.Get("/media")
	assert.True(t, ok)
	assert.True(t, supported)
}

func TestProbeAll(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	pc := NewProbeCache()
	pc.ProbeAll(context.Background(), []string{dir, missing}, testLogger())

	supported, ok := pc.Get(dir)
	assert.True(t, ok)
	assert.True(t, supported)
	supported, ok = pc.Get(missing)
	assert.True(t, ok)
	assert.False(t, supported)
}
