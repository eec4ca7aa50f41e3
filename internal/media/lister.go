package media

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the container formats considered media files.
var DefaultExtensions = []string{
	".mkv", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v",
	".mpg", ".mpeg", ".ts", ".m2ts", ".vob", ".ogv",
}

// WalkLister lists media files by walking each root folder depth-first in
// lexical order. Directory symlinks are not followed.
type WalkLister struct {
	extensions map[string]bool
}

// NewWalkLister creates a lister matching the given extensions, or
// DefaultExtensions when none are supplied.
func NewWalkLister(extensions []string) *WalkLister {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &WalkLister{extensions: exts}
}

// ListFiles implements Lister.
func (l *WalkLister) ListFiles(roots []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, root := range roots {
			if !l.walkRoot(root, yield) {
				return
			}
		}
	}
}

// walkRoot returns false once the consumer has stopped ranging.
func (l *WalkLister) walkRoot(root string, yield func(string, error) bool) bool {
	info, err := os.Stat(root)
	if err != nil {
		return yield(root, fmt.Errorf("%w: %s: %v", ErrRootUnreachable, root, err))
	}
	if !info.IsDir() {
		return yield(root, fmt.Errorf("%w: %s is not a directory", ErrRootUnreachable, root))
	}

	stopped := false
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				stopped = !yield(root, fmt.Errorf("%w: %s: %v", ErrRootUnreachable, root, err))
				return fs.SkipAll
			}
			if !yield(path, fmt.Errorf("%w: %v", ErrIO, err)) {
				stopped = true
				return fs.SkipAll
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && isHidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isHiddenOrTemp(d.Name()) {
			return nil
		}
		if !l.extensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if !yield(path, nil) {
			stopped = true
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && !stopped {
		return yield(root, fmt.Errorf("%w: %s: %v", ErrRootUnreachable, root, walkErr))
	}
	return !stopped
}

// Matches reports whether a file name would be listed: a visible,
// non-temporary file with a media extension.
func (l *WalkLister) Matches(name string) bool {
	return !isHiddenOrTemp(name) && l.extensions[strings.ToLower(filepath.Ext(name))]
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isHiddenOrTemp reports files that are never worth probing: dotfiles,
// in-progress downloads and samples.
func isHiddenOrTemp(name string) bool {
	if isHidden(name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tmp", ".temp", ".part", ".partial", ".!qb"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "sample") && !strings.Contains(lower, "sampler")
}
