// Package filesystem browses and validates directories for the scan-root
// picker, and provides atomic file writes.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MaxExpandDepth bounds Expand regardless of the requested depth.
const MaxExpandDepth = 8

// Errors returned by the navigator.
var (
	ErrNotDirectory = errors.New("not a directory")
	ErrRelativePath = errors.New("path must be absolute")
)

// Options controls directory listings.
type Options struct {
	ShowHidden bool
}

// Breadcrumb is one ancestor segment of a path.
type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Node is a directory in an expanded tree. Children is nil when the node
// was not descended.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Children []*Node `json:"children,omitempty"`
	// Cycle is set when the node resolves to one of its own ancestors.
	Cycle bool `json:"cycle,omitempty"`
	// Error holds the read error for a directory that could not be listed.
	Error string `json:"error,omitempty"`
}

// Canonicalize returns the cleaned absolute form of path with symlinks
// resolved. Paths that do not exist are cleaned but not resolved.
func Canonicalize(path string) (string, error) {
	if path == "" {
		return "", ErrRelativePath
	}
	path = filepath.Clean(path)
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s", ErrRelativePath, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return resolved, nil
}

// ListChildren returns the names of the subdirectories of path in
// alphabetical order. Symlinks that point at directories are included.
// Hidden entries (dot-prefixed) are left out unless opts.ShowHidden is set.
func ListChildren(path string, opts Options) ([]string, error) {
	dir, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !opts.ShowHidden && isHidden(name) {
			continue
		}
		if isDirEntry(dir, e) {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names, nil
}

// Validate reports whether path exists, is a directory and can be listed.
func Validate(path string) bool {
	return Check(path) == nil
}

// Check is Validate with the reason for failure.
func Check(path string) error {
	dir, err := Canonicalize(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	f, err := os.Open(dir) //nolint:gosec // G304: browsing arbitrary directories is the purpose
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ResolveBreadcrumbs splits the canonical form of an absolute path into its
// ancestors, starting at the filesystem root.
func ResolveBreadcrumbs(path string) ([]Breadcrumb, error) {
	path, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	vol := filepath.VolumeName(path)
	root := vol + string(filepath.Separator)
	crumbs := []Breadcrumb{{Name: root, Path: root}}

	rest := strings.TrimPrefix(path[len(vol):], string(filepath.Separator))
	if rest == "" {
		return crumbs, nil
	}
	current := root
	for _, seg := range strings.Split(rest, string(filepath.Separator)) {
		current = filepath.Join(current, seg)
		crumbs = append(crumbs, Breadcrumb{Name: seg, Path: current})
	}
	return crumbs, nil
}

// Expand builds a directory tree rooted at path down to depth levels
// (capped at MaxExpandDepth). A node whose real directory is already on
// its own ancestor chain is marked Cycle and not descended.
func Expand(path string, depth int, opts Options) (*Node, error) {
	if err := Check(path); err != nil {
		return nil, err
	}
	clean := filepath.Clean(path)
	depth = min(max(depth, 0), MaxExpandDepth)

	ancestors := make(map[string]bool)
	root := &Node{Name: filepath.Base(clean), Path: clean}
	expand(root, depth, opts, ancestors)
	return root, nil
}

func expand(n *Node, depth int, opts Options, ancestors map[string]bool) {
	resolved, err := filepath.EvalSymlinks(n.Path)
	if err != nil {
		n.Error = err.Error()
		return
	}
	if ancestors[resolved] {
		n.Cycle = true
		return
	}
	if depth == 0 {
		return
	}
	ancestors[resolved] = true
	defer delete(ancestors, resolved)

	names, err := ListChildren(n.Path, opts)
	if err != nil {
		n.Error = err.Error()
		return
	}
	n.Children = make([]*Node, 0, len(names))
	for _, name := range names {
		child := &Node{Name: name, Path: filepath.Join(n.Path, name)}
		expand(child, depth-1, opts, ancestors)
		n.Children = append(n.Children, child)
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isDirEntry(dir string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}
