package scan

import (
	"slices"
	"strings"
	"time"

	"github.com/sydlexius/scanarr/internal/media"
)

// Status is the lifecycle state of a scan.
type Status string

// Scan statuses. Completed, Failed and Cancelled are terminal.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusRunning || s.Terminal()
}

// Scan is one classification run over a root-set.
type Scan struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RootFolders    []string   `json:"root_folders"`
	FilesChecked   int        `json:"files_checked"`
	SkippedCount   int        `json:"skipped_count"`
	ProblemFileIDs []string   `json:"problem_file_ids"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
}

// ProblemCount is the number of problem files recorded for the scan.
func (s Scan) ProblemCount() int { return len(s.ProblemFileIDs) }

// Clone returns a deep copy.
func (s Scan) Clone() Scan {
	c := s
	c.RootFolders = slices.Clone(s.RootFolders)
	c.ProblemFileIDs = slices.Clone(s.ProblemFileIDs)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// ProblemFile is a scanned file with at least one issue.
type ProblemFile struct {
	ID       string         `json:"id"`
	ScanID   string         `json:"scan_id"`
	Path     string         `json:"path"`
	Filename string         `json:"filename"`
	Metadata media.Metadata `json:"metadata"`
	Issues   []string       `json:"issues"`
}

// Clone returns a deep copy.
func (p ProblemFile) Clone() ProblemFile {
	c := p
	c.Issues = slices.Clone(p.Issues)
	return c
}

// RootSetKey returns the identity of a root-set: the folders sorted and
// joined. Two scans with the same key may not run at the same time.
func RootSetKey(roots []string) string {
	sorted := slices.Clone(roots)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "\x00")
}
