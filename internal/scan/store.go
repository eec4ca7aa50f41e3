package scan

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a scan does not exist.
var ErrNotFound = errors.New("scan not found")

// ErrInvalidRecord is returned by Append for records that break the data
// model (non-terminal status, problem files without issues, mismatched IDs).
var ErrInvalidRecord = errors.New("invalid scan record")

// Store persists terminal scans and their problem files. Readers only ever
// observe fully committed scans.
type Store interface {
	// Append commits a terminal scan and its problem files atomically.
	Append(ctx context.Context, s Scan, files []ProblemFile) error
	// Get returns the scan with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Scan, error)
	// List returns matching scans, newest first.
	List(ctx context.Context, f ScanFilter) ([]Scan, error)
	// ListProblemFiles returns matching problem files ordered by scan
	// (newest first) then by position within the scan.
	ListProblemFiles(ctx context.Context, f ProblemFileFilter) ([]ProblemFile, error)
	// Purge removes every scan started before cutoff, with its problem
	// files, and returns the number of scans removed.
	Purge(ctx context.Context, before time.Time) (int, error)
}

// CheckRecord validates a scan and its problem files before commit.
func CheckRecord(s Scan, files []ProblemFile) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing scan id", ErrInvalidRecord)
	}
	if !s.Status.Terminal() {
		return fmt.Errorf("%w: status %q is not terminal", ErrInvalidRecord, s.Status)
	}
	if len(files) != len(s.ProblemFileIDs) {
		return fmt.Errorf("%w: %d problem files for %d ids", ErrInvalidRecord, len(files), len(s.ProblemFileIDs))
	}
	for i, f := range files {
		if f.ID != s.ProblemFileIDs[i] || f.ScanID != s.ID {
			return fmt.Errorf("%w: problem file %s does not belong to scan %s at position %d", ErrInvalidRecord, f.ID, s.ID, i)
		}
		if len(f.Issues) == 0 {
			return fmt.Errorf("%w: problem file %s has no issues", ErrInvalidRecord, f.ID)
		}
	}
	return nil
}
