package scan

import (
	"strings"
	"time"
)

// ScanFilter narrows a scan listing. Zero values match everything.
type ScanFilter struct {
	// Search matches case-insensitively against the scan ID and root folders.
	Search string
	// From and To bound StartedAt; From is inclusive, To is exclusive.
	From time.Time
	To   time.Time
	// Status restricts to one status when set.
	Status Status
	// WithProblems keeps only scans that recorded at least one problem file.
	WithProblems bool
	// Limit caps the result size when positive.
	Limit int
}

// Match reports whether s passes the filter, ignoring Limit.
func (f ScanFilter) Match(s Scan) bool {
	if !f.From.IsZero() && s.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartedAt.Before(f.To) {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.WithProblems && len(s.ProblemFileIDs) == 0 {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if strings.Contains(strings.ToLower(s.ID), q) {
			return true
		}
		for _, r := range s.RootFolders {
			if strings.Contains(strings.ToLower(r), q) {
				return true
			}
		}
		return false
	}
	return true
}

// ProblemFileFilter narrows a problem-file listing.
type ProblemFileFilter struct {
	ScanID string
	// Search matches case-insensitively against path, filename and issues.
	Search string
	Limit  int
}

// Match reports whether p passes the filter, ignoring Limit.
func (f ProblemFileFilter) Match(p ProblemFile) bool {
	if f.ScanID != "" && p.ScanID != f.ScanID {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Path), q) || strings.Contains(strings.ToLower(p.Filename), q) {
		return true
	}
	for _, issue := range p.Issues {
		if strings.Contains(strings.ToLower(issue), q) {
			return true
		}
	}
	return false
}

// DayRange converts inclusive calendar days (UTC) into a [from, to) filter
// window. Either bound may be zero.
func DayRange(fromDay, toDay time.Time) (from, to time.Time) {
	if !fromDay.IsZero() {
		from = truncateDay(fromDay)
	}
	if !toDay.IsZero() {
		to = truncateDay(toDay).AddDate(0, 0, 1)
	}
	return from, to
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
