// Package stats derives dashboard rollups from committed scans.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/scanarr/internal/scan"
)

// WindowDays is the length of the daily scan-count series.
const WindowDays = 90

const dayLayout = "2006-01-02"

// DailyCount is the number of scans started on one UTC calendar day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Statistics summarizes every stored scan.
type Statistics struct {
	TotalScans        int                 `json:"total_scans"`
	TotalProblemFiles int                 `json:"total_problem_files"`
	FilesChecked      int                 `json:"files_checked"`
	LastScanDate      *time.Time          `json:"last_scan_date"`
	LastScanID        string              `json:"last_scan_id"`
	ScansByStatus     map[scan.Status]int `json:"scans_by_status"`
	Daily             []DailyCount        `json:"daily"`
}

// Lister reads committed scans.
type Lister interface {
	List(ctx context.Context, f scan.ScanFilter) ([]scan.Scan, error)
}

// Aggregator computes Statistics from a Result Store on demand. It reads
// only committed scans, so it never waits on a running one.
type Aggregator struct {
	store  Lister
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates a statistics aggregator.
func NewAggregator(store Lister, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger.With(slog.String("component", "stats")),
		now:    time.Now,
	}
}

// Statistics loads every stored scan and summarizes it.
func (a *Aggregator) Statistics(ctx context.Context) (Statistics, error) {
	scans, err := a.store.List(ctx, scan.ScanFilter{})
	if err != nil {
		return Statistics{}, fmt.Errorf("listing scans for statistics: %w", err)
	}
	st := Compute(scans, a.now())
	a.logger.Debug("statistics computed", "scans", st.TotalScans, "problem_files", st.TotalProblemFiles)
	return st, nil
}

// Compute summarizes scans as of now. Daily covers the WindowDays UTC days
// ending on now's day, ascending, with zero entries for days without scans.
func Compute(scans []scan.Scan, now time.Time) Statistics {
	today := now.UTC().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(WindowDays - 1))

	st := Statistics{
		ScansByStatus: make(map[scan.Status]int),
		Daily:         make([]DailyCount, WindowDays),
	}
	for i := range WindowDays {
		st.Daily[i].Date = first.AddDate(0, 0, i).Format(dayLayout)
	}

	var last *scan.Scan
	for i := range scans {
		s := &scans[i]
		st.TotalScans++
		st.TotalProblemFiles += len(s.ProblemFileIDs)
		st.ScansByStatus[s.Status]++
		if s.Status == scan.StatusCompleted {
			st.FilesChecked += s.FilesChecked
		}
		if last == nil || s.StartedAt.After(last.StartedAt) {
			last = s
		}

		day := s.StartedAt.UTC().Truncate(24 * time.Hour)
		if idx := int(day.Sub(first) / (24 * time.Hour)); !day.Before(first) && idx < WindowDays {
			st.Daily[idx].Count++
		}
	}

	if last != nil {
		started := last.StartedAt
		st.LastScanDate = &started
		st.LastScanID = last.ID
	}
	return st
}
