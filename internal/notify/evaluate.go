package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sydlexius/scanarr/internal/rule"
	"github.com/sydlexius/scanarr/internal/scan"
)

// Evaluate runs one pass over AllTriggers for a terminal scan and returns
// one Event per fired trigger, in trigger order. It has no side effects.
// Running and cancelled scans never produce events.
func Evaluate(s scan.Scan, files []scan.ProblemFile, cfg Config) []Event {
	if s.Status != scan.StatusCompleted && s.Status != scan.StatusFailed {
		return nil
	}
	at := time.Now().UTC()
	if s.CompletedAt != nil {
		at = s.CompletedAt.UTC()
	}
	threshold := cfg.ThresholdCount
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	problems := len(s.ProblemFileIDs)

	var events []Event
	for _, t := range AllTriggers {
		if !cfg.Enabled(t) {
			continue
		}
		var summary string
		switch t {
		case TriggerScanCompleted:
			if s.Status != scan.StatusCompleted {
				continue
			}
			summary = fmt.Sprintf("Scan of %s completed: %d files checked, %d problematic, %d skipped.",
				rootsLabel(s.RootFolders), s.FilesChecked, problems, s.SkippedCount)
		case TriggerProblematicFilesFound:
			if problems == 0 {
				continue
			}
			summary = fmt.Sprintf("Found %s in %s.", plural(problems, "problematic file"), rootsLabel(s.RootFolders))
		case TriggerThresholdExceeded:
			if problems < threshold {
				continue
			}
			summary = fmt.Sprintf("%s reached the threshold of %d.", plural(problems, "problematic file"), threshold)
		case TriggerCustomRuleTriggered:
			keywords, hits := customMatches(files)
			if hits == 0 {
				continue
			}
			summary = fmt.Sprintf("Custom rules matched %s: %s.", plural(hits, "file"), strings.Join(keywords, ", "))
		case TriggerScanFailure:
			if s.Status != scan.StatusFailed {
				continue
			}
			reason := s.Error
			if reason == "" {
				reason = "unknown error"
			}
			summary = fmt.Sprintf("Scan of %s failed: %s", rootsLabel(s.RootFolders), reason)
		}
		events = append(events, Event{
			ScanID:       s.ID,
			Trigger:      t,
			Summary:      summary,
			Status:       s.Status,
			ProblemCount: problems,
			Timestamp:    at,
		})
	}
	return events
}

// customMatches returns the distinct custom keywords seen across files, in
// first-seen order, and the number of files with at least one custom issue.
func customMatches(files []scan.ProblemFile) ([]string, int) {
	var keywords []string
	seen := make(map[string]bool)
	hits := 0
	for _, f := range files {
		matched := false
		for _, issue := range f.Issues {
			if !rule.IsCustomIssue(issue) {
				continue
			}
			matched = true
			kw := strings.TrimPrefix(issue, rule.CustomIssuePrefix)
			if !seen[kw] {
				seen[kw] = true
				keywords = append(keywords, kw)
			}
		}
		if matched {
			hits++
		}
	}
	return keywords, hits
}

func rootsLabel(roots []string) string {
	switch len(roots) {
	case 0:
		return "no folders"
	case 1:
		return roots[0]
	default:
		return fmt.Sprintf("%s and %d more", roots[0], len(roots)-1)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
