package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/scanarr/internal/scan"
)

func completedScan(problems int) scan.Scan {
	done := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	s := scan.Scan{
		ID:             "scan-1",
		StartedAt:      done.Add(-time.Minute),
		CompletedAt:    &done,
		RootFolders:    []string{"/media/movies"},
		FilesChecked:   40,
		ProblemFileIDs: []string{},
		Status:         scan.StatusCompleted,
	}
	for range problems {
		s.ProblemFileIDs = append(s.ProblemFileIDs, "p")
	}
	return s
}

func allEnabled() Config {
	cfg := DefaultConfig()
	cfg.Triggers = append([]Trigger(nil), AllTriggers...)
	return cfg
}

func triggers(events []Event) []Trigger {
	var out []Trigger
	for _, e := range events {
		out = append(out, e.Trigger)
	}
	return out
}

func TestEvaluate_ThresholdBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Triggers = []Trigger{TriggerThresholdExceeded}
	cfg.ThresholdCount = 5

	assert.Empty(t, Evaluate(completedScan(4), nil, cfg))

	events := Evaluate(completedScan(5), nil, cfg)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerThresholdExceeded, events[0].Trigger)
	assert.Equal(t, 5, events[0].ProblemCount)
	assert.Contains(t, events[0].Summary, "threshold of 5")
}

func TestEvaluate_OneEventPerTrigger(t *testing.T) {
	s := completedScan(6)
	files := []scan.ProblemFile{
		{Issues: []string{"Contains HEVC content", "Custom rule matched: hevc"}},
		{Issues: []string{"Custom rule matched: x265", "Custom rule matched: hevc"}},
		{Issues: []string{"No embedded subtitles"}},
	}

	events := Evaluate(s, files, allEnabled())
	assert.Equal(t, []Trigger{
		TriggerScanCompleted,
		TriggerProblematicFilesFound,
		TriggerThresholdExceeded,
		TriggerCustomRuleTriggered,
	}, triggers(events))

	custom := events[3]
	assert.Equal(t, "Custom rules matched 2 files: hevc, x265.", custom.Summary)
	for _, e := range events {
		assert.Equal(t, "scan-1", e.ScanID)
		assert.NotEmpty(t, e.Summary)
	}
}

func TestEvaluate_CleanScan(t *testing.T) {
	events := Evaluate(completedScan(0), nil, allEnabled())
	assert.Equal(t, []Trigger{TriggerScanCompleted}, triggers(events))
}

func TestEvaluate_DisabledTriggersDoNotFire(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Triggers = []Trigger{TriggerScanFailure}
	assert.Empty(t, Evaluate(completedScan(10), nil, cfg))
}

func TestEvaluate_Failed(t *testing.T) {
	s := completedScan(0)
	s.Status = scan.StatusFailed
	s.Error = "root folder unreachable: /media/movies"

	events := Evaluate(s, nil, allEnabled())
	require.Equal(t, []Trigger{TriggerScanFailure}, triggers(events))
	assert.Contains(t, events[0].Summary, "root folder unreachable")
}

func TestEvaluate_CancelledNeverNotifies(t *testing.T) {
	s := completedScan(0)
	s.Status = scan.StatusCancelled
	assert.Empty(t, Evaluate(s, nil, allEnabled()))

	s.Status = scan.StatusRunning
	assert.Empty(t, Evaluate(s, nil, allEnabled()))
}

func TestEvaluate_ZeroThresholdFallsBackToDefault(t *testing.T) {
	cfg := Config{Triggers: []Trigger{TriggerThresholdExceeded}}
	assert.Empty(t, Evaluate(completedScan(DefaultThreshold-1), nil, cfg))
	assert.Len(t, Evaluate(completedScan(DefaultThreshold), nil, cfg), 1)
}

func TestConfigClone(t *testing.T) {
	cfg := allEnabled()
	cfg.Webhooks = []Webhook{{URL: "http://a"}}
	c := cfg.Clone()
	c.Triggers[0] = "changed"
	c.Webhooks[0].URL = "http://b"
	assert.Equal(t, TriggerScanCompleted, cfg.Triggers[0])
	assert.Equal(t, "http://a", cfg.Webhooks[0].URL)
}
