// Package settings holds the user-editable configuration that scans and
// notifications run against.
package settings

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/sydlexius/scanarr/internal/notify"
	"github.com/sydlexius/scanarr/internal/rule"
)

// Scan frequency bounds, in hours.
const (
	MinFrequencyHours     = 1
	MaxFrequencyHours     = 168
	DefaultFrequencyHours = 24
)

// Settings is the persisted user configuration.
type Settings struct {
	ScanFolders        []string      `json:"scanFolders"`
	ScanFrequencyHours int           `json:"scanFrequencyHours"`
	CustomRules        []string      `json:"customRules"`
	Notification       notify.Config `json:"notification"`
}

// Default returns the settings of a fresh install.
func Default() Settings {
	return Settings{
		ScanFolders:        []string{},
		ScanFrequencyHours: DefaultFrequencyHours,
		CustomRules:        []string{},
		Notification:       notify.DefaultConfig(),
	}
}

// Clone returns a deep copy. A clone is the snapshot a scan runs against.
func (s Settings) Clone() Settings {
	out := s
	out.ScanFolders = slices.Clone(s.ScanFolders)
	out.CustomRules = slices.Clone(s.CustomRules)
	out.Notification = s.Notification.Clone()
	return out
}

// Ruleset returns the classifier rules for these settings.
func (s Settings) Ruleset() rule.Ruleset {
	return rule.NewRuleset(s.CustomRules)
}

// Normalize trims whitespace, cleans folder paths and removes duplicates.
// Blank entries are kept so Validate can report them.
func (s Settings) Normalize() Settings {
	out := s.Clone()

	seenFolder := make(map[string]bool)
	folders := make([]string, 0, len(out.ScanFolders))
	for _, f := range out.ScanFolders {
		f = strings.TrimSpace(f)
		if f != "" {
			f = filepath.Clean(f)
		}
		if f != "" && seenFolder[f] {
			continue
		}
		seenFolder[f] = true
		folders = append(folders, f)
	}
	out.ScanFolders = folders

	seenRule := make(map[string]bool)
	rules := make([]string, 0, len(out.CustomRules))
	for _, r := range out.CustomRules {
		r = strings.TrimSpace(r)
		key := strings.ToLower(r)
		if r != "" && seenRule[key] {
			continue
		}
		seenRule[key] = true
		rules = append(rules, r)
	}
	out.CustomRules = rules

	n := &out.Notification
	n.Telegram.BotToken = strings.TrimSpace(n.Telegram.BotToken)
	n.Telegram.ChatID = strings.TrimSpace(n.Telegram.ChatID)
	triggers := make([]notify.Trigger, 0, len(n.Triggers))
	for _, t := range n.Triggers {
		if !slices.Contains(triggers, t) {
			triggers = append(triggers, t)
		}
	}
	n.Triggers = triggers
	for i := range n.Webhooks {
		n.Webhooks[i].URL = strings.TrimSpace(n.Webhooks[i].URL)
		n.Webhooks[i].Name = strings.TrimSpace(n.Webhooks[i].Name)
		if n.Webhooks[i].Type == "" {
			n.Webhooks[i].Type = notify.TypeGeneric
		}
	}
	if n.Webhooks == nil {
		n.Webhooks = []notify.Webhook{}
	}
	return out
}
