package notify

import (
	"fmt"
	"slices"
	"time"

	"github.com/sydlexius/scanarr/internal/scan"
)

// Trigger names a condition that decides whether a terminal scan notifies.
type Trigger string

// Notification triggers, in evaluation order.
const (
	TriggerScanCompleted         Trigger = "onScanCompleted"
	TriggerProblematicFilesFound Trigger = "onProblematicFilesFound"
	TriggerThresholdExceeded     Trigger = "onThresholdExceeded"
	TriggerCustomRuleTriggered   Trigger = "onCustomRuleTriggered"
	TriggerScanFailure           Trigger = "onScanFailure"
)

// AllTriggers lists every trigger in evaluation order.
var AllTriggers = []Trigger{
	TriggerScanCompleted,
	TriggerProblematicFilesFound,
	TriggerThresholdExceeded,
	TriggerCustomRuleTriggered,
	TriggerScanFailure,
}

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	return slices.Contains(AllTriggers, t)
}

// Title is the short human label for the trigger.
func (t Trigger) Title() string {
	switch t {
	case TriggerScanCompleted:
		return "Scan completed"
	case TriggerProblematicFilesFound:
		return "Problematic files found"
	case TriggerThresholdExceeded:
		return "Problem threshold exceeded"
	case TriggerCustomRuleTriggered:
		return "Custom rule triggered"
	case TriggerScanFailure:
		return "Scan failed"
	default:
		return string(t)
	}
}

// Webhook payload formats.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// ValidWebhookType reports whether t is a supported payload format.
func ValidWebhookType(t string) bool {
	switch t {
	case TypeGeneric, TypeDiscord, TypeSlack, TypeGotify:
		return true
	}
	return false
}

// DefaultThreshold is the problem-file count used when none is configured.
const DefaultThreshold = 5

// Telegram holds the bot credentials. Both fields are required together.
type Telegram struct {
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}

// Configured reports whether both credentials are present.
func (t Telegram) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Webhook is an outbound HTTP endpoint that receives notifications.
type Webhook struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Config is the notification part of the user settings. A copy is taken at
// scan start and used for that scan only.
type Config struct {
	Triggers       []Trigger `json:"triggers"`
	ThresholdCount int       `json:"thresholdCount"`
	Telegram       Telegram  `json:"telegram"`
	Webhooks       []Webhook `json:"webhooks"`
}

// DefaultConfig returns the configuration for a fresh install: no triggers
// enabled and the default threshold.
func DefaultConfig() Config {
	return Config{
		Triggers:       []Trigger{},
		ThresholdCount: DefaultThreshold,
		Webhooks:       []Webhook{},
	}
}

// Enabled reports whether trigger t is switched on.
func (c Config) Enabled(t Trigger) bool {
	return slices.Contains(c.Triggers, t)
}

// HasChannels reports whether any delivery channel is configured.
func (c Config) HasChannels() bool {
	return c.Telegram.Configured() || len(c.Webhooks) > 0
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.Triggers = slices.Clone(c.Triggers)
	out.Webhooks = slices.Clone(c.Webhooks)
	return out
}

// Event is one fired trigger for one terminal scan.
type Event struct {
	ScanID       string      `json:"scan_id"`
	Trigger      Trigger     `json:"trigger"`
	Summary      string      `json:"summary"`
	Status       scan.Status `json:"status"`
	ProblemCount int         `json:"problem_count"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Message is what a channel delivers.
type Message struct {
	Title string
	Text  string
	Event Event
}

// NewMessage renders the message for an event.
func NewMessage(e Event) Message {
	return Message{
		Title: "Scanarr: " + e.Trigger.Title(),
		Text:  fmt.Sprintf("%s\nScan: %s", e.Summary, e.ScanID),
		Event: e,
	}
}
