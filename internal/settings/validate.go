package settings

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/sydlexius/scanarr/internal/notify"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("invalid settings")

// FieldError is one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks s and returns a *ValidationError listing every problem,
// or nil.
func (s Settings) Validate() error {
	v := &ValidationError{}

	for i, f := range s.ScanFolders {
		field := fmt.Sprintf("scanFolders[%d]", i)
		switch {
		case strings.TrimSpace(f) == "":
			v.add(field, "path must not be empty")
		case !filepath.IsAbs(f):
			v.add(field, "path %q must be absolute", f)
		}
	}

	if s.ScanFrequencyHours < MinFrequencyHours || s.ScanFrequencyHours > MaxFrequencyHours {
		v.add("scanFrequencyHours", "must be between %d and %d", MinFrequencyHours, MaxFrequencyHours)
	}

	for i, r := range s.CustomRules {
		if strings.TrimSpace(r) == "" {
			v.add(fmt.Sprintf("customRules[%d]", i), "keyword must not be empty")
		}
	}

	n := s.Notification
	if n.ThresholdCount < 1 {
		v.add("notification.thresholdCount", "must be at least 1")
	}
	for i, t := range n.Triggers {
		if !t.Valid() {
			v.add(fmt.Sprintf("notification.triggers[%d]", i), "unknown trigger %q", t)
		}
	}
	hasToken := n.Telegram.BotToken != ""
	hasChat := n.Telegram.ChatID != ""
	if hasToken != hasChat {
		if hasToken {
			v.add("notification.telegram.chatId", "required when a bot token is set")
		} else {
			v.add("notification.telegram.botToken", "required when a chat id is set")
		}
	}
	for i, w := range n.Webhooks {
		field := fmt.Sprintf("notification.webhooks[%d]", i)
		if w.URL == "" {
			v.add(field+".url", "must not be empty")
		} else if u, err := url.Parse(w.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.add(field+".url", "must be an http or https URL")
		}
		if !notify.ValidWebhookType(w.Type) {
			v.add(field+".type", "unknown webhook type %q", w.Type)
		}
	}

	if len(v.Fields) > 0 {
		return v
	}
	return nil
}
