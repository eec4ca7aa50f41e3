package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sydlexius/scanarr/internal/version"
)

// WebhookChannel posts a JSON payload to a configured URL.
type WebhookChannel struct {
	hook   Webhook
	client *http.Client
}

// NewWebhookChannel creates a channel for one webhook.
func NewWebhookChannel(hook Webhook, client *http.Client) *WebhookChannel {
	return &WebhookChannel{hook: hook, client: client}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string {
	if c.hook.Name != "" {
		return "webhook:" + c.hook.Name
	}
	return "webhook:" + c.hook.Type
}

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, contentType := formatPayload(c.hook.Type, msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hook.URL, bytes.NewReader(body))
	if err != nil {
		return channelErr(c.Name(), "creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "Scanarr-Webhook/"+version.Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return channelErr(c.Name(), "sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return channelErr(c.Name(), "unexpected status %d", resp.StatusCode)
	}
	return nil
}

// formatPayload returns the request body and content-type for a delivery.
func formatPayload(webhookType string, msg Message) ([]byte, string) {
	switch webhookType {
	case TypeDiscord:
		return formatDiscord(msg)
	case TypeSlack:
		return formatSlack(msg)
	case TypeGotify:
		return formatGotify(msg)
	default:
		return formatGeneric(msg)
	}
}

func formatGeneric(msg Message) ([]byte, string) {
	payload := map[string]any{
		"event":         string(msg.Event.Trigger),
		"title":         msg.Title,
		"summary":       msg.Event.Summary,
		"scan_id":       msg.Event.ScanID,
		"status":        string(msg.Event.Status),
		"problem_count": msg.Event.ProblemCount,
		"timestamp":     msg.Event.Timestamp,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDiscord(msg Message) ([]byte, string) {
	color := 3447003 // blue
	if msg.Event.Trigger == TriggerScanFailure || msg.Event.Trigger == TriggerThresholdExceeded {
		color = 15158332 // red
	}
	embed := map[string]any{
		"title":       msg.Title,
		"description": msg.Text,
		"color":       color,
	}
	if !msg.Event.Timestamp.IsZero() {
		embed["timestamp"] = msg.Event.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
	}
	body, _ := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	return body, "application/json"
}

func formatSlack(msg Message) ([]byte, string) {
	body, _ := json.Marshal(map[string]any{
		"text": fmt.Sprintf("*%s*\n%s", msg.Title, msg.Text),
	})
	return body, "application/json"
}

func formatGotify(msg Message) ([]byte, string) {
	priority := 5
	if msg.Event.Trigger == TriggerScanFailure {
		priority = 8
	}
	body, _ := json.Marshal(map[string]any{
		"title":    msg.Title,
		"message":  msg.Text,
		"priority": priority,
	})
	return body, "application/json"
}
