package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram allows about one message per second per chat.
var telegramRate = rate.Every(time.Second)

// TelegramChannel posts messages through the Telegram Bot API.
type TelegramChannel struct {
	baseURL string
	creds   Telegram
	client  *http.Client
	limiter *rate.Limiter
}

// NewTelegramChannel creates a channel for the given credentials. The limiter
// may be shared between channels that post to the same chat.
func NewTelegramChannel(baseURL string, creds Telegram, client *http.Client, limiter *rate.Limiter) *TelegramChannel {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	if limiter == nil {
		limiter = rate.NewLimiter(telegramRate, 1)
	}
	return &TelegramChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  client,
		limiter: limiter,
	}
}

// Name implements Channel.
func (c *TelegramChannel) Name() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements Channel.
func (c *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return channelErr(c.Name(), "waiting for rate limit: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  c.creds.ChatID,
		"text":                     msg.Title + "\n" + msg.Text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return channelErr(c.Name(), "encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.creds.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		// The URL embeds the token; never include it in the error.
		return channelErr(c.Name(), "creating request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return channelErr(c.Name(), "sending request: %w", redactToken(err, c.creds.BotToken))
	}
	defer resp.Body.Close() //nolint:errcheck

	var tr telegramResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &tr)

	if resp.StatusCode >= 400 || !tr.OK {
		desc := tr.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return channelErr(c.Name(), "status %d: %s", resp.StatusCode, desc)
	}
	return nil
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>")}
}
