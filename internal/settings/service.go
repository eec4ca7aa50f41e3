package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sydlexius/scanarr/internal/encryption"
)

// Keys in the settings table.
const (
	keyScanFolders   = "scan.folders"
	keyScanFrequency = "scan.frequency_hours"
	keyCustomRules   = "rules.custom"
	keyTriggers      = "notification.triggers"
	keyThreshold     = "notification.threshold_count"
	keyBotToken      = "notification.telegram.bot_token"
	keyChatID        = "notification.telegram.chat_id"
	keyWebhooks      = "notification.webhooks"
)

// Service loads and stores Settings in the database key-value table. The
// Telegram bot token is stored sealed.
type Service struct {
	db  *sql.DB
	enc *encryption.Encryptor
}

// NewService creates a settings service.
func NewService(db *sql.DB, enc *encryption.Encryptor) *Service {
	return &Service{db: db, enc: enc}
}

// Get returns a snapshot of the stored settings, filling defaults for keys
// that were never saved. The result shares no memory with the service.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Settings{}, fmt.Errorf("scanning setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("iterating settings: %w", err)
	}

	out := Default()
	if err := decodeJSON(values, keyScanFolders, &out.ScanFolders); err != nil {
		return Settings{}, err
	}
	if err := decodeJSON(values, keyCustomRules, &out.CustomRules); err != nil {
		return Settings{}, err
	}
	if err := decodeJSON(values, keyTriggers, &out.Notification.Triggers); err != nil {
		return Settings{}, err
	}
	if err := decodeJSON(values, keyWebhooks, &out.Notification.Webhooks); err != nil {
		return Settings{}, err
	}
	if err := decodeInt(values, keyScanFrequency, &out.ScanFrequencyHours); err != nil {
		return Settings{}, err
	}
	if err := decodeInt(values, keyThreshold, &out.Notification.ThresholdCount); err != nil {
		return Settings{}, err
	}
	out.Notification.Telegram.ChatID = values[keyChatID]
	if sealed := values[keyBotToken]; sealed != "" {
		token, err := s.enc.Open(sealed)
		if err != nil {
			return Settings{}, fmt.Errorf("decrypting telegram bot token: %w", err)
		}
		out.Notification.Telegram.BotToken = token
	}
	return out, nil
}

// Save normalizes and validates in, then writes every key in one
// transaction. It returns the stored form.
func (s *Service) Save(ctx context.Context, in Settings) (Settings, error) {
	next := in.Normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}

	token, err := s.enc.Seal(next.Notification.Telegram.BotToken)
	if err != nil {
		return Settings{}, fmt.Errorf("encrypting telegram bot token: %w", err)
	}

	values := map[string]string{
		keyScanFrequency: strconv.Itoa(next.ScanFrequencyHours),
		keyThreshold:     strconv.Itoa(next.Notification.ThresholdCount),
		keyChatID:        next.Notification.Telegram.ChatID,
		keyBotToken:      token,
	}
	for key, v := range map[string]any{
		keyScanFolders: next.ScanFolders,
		keyCustomRules: next.CustomRules,
		keyTriggers:    next.Notification.Triggers,
		keyWebhooks:    next.Notification.Webhooks,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return Settings{}, fmt.Errorf("encoding %s: %w", key, err)
		}
		values[key] = string(b)
	}

	if err := s.write(ctx, values); err != nil {
		return Settings{}, err
	}
	return next.Clone(), nil
}

// ResetCredentials removes the stored Telegram credentials and webhooks.
func (s *Service) ResetCredentials(ctx context.Context) error {
	return s.write(ctx, map[string]string{
		keyBotToken: "",
		keyChatID:   "",
		keyWebhooks: "[]",
	})
}

func (s *Service) write(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now)
		if err != nil {
			return fmt.Errorf("upserting setting %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

// Masked returns a copy of s that is safe to show: the bot token is
// replaced by a fixed placeholder when set.
func Masked(s Settings) Settings {
	out := s.Clone()
	if out.Notification.Telegram.BotToken != "" {
		out.Notification.Telegram.BotToken = MaskedToken
	}
	return out
}

// MaskedToken stands in for a stored bot token in API responses. Saving it
// back keeps the stored token.
const MaskedToken = "********"

// Unmask replaces a MaskedToken in next with the token from current.
func Unmask(next, current Settings) Settings {
	if next.Notification.Telegram.BotToken == MaskedToken {
		next.Notification.Telegram.BotToken = current.Notification.Telegram.BotToken
	}
	return next
}

func decodeJSON(values map[string]string, key string, dst any) error {
	raw, ok := values[key]
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return nil
}

func decodeInt(values map[string]string, key string, dst *int) error {
	raw, ok := values[key]
	if !ok || raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	*dst = n
	return nil
}
