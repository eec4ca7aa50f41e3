package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/scanarr/internal/database"
	"github.com/sydlexius/scanarr/internal/encryption"
	"github.com/sydlexius/scanarr/internal/notify"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := database.OpenMigrated(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	enc, _, err := encryption.NewEncryptor("")
	require.NoError(t, err)
	return NewService(db, enc)
}

func valid() Settings {
	s := Default()
	s.ScanFolders = []string{"/media/movies", "/media/tv"}
	s.CustomRules = []string{"x265"}
	s.Notification.Triggers = []notify.Trigger{notify.TriggerThresholdExceeded}
	s.Notification.Telegram = notify.Telegram{BotToken: "123:abc", ChatID: "42"}
	return s
}

func fieldNames(err error) []string {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	var out []string
	for _, f := range ve.Fields {
		out = append(out, f.Field)
	}
	return out
}

func TestDefault(t *testing.T) {
	d := Default()
	assert.Equal(t, 24, d.ScanFrequencyHours)
	assert.Equal(t, 5, d.Notification.ThresholdCount)
	assert.Empty(t, d.Notification.Triggers)
	assert.Empty(t, d.ScanFolders)
	assert.NoError(t, d.Validate())
}

func TestValidate_CollectsEveryField(t *testing.T) {
	s := Default()
	s.ScanFolders = []string{"", "relative/dir"}
	s.ScanFrequencyHours = 169
	s.CustomRules = []string{"ok", "   "}
	s.Notification.ThresholdCount = 0
	s.Notification.Triggers = []notify.Trigger{"onSomething"}
	s.Notification.Telegram = notify.Telegram{BotToken: "only-token"}
	s.Notification.Webhooks = []notify.Webhook{{URL: "ftp://host", Type: "pager"}}

	err := s.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{
		"scanFolders[0]",
		"scanFolders[1]",
		"scanFrequencyHours",
		"customRules[1]",
		"notification.thresholdCount",
		"notification.triggers[0]",
		"notification.telegram.chatId",
		"notification.webhooks[0].url",
		"notification.webhooks[0].type",
	}, fieldNames(err))
}

func TestValidate_FrequencyBounds(t *testing.T) {
	for _, tc := range []struct {
		hours int
		ok    bool
	}{{0, false}, {1, true}, {168, true}, {169, false}} {
		s := Default()
		s.ScanFrequencyHours = tc.hours
		if tc.ok {
			assert.NoError(t, s.Validate(), tc.hours)
		} else {
			assert.ErrorIs(t, s.Validate(), ErrValidation, tc.hours)
		}
	}
}

func TestValidate_ChatIDWithoutToken(t *testing.T) {
	s := Default()
	s.Notification.Telegram.ChatID = "42"
	assert.Equal(t, []string{"notification.telegram.botToken"}, fieldNames(s.Validate()))
}

func TestNormalize(t *testing.T) {
	s := Default()
	s.ScanFolders = []string{" /media/movies/ ", "/media/movies", "/media/tv/../tv"}
	s.CustomRules = []string{" x265 ", "X265", "", "remux"}
	s.Notification.Triggers = []notify.Trigger{notify.TriggerScanFailure, notify.TriggerScanFailure}
	s.Notification.Webhooks = []notify.Webhook{{URL: " http://hook "}}

	n := s.Normalize()
	assert.Equal(t, []string{"/media/movies", "/media/tv"}, n.ScanFolders)
	assert.Equal(t, []string{"x265", "", "remux"}, n.CustomRules)
	assert.Equal(t, []notify.Trigger{notify.TriggerScanFailure}, n.Notification.Triggers)
	assert.Equal(t, "http://hook", n.Notification.Webhooks[0].URL)
	assert.Equal(t, notify.TypeGeneric, n.Notification.Webhooks[0].Type)

	// the input is untouched
	assert.Equal(t, " http://hook ", s.Notification.Webhooks[0].URL)
}

func TestService_GetDefaults(t *testing.T) {
	svc := newService(t)
	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestService_SaveRoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	in := valid()
	in.Notification.Webhooks = []notify.Webhook{{Name: "discord", URL: "https://discord.example/hook", Type: notify.TypeDiscord}}
	saved, err := svc.Save(ctx, in)
	require.NoError(t, err)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, "123:abc", got.Notification.Telegram.BotToken)

	var raw string
	require.NoError(t, svc.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keyBotToken).Scan(&raw))
	assert.True(t, encryption.IsSealed(raw))
	assert.NotContains(t, raw, "123:abc")
}

func TestService_SaveRejectsInvalid(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Save(ctx, valid())
	require.NoError(t, err)

	bad := valid()
	bad.CustomRules = []string{""}
	_, err = svc.Save(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x265"}, got.CustomRules)
}

func TestService_GetReturnsIndependentCopies(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Save(ctx, valid())
	require.NoError(t, err)

	a, err := svc.Get(ctx)
	require.NoError(t, err)
	a.ScanFolders[0] = "/changed"

	b, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/media/movies", b.ScanFolders[0])
}

func TestService_ResetCredentials(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	in := valid()
	in.Notification.Webhooks = []notify.Webhook{{URL: "http://hook", Type: notify.TypeGeneric}}
	_, err := svc.Save(ctx, in)
	require.NoError(t, err)

	require.NoError(t, svc.ResetCredentials(ctx))
	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.Telegram{}, got.Notification.Telegram)
	assert.Empty(t, got.Notification.Webhooks)
	assert.Equal(t, []string{"/media/movies", "/media/tv"}, got.ScanFolders)
}

func TestMaskUnmask(t *testing.T) {
	s := valid()
	m := Masked(s)
	assert.Equal(t, MaskedToken, m.Notification.Telegram.BotToken)
	assert.Equal(t, "123:abc", s.Notification.Telegram.BotToken)

	back := Unmask(m, s)
	assert.Equal(t, "123:abc", back.Notification.Telegram.BotToken)
}

func TestRuleset(t *testing.T) {
	s := valid()
	s.CustomRules = []string{"x265", "REMUX"}
	assert.Equal(t, []string{"x265", "REMUX"}, s.Ruleset().CustomKeywords())
}
