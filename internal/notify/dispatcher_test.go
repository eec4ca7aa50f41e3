package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sydlexius/scanarr/internal/event"
	"github.com/sydlexius/scanarr/internal/scan"
	"github.com/sydlexius/scanarr/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fastOpts = Options{SendTimeout: time.Second, MaxAttempts: 3, RetryBaseDelay: time.Millisecond}

type recordingChannel struct {
	name  string
	fail  int
	mu    sync.Mutex
	calls int
	got   []Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.fail {
		return errors.New("unavailable")
	}
	c.got = append(c.got, msg)
	return nil
}

func (c *recordingChannel) snapshot() (int, []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, append([]Message(nil), c.got...)
}

func newTestDispatcher(t *testing.T, st scan.Store, ch *recordingChannel) *Dispatcher {
	t.Helper()
	d := NewDispatcher(st, fastOpts, testLogger())
	d.channels = func(Config) []Channel { return []Channel{ch} }
	t.Cleanup(d.Close)
	return d
}

func TestDispatcher_HandleEventLoadsCommittedScan(t *testing.T) {
	st := store.NewMemory()
	s := completedScan(0)
	s.ProblemFileIDs = []string{"p1"}
	files := []scan.ProblemFile{{ID: "p1", ScanID: s.ID, Path: "/m/a.mkv", Filename: "a.mkv", Issues: []string{"Custom rule matched: remux"}}}
	require.NoError(t, st.Append(context.Background(), s, files))

	ch := &recordingChannel{name: "rec"}
	d := newTestDispatcher(t, st, ch)

	cfg := DefaultConfig()
	cfg.Triggers = []Trigger{TriggerProblematicFilesFound, TriggerCustomRuleTriggered}
	cfg.Webhooks = []Webhook{{URL: "http://unused"}}

	d.HandleEvent(event.Event{
		Type: event.ScanFinished,
		Data: map[string]any{event.KeyScanID: s.ID, event.KeyNotification: cfg},
	})
	d.Wait()

	_, got := ch.snapshot()
	require.Len(t, got, 2)
	seen := map[Trigger]bool{}
	for _, m := range got {
		seen[m.Event.Trigger] = true
	}
	assert.True(t, seen[TriggerProblematicFilesFound])
	assert.True(t, seen[TriggerCustomRuleTriggered])
}

func TestDispatcher_HandleEventIgnoresUnknownScan(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	d := newTestDispatcher(t, store.NewMemory(), ch)
	cfg := allEnabled()
	cfg.Webhooks = []Webhook{{URL: "http://unused"}}

	d.HandleEvent(event.Event{
		Type: event.ScanFinished,
		Data: map[string]any{event.KeyScanID: "nope", event.KeyNotification: cfg},
	})
	d.HandleEvent(event.Event{Type: event.ScanStarted})
	d.Wait()

	calls, _ := ch.snapshot()
	assert.Zero(t, calls)
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	ch := &recordingChannel{name: "flaky", fail: 2}
	d := newTestDispatcher(t, store.NewMemory(), ch)

	d.Deliver([]Event{{ScanID: "s", Trigger: TriggerScanCompleted, Summary: "done"}}, Config{})
	d.Wait()

	calls, got := ch.snapshot()
	assert.Equal(t, 3, calls)
	assert.Len(t, got, 1)
}

func TestDispatcher_DropsAfterMaxAttempts(t *testing.T) {
	ch := &recordingChannel{name: "down", fail: 100}
	d := newTestDispatcher(t, store.NewMemory(), ch)

	d.Deliver([]Event{{ScanID: "s", Trigger: TriggerScanFailure}}, Config{})
	d.Wait()

	calls, got := ch.snapshot()
	assert.Equal(t, fastOpts.MaxAttempts, calls)
	assert.Empty(t, got)
}

func TestDispatcher_DeliverDoesNotBlockOnSlowChannel(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	d := NewDispatcherWithHTTPClient(store.NewMemory(), srv.Client(),
		Options{SendTimeout: 300 * time.Millisecond, MaxAttempts: 1}, testLogger())
	defer d.Close()

	start := time.Now()
	d.Deliver([]Event{{ScanID: "s", Trigger: TriggerScanCompleted}}, Config{Webhooks: []Webhook{{URL: srv.URL}}})
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	d.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestWebhookChannel_Formats(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[strings.TrimPrefix(r.URL.Path, "/")] = body
		mu.Unlock()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	msg := NewMessage(Event{ScanID: "s1", Trigger: TriggerThresholdExceeded, Summary: "7 problematic files", Timestamp: time.Now()})
	for _, typ := range []string{TypeGeneric, TypeDiscord, TypeSlack, TypeGotify} {
		ch := NewWebhookChannel(Webhook{Name: typ, URL: srv.URL + "/" + typ, Type: typ}, srv.Client())
		require.NoError(t, ch.Send(context.Background(), msg), typ)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "onThresholdExceeded", bodies[TypeGeneric]["event"])
	assert.Equal(t, "s1", bodies[TypeGeneric]["scan_id"])

	embeds, ok := bodies[TypeDiscord]["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)
	assert.Equal(t, "Scanarr: Problem threshold exceeded", embeds[0].(map[string]any)["title"])

	assert.Contains(t, bodies[TypeSlack]["text"], "7 problematic files")
	assert.Equal(t, "Scanarr: Problem threshold exceeded", bodies[TypeGotify]["title"])
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookChannel(Webhook{URL: srv.URL}, srv.Client()).Send(context.Background(), Message{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannel)
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "502")
}

func TestTelegramChannel_Send(t *testing.T) {
	var mu sync.Mutex
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannel(srv.URL, Telegram{BotToken: "123:abc", ChatID: "42"}, srv.Client(), nil)
	require.NoError(t, ch.Send(context.Background(), Message{Title: "T", Text: "body"}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "T\nbody", got["text"])
}

func TestTelegramChannel_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannel(srv.URL, Telegram{BotToken: "secret-token", ChatID: "1"}, srv.Client(), nil)
	err := ch.Send(context.Background(), Message{})
	require.ErrorIs(t, err, ErrChannel)
	assert.Contains(t, err.Error(), "Unauthorized")
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSendTest(t *testing.T) {
	ok := &recordingChannel{name: "ok"}
	bad := &recordingChannel{name: "bad", fail: 1}
	d := NewDispatcher(store.NewMemory(), fastOpts, testLogger())
	defer d.Close()
	d.channels = func(Config) []Channel { return []Channel{ok, bad} }

	err := d.SendTest(context.Background(), Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannel)
	assert.Contains(t, err.Error(), "bad")

	_, got := ok.snapshot()
	assert.Len(t, got, 1)

	d.channels = func(Config) []Channel { return nil }
	assert.ErrorIs(t, d.SendTest(context.Background(), Config{}), ErrNoChannels)
}

func TestBuildChannels(t *testing.T) {
	d := NewDispatcher(store.NewMemory(), Options{}, testLogger())
	defer d.Close()

	assert.Empty(t, d.Channels(Config{Telegram: Telegram{BotToken: "x"}}))
	chs := d.Channels(Config{
		Telegram: Telegram{BotToken: "x", ChatID: "1"},
		Webhooks: []Webhook{{Name: "hook", URL: "http://x", Type: TypeSlack}},
	})
	require.Len(t, chs, 2)
	assert.Equal(t, "telegram", chs[0].Name())
	assert.Equal(t, "webhook:hook", chs[1].Name())
}
