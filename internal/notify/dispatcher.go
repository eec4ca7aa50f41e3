package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sydlexius/scanarr/internal/event"
	"github.com/sydlexius/scanarr/internal/scan"
)

// Options bounds delivery work.
type Options struct {
	SendTimeout    time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// TelegramAPI overrides the Bot API base URL.
	TelegramAPI string
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	return o
}

// Dispatcher turns terminal scans into notifications and delivers them in
// the background. Delivery failures are logged and dropped.
type Dispatcher struct {
	store      scan.Store
	httpClient *http.Client
	logger     *slog.Logger
	opts       Options
	limiter    *rate.Limiter

	// channels builds the delivery channels for a config; replaced in tests.
	channels func(Config) []Channel

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// NewDispatcher creates a dispatcher that reads committed scans from store.
func NewDispatcher(store scan.Store, opts Options, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(store, &http.Client{}, opts, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(store scan.Store, httpClient *http.Client, opts Options, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "notify-dispatcher")),
		opts:       opts.withDefaults(),
		limiter:    rate.NewLimiter(telegramRate, 1),
		stop:       make(chan struct{}),
	}
	d.channels = d.buildChannels
	return d
}

// Channels returns the delivery channels configured in cfg.
func (d *Dispatcher) Channels(cfg Config) []Channel {
	return d.channels(cfg)
}

func (d *Dispatcher) buildChannels(cfg Config) []Channel {
	var out []Channel
	if cfg.Telegram.Configured() {
		out = append(out, NewTelegramChannel(d.opts.TelegramAPI, cfg.Telegram, d.httpClient, d.limiter))
	}
	for _, w := range cfg.Webhooks {
		out = append(out, NewWebhookChannel(w, d.httpClient))
	}
	return out
}

// HandleEvent is an event.Handler for event.ScanFinished. The event carries
// the scan ID and the notification config captured when the scan started;
// the scan itself is re-read from the store so only committed data is used.
func (d *Dispatcher) HandleEvent(e event.Event) {
	if e.Type != event.ScanFinished {
		return
	}
	id := e.String(event.KeyScanID)
	cfg, ok := e.Data[event.KeyNotification].(Config)
	if id == "" || !ok {
		d.logger.Warn("scan finished event missing scan id or notification config", "scan_id", id)
		return
	}
	if len(cfg.Triggers) == 0 || !cfg.HasChannels() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := d.store.Get(ctx, id)
	if err != nil {
		d.logger.Error("loading scan for notification", "scan_id", id, "error", err)
		return
	}
	var files []scan.ProblemFile
	if len(s.ProblemFileIDs) > 0 {
		files, err = d.store.ListProblemFiles(ctx, scan.ProblemFileFilter{ScanID: id})
		if err != nil {
			d.logger.Error("loading problem files for notification", "scan_id", id, "error", err)
			return
		}
	}

	d.Deliver(Evaluate(s, files, cfg), cfg)
}

// Deliver sends each event to every configured channel. It returns at once;
// each send runs on its own goroutine.
func (d *Dispatcher) Deliver(events []Event, cfg Config) {
	if len(events) == 0 {
		return
	}
	channels := d.channels(cfg)
	for _, ev := range events {
		msg := NewMessage(ev)
		for _, ch := range channels {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.deliver(ch, msg)
			}()
		}
	}
}

func (d *Dispatcher) deliver(ch Channel, msg Message) {
	var lastErr error
	for attempt := range d.opts.MaxAttempts {
		if attempt > 0 {
			backoff := d.opts.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-d.stop:
				d.logger.Warn("notification dropped on shutdown",
					"channel", ch.Name(),
					"trigger", string(msg.Event.Trigger),
					"scan_id", msg.Event.ScanID,
				)
				return
			}
		}

		lastErr = d.sendOnce(ch, msg)
		if lastErr == nil {
			d.logger.Debug("notification delivered",
				"channel", ch.Name(),
				"trigger", string(msg.Event.Trigger),
				"scan_id", msg.Event.ScanID,
				"attempt", attempt+1,
			)
			return
		}

		d.logger.Warn("notification delivery failed",
			"channel", ch.Name(),
			"trigger", string(msg.Event.Trigger),
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	d.logger.Warn("notification dropped after retries",
		"channel", ch.Name(),
		"trigger", string(msg.Event.Trigger),
		"scan_id", msg.Event.ScanID,
		"error", lastErr,
	)
}

func (d *Dispatcher) sendOnce(ch Channel, msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
	defer cancel()
	err := ch.Send(ctx, msg)
	if err != nil && !errors.Is(err, ErrChannel) {
		err = &ChannelError{Channel: ch.Name(), Err: err}
	}
	return err
}

// SendTest delivers one test message to every configured channel and waits
// for the results. Each channel gets a single attempt.
func (d *Dispatcher) SendTest(ctx context.Context, cfg Config) error {
	channels := d.channels(cfg)
	if len(channels) == 0 {
		return ErrNoChannels
	}
	msg := Message{
		Title: "Scanarr: Test notification",
		Text:  "Notifications are configured correctly.",
		Event: Event{Trigger: "test", Summary: "Test notification", Timestamp: time.Now().UTC()},
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	errs := make([]error, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Go(func() {
			if err := ch.Send(ctx, msg); err != nil {
				if !errors.Is(err, ErrChannel) {
					err = &ChannelError{Channel: ch.Name(), Err: err}
				}
				errs[i] = err
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close abandons pending retries and waits for in-flight sends to return.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}
