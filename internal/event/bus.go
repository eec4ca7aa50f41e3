package event

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	// ScanStarted is published when a scan enters the running state.
	ScanStarted Type = "scan.started"
	// ScanFinished is published after a terminal scan has been committed.
	ScanFinished Type = "scan.finished"
	// ScansPurged is published after a retention sweep removed scans.
	ScansPurged Type = "scans.purged"
	// MediaDetected is published by the watcher when new media appears.
	MediaDetected Type = "media.detected"
)

// Well-known Data keys.
const (
	KeyScanID       = "scan_id"
	KeyStatus       = "status"
	KeyRoots        = "roots"
	KeyNotification = "notification"
	KeyPurged       = "purged"
	KeyCutoff       = "cutoff"
	KeyPath         = "path"
)

// Event represents something that happened in the system.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// String returns the string value stored under key, or "".
func (e Event) String(key string) string {
	v, _ := e.Data[key].(string)
	return v
}

// Handler is a function that processes an event.
type Handler func(Event)

// Bus is an in-process event bus backed by a buffered channel.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	subs    map[Type][]Handler
	logger  *slog.Logger
	done    chan struct{}
	exited  chan struct{}
	started bool
	stopped bool
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:     make(chan Event, bufSize),
		subs:   make(map[Type][]Handler),
		logger: logger.With(slog.String("component", "event-bus")),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// Publish sends an event to the bus. It never blocks; when the buffer is
// full or the bus is stopped the event is dropped with a warning and
// Publish returns false.
func (b *Bus) Publish(e Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped {
		b.logger.Warn("event bus stopped, dropping event", "type", string(e.Type))
		return false
	}
	select {
	case b.ch <- e:
		return true
	default:
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
		return false
	}
}

// Start begins draining the channel and dispatching events to subscribers.
// Call this in a goroutine. It blocks until Stop is called.
func (b *Bus) Start() {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	defer close(b.exited)

	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the bus to stop after draining the buffer and waits for the
// dispatch loop to exit if it was started.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	close(b.done)
	b.mu.Unlock()

	if started {
		<-b.exited
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
