// Package event carries tenant-directory and scan notifications between
// the watcher, the scanner, and anything else that wants to react.
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
	// TenantDirCreated is published when a landing directory appears under the root path.
	TenantDirCreated Type = "tenant.dir.created"
	// TenantDirRemoved is published when a landing directory disappears.
	TenantDirRemoved Type = "tenant.dir.removed"
	// ScanCompleted is published after every category scan of one tenant.
	ScanCompleted Type = "scan.completed"
)

// Event represents something that happened in the system.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	DirName   string         `json:"dir_name,omitempty"`
	Tenant    string         `json:"tenant,omitempty"`
	Env       string         `json:"env,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(Event)

// Bus is an in-process event bus backed by a buffered channel. Handlers run
// sequentially on the goroutine that called Start.
type Bus struct {
	ch     chan Event
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[Type][]Handler
	stopped bool

	done     chan struct{}
	finished chan struct{}
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:       make(chan Event, bufSize),
		subs:     make(map[Type][]Handler),
		logger:   logger.With(slog.String("component", "event")),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// Publish sends an event to the bus without blocking. The event is dropped
// with a warning if the buffer is full, and silently after Stop.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.logger.Debug("event bus stopped, dropping event", "type", string(e.Type))
		return
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type), "dir", e.DirName)
	}
}

// Start dispatches events until Stop is called, then drains what is left
// in the buffer. Call it in a goroutine.
func (b *Bus) Start() {
	defer close(b.finished)
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

// Stop signals the bus to stop accepting events. It returns once the
// buffer has been drained, or after timeout if Start is not running.
func (b *Bus) Stop(timeout time.Duration) {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
	b.mu.Unlock()

	select {
	case <-b.finished:
	case <-time.After(timeout):
		b.logger.Warn("event bus did not drain before timeout", "pending", len(b.ch))
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
