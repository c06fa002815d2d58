// Package notify implements the user-facing notification channel: a bounded
// queue of short messages that remove themselves once they expire.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind classifies a notification for presentation.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
	Warning Kind = "warning"
)

const (
	DefaultTTL      = 3 * time.Second
	DefaultCapacity = 32
)

// Notification is a single message shown to the operator.
type Notification struct {
	ID      string
	Message string
	Kind    Kind
	Expiry  time.Time
}

// Notifier is what the inventory reports outcomes through.
type Notifier interface {
	Notify(kind Kind, message string) Notification
}

// Channel is a bounded, expiring notification queue. It is safe for
// concurrent use. When full, the oldest notification is dropped.
type Channel struct {
	ttl      time.Duration
	capacity int
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	items  []Notification
	timers map[string]*time.Timer
	subs   map[uint64]func([]Notification)
	next   uint64
}

// Option customises a Channel.
type Option func(*Channel)

// WithTTL sets how long notifications live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Channel) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of live notifications.
func WithCapacity(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger sets the logger error notifications are written to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Channel.
func New(opts ...Option) *Channel {
	c := &Channel{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
		subs:     make(map[uint64]func([]Notification)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify enqueues a message and schedules its removal.
func (c *Channel) Notify(kind Kind, message string) Notification {
	n := Notification{
		ID:      ulid.Make().String(),
		Message: message,
		Kind:    kind,
		Expiry:  c.now().Add(c.ttl),
	}

	if kind == Error {
		c.logger.Error("Notification", "message", message)
	} else {
		c.logger.Debug("Notification", "kind", kind, "message", message)
	}

	c.mu.Lock()
	for len(c.items) >= c.capacity {
		c.dropLocked(c.items[0].ID)
	}
	c.items = append(c.items, n)
	id := n.ID
	c.timers[id] = time.AfterFunc(c.ttl, func() { c.Dismiss(id) })
	snapshot := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	broadcast(subs, snapshot)
	return n
}

// Dismiss removes a notification before it expires. Unknown IDs are ignored.
func (c *Channel) Dismiss(id string) {
	c.mu.Lock()
	if !c.dropLocked(id) {
		c.mu.Unlock()
		return
	}
	snapshot := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	broadcast(subs, snapshot)
}

// List returns the live notifications, oldest first.
func (c *Channel) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe calls fn with the full list after every change.
func (c *Channel) Subscribe(fn func([]Notification)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close stops all pending expiry timers.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
	c.items = nil
}

func (c *Channel) dropLocked(id string) bool {
	for i, n := range c.items {
		if n.ID != id {
			continue
		}
		c.items = append(c.items[:i], c.items[i+1:]...)
		if timer, ok := c.timers[id]; ok {
			timer.Stop()
			delete(c.timers, id)
		}
		return true
	}
	return false
}

func (c *Channel) snapshotLocked() []Notification {
	return append([]Notification(nil), c.items...)
}

func (c *Channel) subscribersLocked() []func([]Notification) {
	subs := make([]func([]Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func broadcast(subs []func([]Notification), snapshot []Notification) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
