// Package notify carries user-facing update messages from the engine to
// whatever displays or forwards them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/update"
)

// DefaultTimeout is how long a message stays on display.
const DefaultTimeout = 6 * time.Second

// Message is one displayed notification.
type Message struct {
	ID      string    `json:"id"`
	State   string    `json:"state"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

// Sink forwards messages to an external system.
type Sink interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}

// Queue holds the messages currently on display and fans every new message
// out to its sinks. Its expiry timer is independent of the update timer.
type Queue struct {
	mu       sync.Mutex
	messages []Message
	timeout  time.Duration
	sinks    []Sink
	enabled  bool

	log logging.Logger
	now func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithTimeout sets how long messages stay on display.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithSink adds a forwarding sink.
func WithSink(s Sink) Option {
	return func(q *Queue) {
		if s != nil {
			q.sinks = append(q.sinks, s)
		}
	}
}

// WithLogger sets the queue's logger.
func WithLogger(l logging.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		timeout: DefaultTimeout,
		enabled: true,
		log:     logging.Noop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// SetEnabled toggles on-screen display. Sinks still receive every message.
func (q *Queue) SetEnabled(on bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = on
	if !on {
		q.messages = nil
	}
}

// Notify implements update.Notifier.
func (q *Queue) Notify(ctx context.Context, n update.Notification) {
	q.Publish(ctx, n.State.String(), n.Message)
}

// Publish records a message and forwards it to every sink. Sink failures are
// logged and never block display.
func (q *Queue) Publish(ctx context.Context, state, text string) Message {
	now := q.now()
	q.mu.Lock()
	m := Message{
		ID:      uuid.NewString(),
		State:   state,
		Text:    text,
		Created: now,
		Expires: now.Add(q.timeout),
	}
	if q.enabled {
		q.messages = append(q.messages, m)
	}
	sinks := append([]Sink(nil), q.sinks...)
	q.mu.Unlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, m); err != nil {
			q.log.Warn(ctx, "notification sink publish failed",
				logging.String("message_id", m.ID),
				logging.Err(err),
			)
		}
	}
	return m
}

// Active returns the messages still on display, oldest first.
func (q *Queue) Active() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.expireLocked(q.now())
	return append([]Message(nil), q.messages...)
}

// Expire drops messages whose display time has passed and returns how many
// were dropped.
func (q *Queue) Expire() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.expireLocked(q.now())
}

func (q *Queue) expireLocked(now time.Time) int {
	kept := q.messages[:0]
	for _, m := range q.messages {
		if now.Before(m.Expires) {
			kept = append(kept, m)
		}
	}
	dropped := len(q.messages) - len(kept)
	clear(q.messages[len(kept):])
	q.messages = kept
	return dropped
}

// Run expires messages on a timer until ctx is cancelled, then closes the
// sinks.
func (q *Queue) Run(ctx context.Context) {
	interval := q.timeout / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.Close()
			return
		case <-ticker.C:
			q.Expire()
		}
	}
}

// Close closes every sink.
func (q *Queue) Close() {
	q.mu.Lock()
	sinks := q.sinks
	q.sinks = nil
	q.mu.Unlock()
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			q.log.Warn(context.Background(), "closing notification sink failed", logging.Err(err))
		}
	}
}
