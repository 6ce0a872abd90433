// Package progress delivers per-session progress events to at most one live
// listener. Events published while nobody listens are dropped.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/feichai0017/catalog-ingestor/internal/models"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

const (
	defaultBuffer      = 64
	defaultSendTimeout = 5 * time.Second
)

// Hub routes progress events by session id.
type Hub interface {
	// Subscribe registers the live listener for a session, replacing any
	// previous one.
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
	// Publish delivers an event to the session's listener if there is one.
	Publish(ctx context.Context, event models.ProgressEvent)
}

// Subscription is one listener. Events is never closed; read until Done
// fires or a terminal event arrives.
type Subscription struct {
	SessionID string

	events  chan models.ProgressEvent
	done    chan struct{}
	once    sync.Once
	onClose func()
}

func newSubscription(sessionID string, buffer int) *Subscription {
	return &Subscription{
		SessionID: sessionID,
		events:    make(chan models.ProgressEvent, buffer),
		done:      make(chan struct{}),
	}
}

func (s *Subscription) Events() <-chan models.ProgressEvent {
	return s.events
}

// Done is closed when the subscription is closed or replaced.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the listener. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// deliver hands ev to the listener, giving up when it goes away, ctx ends or
// the buffer stays full for longer than timeout.
func (s *Subscription) deliver(ctx context.Context, ev models.ProgressEvent, timeout time.Duration) bool {
	select {
	case s.events <- ev:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.events <- ev:
		return true
	case <-s.done:
	case <-ctx.Done():
	case <-timer.C:
	}
	return false
}

type Option func(*options)

type options struct {
	buffer      int
	sendTimeout time.Duration
}

func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{buffer: defaultBuffer, sendTimeout: defaultSendTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// registry tracks the single live subscription per session.
type registry struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]*Subscription)}
}

// add registers sub and returns the subscription it replaced.
func (r *registry) add(sub *Subscription) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.subs[sub.SessionID]
	r.subs[sub.SessionID] = sub
	return old
}

func (r *registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[sub.SessionID] == sub {
		delete(r.subs, sub.SessionID)
	}
}

func (r *registry) get(sessionID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[sessionID]
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// MemoryHub is the in-process Hub.
type MemoryHub struct {
	registry *registry
	options  options
	logger   logger.Logger
}

func NewMemoryHub(log logger.Logger, opts ...Option) *MemoryHub {
	return &MemoryHub{
		registry: newRegistry(),
		options:  buildOptions(opts),
		logger:   log.Named("progress"),
	}
}

func (h *MemoryHub) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	sub := newSubscription(sessionID, h.options.buffer)
	sub.onClose = func() {
		h.registry.remove(sub)
	}

	if old := h.registry.add(sub); old != nil {
		h.logger.Info("Replacing progress listener", logger.String("session_id", sessionID))
		old.Close()
	}
	return sub, nil
}

func (h *MemoryHub) Publish(ctx context.Context, event models.ProgressEvent) {
	sub := h.registry.get(event.SessionID)
	if sub == nil {
		h.logger.Debug("No progress listener, dropping event",
			logger.String("session_id", event.SessionID),
			logger.Int("step", event.Step),
		)
		return
	}

	if !sub.deliver(ctx, event, h.options.sendTimeout) {
		h.logger.Warn("Progress event not delivered",
			logger.String("session_id", event.SessionID),
			logger.Int("step", event.Step),
		)
	}
}

// Listeners returns the number of live subscriptions.
func (h *MemoryHub) Listeners() int {
	return h.registry.len()
}
