// Package publisher writes audit events to a store, either inline or through a
// bounded buffer drained by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "dealflow/pkg/domain"
	audit "dealflow/pkg/platform/audit"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

// Publisher appends audit events to a store. In async mode Emit never blocks
// on the store; a full buffer drops the event and reports ErrBufferFull.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
	size   int
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithLogger sets a logger for background write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.size > 0 {
		p.buffer = make(chan audit.Event, p.size)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit stamps the event and hands it to the store (sync) or the buffer (async).
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the audit trail of a deal.
func (p *Publisher) List(ctx context.Context, dealID id.DealID) ([]audit.Event, error) {
	return p.store.ListByDeal(ctx, dealID)
}

// Close stops accepting events and waits for the buffer to drain.
func (p *Publisher) Close() {
	if p.buffer == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.buffer)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"deal_id", event.DealID,
				"error", err,
			)
		}
	}
}
