// Package ops provides the best-effort audit path for pipeline activity.
//
// Tracker never returns an error and never blocks on the sink: events may be
// sampled out, dropped while the circuit is open, or rejected by a full async
// buffer. Use for: event_processed, chain_created, action_executed, action_failed.
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "dealflow/pkg/platform/audit"
)

// Sink accepts audit events. The async publisher satisfies it.
type Sink interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Tracker emits ops events to a sink with sampling and a circuit breaker.
type Tracker struct {
	sink    Sink
	sampler *Sampler
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Tracker.
type Option func(*Tracker)

func WithSampler(s *Sampler) Option {
	return func(t *Tracker) {
		if s != nil {
			t.sampler = s
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(t *Tracker) {
		if cb != nil {
			t.breaker = cb
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker keeps every event and opens after 5 consecutive failures unless
// configured otherwise.
func NewTracker(sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		sink:    sink,
		sampler: NewSampler(1),
		breaker: NewCircuitBreaker(5, time.Minute),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track emits event unless it is sampled out or the circuit is open.
func (t *Tracker) Track(ctx context.Context, event audit.OpsEvent) {
	if t == nil || t.sink == nil {
		return
	}
	if !t.sampler.ShouldSample(event.Action) {
		t.metrics.IncSampled()
		return
	}
	if !t.breaker.Allow() {
		t.metrics.IncCircuitBreakerDropped()
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now()
	}

	if err := t.sink.Emit(ctx, event.ToEvent()); err != nil {
		t.breaker.RecordFailure()
		t.metrics.IncPersistFailures()
		t.metrics.SetCircuitBreakerState(t.breaker.IsOpen())
		if t.logger != nil {
			t.logger.WarnContext(ctx, "ops audit event dropped",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		return
	}
	t.breaker.RecordSuccess()
	t.metrics.SetCircuitBreakerState(false)
	t.metrics.IncTracked(event.Action)
}
