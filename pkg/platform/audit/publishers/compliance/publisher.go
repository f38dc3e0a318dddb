// Package compliance records reviewer decisions on action chains.
//
// Emit is synchronous and fail-closed: a decision whose audit row cannot be
// written to the outbox must not be applied. The approval service calls it
// inside the decision transaction, before any status write.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "dealflow/pkg/platform/audit"
)

// Publisher writes compliance events straight to the audit store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock overrides the timestamp source for events without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a publisher over an outbox-backed store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists one decision. A non-nil error means the caller must abort.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	start := time.Now()
	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		p.metrics.IncPersistFailures()
		p.logger.ErrorContext(ctx, "decision audit write failed",
			"action", event.Action,
			"deal_id", event.DealID,
			"actor_id", event.ActorID,
			"subject", event.Subject,
			"request_id", event.RequestID,
			"error", err,
		)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	p.metrics.ObservePersistDuration(time.Since(start).Seconds())
	p.metrics.IncEventsEmitted()
	return nil
}

// validate enforces the fields a reviewer decision cannot be traced without.
func validate(event audit.ComplianceEvent) error {
	var errs []error
	if event.DealID.IsNil() {
		errs = append(errs, errors.New("deal id is required"))
	}
	if event.ActorID.IsNil() {
		errs = append(errs, errors.New("actor id is required"))
	}
	if event.Subject == "" {
		errs = append(errs, errors.New("subject is required"))
	}
	if event.Action == "" {
		errs = append(errs, errors.New("action is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid compliance event: %w", errors.Join(errs...))
	}
	return nil
}
