// Package worker relays audit outbox entries to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"dealflow/internal/platform/kafka/producer"
	audit "dealflow/pkg/platform/audit"
)

// Publisher sends records to the broker. producer.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Relay polls the outbox and publishes pending entries in creation order.
// Entries are marked published only after the broker acknowledged them, so a
// crash between the two steps republishes; consumers are idempotent on the
// event id.
type Relay struct {
	outbox    audit.Outbox
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRelay(outbox audit.Outbox, publisher Publisher, topic string, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.PendingOutbox(ctx, r.batchSize)
	if err != nil || len(entries) == 0 {
		return 0, err
	}

	msgs := make([]producer.Message, 0, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, producer.Message{
			Topic: r.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				"event_type":     e.EventType,
				"aggregate_type": e.AggregateType,
			},
		})
		ids = append(ids, e.ID)
	}

	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, err
	}
	return len(entries), nil
}
