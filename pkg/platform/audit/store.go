package audit

import (
	"context"
	"time"

	id "dealflow/pkg/domain"
)

// Store persists audit events. Implementations write to a transactional
// outbox; the relay worker publishes outbox entries to Kafka.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDeal(ctx context.Context, dealID id.DealID) ([]Event, error)
}

// OutboxEntry is one serialized audit event awaiting publication.
type OutboxEntry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Outbox is the relay-facing side of a store.
type Outbox interface {
	PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}
