package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	id "dealflow/pkg/domain"
	audit "dealflow/pkg/platform/audit"
	txcontext "dealflow/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the relay
// worker. When the caller's context carries a transaction the outbox row
// commits or rolls back with the business write.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	entry, err := audit.NewOutboxEntry(event, s.now())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Payload,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByDeal returns the audit trail of a deal, oldest first.
func (s *Store) ListByDeal(ctx context.Context, dealID id.DealID) ([]audit.Event, error) {
	query := `
		SELECT payload
		FROM outbox
		WHERE aggregate_type = 'deal' AND aggregate_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, dealID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event, err := audit.DecodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// PendingOutbox returns up to limit unpublished entries, oldest first.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var e audit.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps published_at on the given entries in one round trip.
func (s *Store) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids), at); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
