package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

const eventColumns = `id, deal_id, event_type, source_entity_type, source_entity_id,
	payload, significance, processed, processed_at, created_at`

func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `INSERT INTO propagation_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		event.ID.String(),
		event.DealID.String(),
		string(event.Type),
		event.SourceEntityType,
		event.SourceEntityID,
		payload,
		int(event.Significance),
		event.Processed,
		event.ProcessedAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM propagation_events WHERE id = $1`
	event, err := scanEvent(s.conn(ctx).QueryRowContext(ctx, query, eventID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents returns a deal's events, newest first.
func (s *Store) ListEvents(ctx context.Context, dealID id.DealID, filter models.EventFilter) ([]models.Event, error) {
	filter.Normalize()

	where := []string{"deal_id = $1"}
	args := []any{dealID.String()}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.Processed != nil {
		args = append(args, *filter.Processed)
		where = append(where, fmt.Sprintf("processed = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM propagation_events WHERE %s
		ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		eventColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// MarkEventProcessed flips processed once. A second call fails with
// sentinel.ErrInvalidState.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID id.EventID, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE propagation_events SET processed = true, processed_at = $2 WHERE id = $1 AND NOT processed`,
		eventID.String(), at)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return err
	}
	return fmt.Errorf("event %s already processed: %w", eventID, sentinel.ErrInvalidState)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e            models.Event
		eventID      uuid.UUID
		dealID       uuid.UUID
		eventType    string
		payload      []byte
		significance int
		processedAt  sql.NullTime
	)
	err := row.Scan(&eventID, &dealID, &eventType, &e.SourceEntityType, &e.SourceEntityID,
		&payload, &significance, &e.Processed, &processedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.ID = id.EventID(eventID)
	e.DealID = id.DealID(dealID)
	e.Type = models.EventType(eventType)
	e.Significance = models.Significance(significance)
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	if err := unmarshalJSON(payload, &e.Payload); err != nil {
		return nil, err
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return &e, nil
}

func marshalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte("{}"), nil
	}
	return raw, nil
}

func unmarshalJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}
