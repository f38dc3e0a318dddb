package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
)

// AppendActivity is idempotent on the entry id.
func (s *Store) AppendActivity(ctx context.Context, entry models.ActivityEntry) error {
	details, err := marshalJSON(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	if entry.ID.IsNil() {
		entry.ID = id.NewEntityID()
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO activity_log (id, deal_id, actor_id, actor_type, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID.String(),
		entry.DealID.String(),
		nullableUserID(entry.ActorID),
		entry.ActorType,
		entry.Action,
		entry.EntityType,
		nullableEntityID(entry.EntityID),
		details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns a deal's activity, newest first.
func (s *Store) ListActivity(ctx context.Context, dealID id.DealID, limit int) ([]models.ActivityEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, deal_id, actor_id, actor_type, action, coalesce(entity_type, ''), entity_id, details, created_at
		FROM activity_log
		WHERE deal_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, dealID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := []models.ActivityEntry{}
	for rows.Next() {
		var (
			e                  models.ActivityEntry
			entryID, entryDeal uuid.UUID
			actorID, entityID  uuid.NullUUID
			details            []byte
		)
		if err := rows.Scan(&entryID, &entryDeal, &actorID, &e.ActorType, &e.Action,
			&e.EntityType, &entityID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.ID = id.EntityID(entryID)
		e.DealID = id.DealID(entryDeal)
		if actorID.Valid {
			u := id.UserID(actorID.UUID)
			e.ActorID = &u
		}
		if entityID.Valid {
			en := id.EntityID(entityID.UUID)
			e.EntityID = &en
		}
		if err := unmarshalJSON(details, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}
