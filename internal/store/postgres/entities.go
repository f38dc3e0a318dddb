package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
	strutil "dealflow/pkg/platform/strings"
)

func statusTables(entityTypes []string) map[string]string {
	kinds := strutil.DedupeAndTrimLower(entityTypes)
	tables := make(map[string]string, len(kinds))
	for _, t := range kinds {
		tables[t] = t + "s"
	}
	return tables
}

func (s *Store) UpdateChecklistItemStatus(ctx context.Context, itemID id.EntityID, status string, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE checklist_items SET status = $2, updated_at = $3 WHERE id = $1`,
		itemID.String(), status, at)
	if err != nil {
		return fmt.Errorf("update checklist item status: %w", err)
	}
	return requireRow(res, "checklist_item", itemID)
}

func (s *Store) UpdateChecklistItemBallWith(ctx context.Context, itemID id.EntityID, ballWith string, at time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE checklist_items SET ball_with = $2, updated_at = $3 WHERE id = $1`,
		itemID.String(), ballWith, at)
	if err != nil {
		return fmt.Errorf("update checklist item ball_with: %w", err)
	}
	return requireRow(res, "checklist_item", itemID)
}

// UpdateEntityStatus sets the status of an allow-listed entity kind. The table
// name never comes from unchecked input.
func (s *Store) UpdateEntityStatus(ctx context.Context, entityType string, entityID id.EntityID, status string, at time.Time) error {
	table, ok := s.statusTables[entityType]
	if !ok {
		return fmt.Errorf("status updates are not allowed for entity type %q", entityType)
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = $3 WHERE id = $1`, pq.QuoteIdentifier(table))
	res, err := s.conn(ctx).ExecContext(ctx, query, entityID.String(), status, at)
	if err != nil {
		return fmt.Errorf("update %s status: %w", entityType, err)
	}
	return requireRow(res, entityType, entityID)
}

func requireRow(res sql.Result, kind string, entityID id.EntityID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, entityID, sentinel.ErrNotFound)
	}
	return nil
}
