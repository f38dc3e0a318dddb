package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dealflow/internal/rules/constitution"
	id "dealflow/pkg/domain"
)

// GetConstitution returns the deal's constitution, or nil when the deal has
// none or is unknown.
func (s *Store) GetConstitution(ctx context.Context, dealID id.DealID) (*constitution.Constitution, error) {
	var raw []byte
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT constitution FROM deals WHERE id = $1`, dealID.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get constitution: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var c constitution.Constitution
	if err := unmarshalJSON(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConstitution upserts the deal row carrying c.
func (s *Store) SaveConstitution(ctx context.Context, dealID id.DealID, c *constitution.Constitution) error {
	raw, err := marshalJSON(c)
	if err != nil {
		return fmt.Errorf("marshal constitution: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO deals (id, constitution) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET constitution = EXCLUDED.constitution, updated_at = now()`,
		dealID.String(), raw)
	if err != nil {
		return fmt.Errorf("save constitution: %w", err)
	}
	return nil
}
