package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

const chainColumns = `id, deal_id, trigger_event_id, summary, significance,
	approval_tier, status, created_at, approved_at, approved_by`

const actionColumns = `id, chain_id, sequence_order, depends_on, action_type,
	target_entity_type, target_entity_id, payload, preview, status, approval_tier,
	execution_result, constitutional_violation, created_at, executed_at`

// CreateChain inserts a chain and its actions in one transaction. Either every
// row lands or none does.
func (s *Store) CreateChain(ctx context.Context, chain *models.ActionChain, actions []models.ProposedAction) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		query := `INSERT INTO action_chains (` + chainColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err := s.conn(ctx).ExecContext(ctx, query,
			chain.ID.String(),
			chain.DealID.String(),
			chain.TriggerEventID.String(),
			chain.Summary,
			int(chain.Significance),
			int(chain.ApprovalTier),
			string(chain.Status),
			chain.CreatedAt,
			chain.ApprovedAt,
			nullableUserID(chain.ApprovedBy),
		)
		if err != nil {
			return fmt.Errorf("insert chain: %w", err)
		}
		for i := range actions {
			if err := s.insertAction(ctx, &actions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertAction(ctx context.Context, a *models.ProposedAction) error {
	payload, err := marshalJSON(a.Payload)
	if err != nil {
		return fmt.Errorf("marshal action payload: %w", err)
	}
	preview, err := marshalJSON(a.Preview)
	if err != nil {
		return fmt.Errorf("marshal action preview: %w", err)
	}
	result, err := marshalResult(a.ExecutionResult)
	if err != nil {
		return err
	}
	query := `INSERT INTO proposed_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4::uuid[], $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		a.ID.String(),
		a.ChainID.String(),
		a.SequenceOrder,
		pq.Array(actionIDStrings(a.DependsOn)),
		string(a.Type),
		a.TargetEntityType,
		nullableEntityID(a.TargetEntityID),
		payload,
		preview,
		string(a.Status),
		int(a.ApprovalTier),
		result,
		a.ConstitutionalViolation,
		a.CreatedAt,
		a.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action %d: %w", a.SequenceOrder, err)
	}
	return nil
}

func (s *Store) GetChain(ctx context.Context, chainID id.ChainID) (*models.ActionChain, error) {
	query := `SELECT ` + chainColumns + ` FROM action_chains WHERE id = $1`
	chain, err := scanChain(s.conn(ctx).QueryRowContext(ctx, query, chainID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chain %s: %w", chainID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get chain: %w", err)
	}
	return chain, nil
}

// ListChainsByEvent returns the chains an event produced, oldest first.
func (s *Store) ListChainsByEvent(ctx context.Context, eventID id.EventID) ([]models.ActionChain, error) {
	query := `SELECT ` + chainColumns + ` FROM action_chains WHERE trigger_event_id = $1 ORDER BY created_at, id`
	return s.queryChains(ctx, query, eventID.String())
}

// ListPendingChains orders by significance descending, then age.
func (s *Store) ListPendingChains(ctx context.Context, filter models.QueueFilter) ([]models.ActionChain, error) {
	filter.Normalize()
	if filter.DealID != nil {
		query := `SELECT ` + chainColumns + ` FROM action_chains
			WHERE status = 'pending' AND deal_id = $1
			ORDER BY significance DESC, created_at ASC LIMIT $2 OFFSET $3`
		return s.queryChains(ctx, query, filter.DealID.String(), filter.Limit, filter.Offset)
	}
	query := `SELECT ` + chainColumns + ` FROM action_chains
		WHERE status = 'pending'
		ORDER BY significance DESC, created_at ASC LIMIT $1 OFFSET $2`
	return s.queryChains(ctx, query, filter.Limit, filter.Offset)
}

// ListRecentlyApproved returns approved chains, most recently approved first.
func (s *Store) ListRecentlyApproved(ctx context.Context, limit int) ([]models.ActionChain, error) {
	query := `SELECT ` + chainColumns + ` FROM action_chains
		WHERE status = 'approved' AND approved_at IS NOT NULL
		ORDER BY approved_at DESC LIMIT $1`
	return s.queryChains(ctx, query, limit)
}

func (s *Store) CountPendingByTier(ctx context.Context) (map[models.Tier]int, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT approval_tier, count(*) FROM action_chains WHERE status = 'pending' GROUP BY approval_tier`)
	if err != nil {
		return nil, fmt.Errorf("count pending chains: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Tier]int)
	for rows.Next() {
		var tier, n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan pending count: %w", err)
		}
		counts[models.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending counts: %w", err)
	}
	return counts, nil
}

// UpdateChain writes the chain's mutable fields if its stored status is still
// expected. A concurrent transition yields sentinel.ErrConflict.
func (s *Store) UpdateChain(ctx context.Context, chain *models.ActionChain, expected models.ChainStatus) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE action_chains
		SET status = $3, summary = $4, approval_tier = $5, approved_at = $6, approved_by = $7
		WHERE id = $1 AND status = $2`,
		chain.ID.String(),
		string(expected),
		string(chain.Status),
		chain.Summary,
		int(chain.ApprovalTier),
		chain.ApprovedAt,
		nullableUserID(chain.ApprovedBy),
	)
	if err != nil {
		return fmt.Errorf("update chain: %w", err)
	}
	return checkGuarded(res, func() error {
		_, err := s.GetChain(ctx, chain.ID)
		return err
	}, "chain", chain.ID.String(), string(expected))
}

// ExpirePendingBefore moves pending chains created before cutoff to expired
// and returns them.
func (s *Store) ExpirePendingBefore(ctx context.Context, cutoff time.Time) ([]models.ActionChain, error) {
	query := `UPDATE action_chains SET status = 'expired'
		WHERE status = 'pending' AND created_at < $1
		RETURNING ` + chainColumns
	return s.queryChains(ctx, query, cutoff)
}

func (s *Store) ListActions(ctx context.Context, chainID id.ChainID) ([]models.ProposedAction, error) {
	query := `SELECT ` + actionColumns + ` FROM proposed_actions WHERE chain_id = $1 ORDER BY sequence_order`
	rows, err := s.conn(ctx).QueryContext(ctx, query, chainID.String())
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := []models.ProposedAction{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

func (s *Store) GetAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID) (*models.ProposedAction, error) {
	query := `SELECT ` + actionColumns + ` FROM proposed_actions WHERE id = $1 AND chain_id = $2`
	a, err := scanAction(s.conn(ctx).QueryRowContext(ctx, query, actionID.String(), chainID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("action %s in chain %s: %w", actionID, chainID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

// UpdateAction writes status, payload and execution outcome if the stored
// status is still expected.
func (s *Store) UpdateAction(ctx context.Context, a *models.ProposedAction, expected models.ActionStatus) error {
	payload, err := marshalJSON(a.Payload)
	if err != nil {
		return fmt.Errorf("marshal action payload: %w", err)
	}
	result, err := marshalResult(a.ExecutionResult)
	if err != nil {
		return err
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE proposed_actions
		SET status = $3, payload = $4, execution_result = $5, executed_at = $6,
			approval_tier = $7, constitutional_violation = $8
		WHERE id = $1 AND status = $2`,
		a.ID.String(),
		string(expected),
		string(a.Status),
		payload,
		result,
		a.ExecutedAt,
		int(a.ApprovalTier),
		a.ConstitutionalViolation,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return checkGuarded(res, func() error {
		_, err := s.GetAction(ctx, a.ChainID, a.ID)
		return err
	}, "action", a.ID.String(), string(expected))
}

// checkGuarded turns a zero-row guarded update into ErrNotFound or ErrConflict.
func checkGuarded(res sql.Result, exists func() error, kind, key, expected string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if n == 1 {
		return nil
	}
	if err := exists(); err != nil {
		return err
	}
	return fmt.Errorf("%s %s no longer %s: %w", kind, key, expected, sentinel.ErrConflict)
}

func (s *Store) queryChains(ctx context.Context, query string, args ...any) ([]models.ActionChain, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	chains := []models.ActionChain{}
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		chains = append(chains, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chains: %w", err)
	}
	return chains, nil
}

func scanChain(row rowScanner) (*models.ActionChain, error) {
	var (
		c                          models.ActionChain
		chainID, dealID, triggerID uuid.UUID
		significance, tier         int
		status                     string
		approvedAt                 sql.NullTime
		approvedBy                 uuid.NullUUID
	)
	err := row.Scan(&chainID, &dealID, &triggerID, &c.Summary, &significance,
		&tier, &status, &c.CreatedAt, &approvedAt, &approvedBy)
	if err != nil {
		return nil, err
	}
	c.ID = id.ChainID(chainID)
	c.DealID = id.DealID(dealID)
	c.TriggerEventID = id.EventID(triggerID)
	c.Significance = models.Significance(significance)
	c.ApprovalTier = models.Tier(tier)
	c.Status = models.ChainStatus(status)
	if approvedAt.Valid {
		t := approvedAt.Time
		c.ApprovedAt = &t
	}
	if approvedBy.Valid {
		u := id.UserID(approvedBy.UUID)
		c.ApprovedBy = &u
	}
	return &c, nil
}

func scanAction(row rowScanner) (*models.ProposedAction, error) {
	var (
		a                 models.ProposedAction
		actionID, chainID uuid.UUID
		dependsOn         pq.StringArray
		actionType        string
		targetID          uuid.NullUUID
		payload, preview  []byte
		status            string
		tier              int
		result            []byte
		executedAt        sql.NullTime
	)
	err := row.Scan(&actionID, &chainID, &a.SequenceOrder, &dependsOn, &actionType,
		&a.TargetEntityType, &targetID, &payload, &preview, &status, &tier,
		&result, &a.ConstitutionalViolation, &a.CreatedAt, &executedAt)
	if err != nil {
		return nil, err
	}
	a.ID = id.ActionID(actionID)
	a.ChainID = id.ChainID(chainID)
	a.Type = models.ActionType(actionType)
	a.Status = models.ActionStatus(status)
	a.ApprovalTier = models.Tier(tier)
	a.DependsOn = make([]id.ActionID, 0, len(dependsOn))
	for _, raw := range dependsOn {
		dep, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("decode depends_on: %w", err)
		}
		a.DependsOn = append(a.DependsOn, id.ActionID(dep))
	}
	if targetID.Valid {
		t := id.EntityID(targetID.UUID)
		a.TargetEntityID = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		a.ExecutedAt = &t
	}
	if err := unmarshalJSON(payload, &a.Payload); err != nil {
		return nil, err
	}
	if a.Payload == nil {
		a.Payload = map[string]any{}
	}
	if err := unmarshalJSON(preview, &a.Preview); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		var r models.ExecutionResult
		if err := unmarshalJSON(result, &r); err != nil {
			return nil, err
		}
		a.ExecutionResult = &r
	}
	return &a, nil
}

func marshalResult(r *models.ExecutionResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := marshalJSON(r)
	if err != nil {
		return nil, fmt.Errorf("marshal execution result: %w", err)
	}
	return raw, nil
}

func actionIDStrings(ids []id.ActionID) []string {
	out := make([]string, len(ids))
	for i, a := range ids {
		out[i] = a.String()
	}
	return out
}

func nullableUserID(u *id.UserID) any {
	if u == nil {
		return nil
	}
	return u.String()
}

func nullableEntityID(e *id.EntityID) any {
	if e == nil {
		return nil
	}
	return e.String()
}
