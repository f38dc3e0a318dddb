package approval

import (
	"context"
	"time"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/audit"
)

// Store is the slice of the durable record the approval workflow touches.
type Store interface {
	GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error)

	GetChain(ctx context.Context, chainID id.ChainID) (*models.ActionChain, error)
	ListPendingChains(ctx context.Context, filter models.QueueFilter) ([]models.ActionChain, error)
	ListRecentlyApproved(ctx context.Context, limit int) ([]models.ActionChain, error)
	CountPendingByTier(ctx context.Context) (map[models.Tier]int, error)
	UpdateChain(ctx context.Context, chain *models.ActionChain, expected models.ChainStatus) error
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) ([]models.ActionChain, error)

	ListActions(ctx context.Context, chainID id.ChainID) ([]models.ProposedAction, error)
	GetAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID) (*models.ProposedAction, error)
	UpdateAction(ctx context.Context, action *models.ProposedAction, expected models.ActionStatus) error

	// RunInTx runs fn atomically; writes made through ctx inside fn join
	// the transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor runs a single approved action.
type Executor interface {
	Execute(ctx context.Context, action *models.ProposedAction) models.ExecutionResult
}

// ComplianceAuditor records human decisions. An error must abort the decision.
type ComplianceAuditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// AuditTracker receives best-effort audit entries.
type AuditTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}
