package orchestrator

import (
	"context"
	"time"

	"dealflow/internal/models"
	"dealflow/internal/rules/approval"
	"dealflow/internal/rules/constitution"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/audit"
)

// Store is the durable record the pipeline reads and writes.
type Store interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error)
	ListEvents(ctx context.Context, dealID id.DealID, filter models.EventFilter) ([]models.Event, error)
	MarkEventProcessed(ctx context.Context, eventID id.EventID, at time.Time) error

	CreateChain(ctx context.Context, chain *models.ActionChain, actions []models.ProposedAction) error
	UpdateChain(ctx context.Context, chain *models.ActionChain, expected models.ChainStatus) error
	ListChainsByEvent(ctx context.Context, eventID id.EventID) ([]models.ActionChain, error)
	ListActions(ctx context.Context, chainID id.ChainID) ([]models.ProposedAction, error)
	UpdateAction(ctx context.Context, action *models.ProposedAction, expected models.ActionStatus) error
}

// ConstitutionSource looks up a deal's partner constitution. A deal without
// one yields nil, nil.
type ConstitutionSource interface {
	GetConstitution(ctx context.Context, dealID id.DealID) (*constitution.Constitution, error)
}

// ActivityReader serves the deal activity feed.
type ActivityReader interface {
	ListActivity(ctx context.Context, dealID id.DealID, limit int) ([]models.ActivityEntry, error)
}

// Executor runs a single action. It reports failures in the result.
type Executor interface {
	Execute(ctx context.Context, action *models.ProposedAction) models.ExecutionResult
}

// PolicySelector picks the approval policy for one emit call.
type PolicySelector interface {
	Select(dealID id.DealID, actor id.UserID, role string) *approval.Policy
}

// DealLocker serializes emit calls for the same deal. The returned func
// releases the lock.
type DealLocker interface {
	Lock(ctx context.Context, dealID id.DealID) (unlock func(), err error)
}

// AuditTracker receives best-effort audit entries.
type AuditTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}
