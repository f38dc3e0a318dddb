package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"dealflow/internal/executor"
	"dealflow/internal/models"
	"dealflow/internal/orchestrator/metrics"
	"dealflow/internal/platform/logger"
	"dealflow/internal/rules/approval"
	"dealflow/internal/rules/consequence"
	"dealflow/internal/rules/constitution"
	"dealflow/internal/store/memory"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/audit"
)

type recordingTracker struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingTracker) Track(_ context.Context, event audit.OpsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, event.Action)
}

type faultyStore struct {
	*memory.Store
	createEventErr error
	createChainErr error
	updateChainErr error
	markErr        error
}

func (f *faultyStore) CreateEvent(ctx context.Context, e *models.Event) error {
	if f.createEventErr != nil {
		return f.createEventErr
	}
	return f.Store.CreateEvent(ctx, e)
}

func (f *faultyStore) CreateChain(ctx context.Context, c *models.ActionChain, a []models.ProposedAction) error {
	if f.createChainErr != nil {
		return f.createChainErr
	}
	return f.Store.CreateChain(ctx, c, a)
}

func (f *faultyStore) UpdateChain(ctx context.Context, c *models.ActionChain, expected models.ChainStatus) error {
	if f.updateChainErr != nil {
		return f.updateChainErr
	}
	return f.Store.UpdateChain(ctx, c, expected)
}

func (f *faultyStore) MarkEventProcessed(ctx context.Context, eventID id.EventID, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	return f.Store.MarkEventProcessed(ctx, eventID, at)
}

type countingLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
	err     error
}

func (l *countingLocker) Lock(context.Context, id.DealID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locks++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocks++
	}, nil
}

type OrchestratorSuite struct {
	suite.Suite
	ctx      context.Context
	mem      *memory.Store
	store    *faultyStore
	registry *approval.Registry
	tracker  *recordingTracker
	metrics  *metrics.Metrics
	service  *Service
	dealID   id.DealID
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()
	s.mem = memory.New()
	s.store = &faultyStore{Store: s.mem}
	registry, err := approval.NewRegistry(approval.DefaultPartnerPolicy())
	s.Require().NoError(err)
	s.registry = registry
	s.tracker = &recordingTracker{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.dealID = id.NewDealID()
	s.service = s.newService()
}

func (s *OrchestratorSuite) newService(opts ...Option) *Service {
	exec := executor.New(s.mem, executor.WithLogger(logger.Discard()))
	base := []Option{
		WithConstitutions(s.mem),
		WithActivityReader(s.mem),
		WithAuditor(s.tracker),
		WithMetrics(s.metrics),
		WithLogger(logger.Discard()),
	}
	svc, err := New(s.store, consequence.DefaultCatalog(), s.registry, exec, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *OrchestratorSuite) emit(eventType models.EventType, payload map[string]any) *Result {
	result, err := s.service.Emit(s.ctx, EmitRequest{
		DealID:           s.dealID,
		EventType:        eventType,
		SourceEntityType: "checklist_item",
		SourceEntityID:   "item-17",
		Payload:          payload,
	})
	s.Require().NoError(err)
	return result
}

func (s *OrchestratorSuite) storedEvent(eventID id.EventID) *models.Event {
	e, err := s.mem.GetEvent(s.ctx, eventID)
	s.Require().NoError(err)
	return e
}

func (s *OrchestratorSuite) storedActions(chainID id.ChainID) []models.ProposedAction {
	actions, err := s.mem.ListActions(s.ctx, chainID)
	s.Require().NoError(err)
	return actions
}

func (s *OrchestratorSuite) TestTierOneChainIsAutoApproved() {
	result := s.emit(models.EventChecklistItemOverdue, nil)

	s.Empty(result.Diagnostics)
	s.Require().NotNil(result.Chain)
	s.Equal(models.Tier1, result.Chain.ApprovalTier)
	s.Equal(models.SignificanceDefault, result.Chain.Significance)

	chain, err := s.mem.GetChain(s.ctx, result.Chain.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainApproved, chain.Status)
	s.NotNil(chain.ApprovedAt)
	s.Nil(chain.ApprovedBy)

	actions := s.storedActions(chain.ID)
	s.Require().Len(actions, 2)
	s.Equal(models.ActionNotification, actions[0].Type)
	s.Equal(models.ActionCriticalPathUpdate, actions[1].Type)
	for _, a := range actions {
		s.Contains([]models.ActionStatus{models.ActionExecuted, models.ActionFailed}, a.Status)
		s.NotNil(a.ExecutionResult)
		s.NotNil(a.ExecutedAt)
	}
	s.True(s.storedEvent(result.Event.ID).Processed)
	s.True(result.Event.Processed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AutoApproved))
	s.Contains(s.tracker.actions, string(audit.EventChainAutoApproved))
}

func (s *OrchestratorSuite) TestAutoExecutionToleratesMissingExecutor() {
	catalog := consequence.MustCatalog("review-test", []consequence.Entry{{
		Rank:    1,
		Trigger: models.EventChecklistItemOverdue,
		Consequences: []consequence.Consequence{
			{Type: models.ActionNotification, Target: "deal_team", Action: "Notify owner", Priority: consequence.PriorityImmediate},
			{Type: models.ActionDocumentReview, Target: "document", Action: "Review affected documents", Priority: consequence.PriorityNormal},
		},
	}})
	s.registry.Register(approval.MustPolicy("auto everything", "", approval.Scope{Type: approval.ScopeDeal, ID: s.dealID.String()},
		[]approval.Rule{{Rank: 1, ActionType: approval.Wildcard, Tier: models.Tier1}}))
	exec := executor.New(s.mem, executor.WithLogger(logger.Discard()))
	svc, err := New(s.store, catalog, s.registry, exec, WithLogger(logger.Discard()), WithMetrics(s.metrics))
	s.Require().NoError(err)

	result, err := svc.Emit(s.ctx, EmitRequest{
		DealID:           s.dealID,
		EventType:        models.EventChecklistItemOverdue,
		SourceEntityType: "checklist_item",
		SourceEntityID:   "item-17",
	})
	s.Require().NoError(err)
	s.Empty(result.Diagnostics)
	s.Require().NotNil(result.Chain)
	s.Equal(models.Tier1, result.Chain.ApprovalTier)

	actions := s.storedActions(result.Chain.ID)
	s.Require().Len(actions, 2)
	s.Equal(models.ActionNotification, actions[0].Type)
	s.Equal(models.ActionExecuted, actions[0].Status)
	s.Equal(models.ActionDocumentReview, actions[1].Type)
	s.Equal(models.ActionFailed, actions[1].Status)
	s.Require().NotNil(actions[1].ExecutionResult)
	s.False(actions[1].ExecutionResult.Success)
	s.Equal("no executor for action type document_review", actions[1].ExecutionResult.Error)

	chain, err := s.mem.GetChain(s.ctx, result.Chain.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainApproved, chain.Status)
	s.NotNil(chain.ApprovedAt)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AutoApproved))
}

func (s *OrchestratorSuite) TestTierThreeChainStaysPending() {
	result := s.emit(models.EventDDFindingConfirmed, map[string]any{"severity": "high"})

	s.Require().NotNil(result.Chain)
	s.Equal(models.Tier3, result.Chain.ApprovalTier)
	chain, err := s.mem.GetChain(s.ctx, result.Chain.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainPending, chain.Status)

	actions := s.storedActions(chain.ID)
	s.Require().Len(actions, 4)
	for i, a := range actions {
		s.Equal(i+1, a.SequenceOrder)
		s.Equal(models.ActionPending, a.Status)
		s.Nil(a.ExecutionResult)
	}
	s.Equal("Update relevant document sections based on DD finding", actions[0].Payload["action"])
	s.Equal("high", actions[0].Payload["priority"])
	s.Equal("document_modification: Update relevant document sections based on DD finding", actions[0].Preview.Title)
	s.True(s.storedEvent(result.Event.ID).Processed)
}

func (s *OrchestratorSuite) TestChainLevelGatingHoldsTierOneActions() {
	result := s.emit(models.EventDocumentMarkupReceived, nil)

	s.Require().NotNil(result.Chain)
	s.Equal(models.Tier2, result.Chain.ApprovalTier)

	actions := s.storedActions(result.Chain.ID)
	s.Require().Len(actions, 4)
	s.Equal(models.Tier1, actions[0].ApprovalTier)
	for _, a := range actions {
		s.Equal(models.ActionPending, a.Status, "action %s ran before its chain was approved", a.Type)
	}
}

func (s *OrchestratorSuite) TestUnmatchedEventCreatesNoChain() {
	result := s.emit(models.EventSystemAgentActivationTriggered, nil)

	s.Nil(result.Chain)
	s.Empty(result.Actions)
	s.Empty(result.Diagnostics)
	s.True(s.storedEvent(result.Event.ID).Processed)

	chains, err := s.mem.ListChainsByEvent(s.ctx, result.Event.ID)
	s.Require().NoError(err)
	s.Empty(chains)
}

func (s *OrchestratorSuite) TestChainTierIsMaximumOfActionTiers() {
	result := s.emit(models.EventDocumentMarkupReceived, map[string]any{"strategic": true})

	s.Require().NotNil(result.Chain)
	s.Equal(models.ChainTier(result.Actions), result.Chain.ApprovalTier)
	s.Equal(models.Tier3, result.Chain.ApprovalTier)
}

func (s *OrchestratorSuite) TestSummaryJoinsDescriptions() {
	result := s.emit(models.EventChecklistItemOverdue, nil)
	s.Equal("Send overdue notification to responsible party; Recalculate critical path considering overdue item", result.Chain.Summary)
}

func (s *OrchestratorSuite) TestTargetEntityBindsToSourceEntity() {
	itemID := id.NewEntityID()
	s.mem.PutEntity("checklist_item", itemID, "open")

	result, err := s.service.Emit(s.ctx, EmitRequest{
		DealID:           s.dealID,
		EventType:        models.EventDocumentMarkupReceived,
		SourceEntityType: "checklist_item",
		SourceEntityID:   itemID.String(),
	})
	s.Require().NoError(err)

	actions := s.storedActions(result.Chain.ID)
	s.Nil(actions[0].TargetEntityID)
	s.Require().NotNil(actions[2].TargetEntityID)
	s.Equal(itemID, *actions[2].TargetEntityID)
}

func (s *OrchestratorSuite) TestConstitutionEscalatesAffectedActions() {
	s.Require().NoError(s.mem.SaveConstitution(s.ctx, s.dealID, &constitution.Constitution{
		HardConstraints: []constitution.HardConstraint{{
			ID:          "hc-1",
			Category:    constitution.CategoryCommunication,
			Description: "No client contact without partner sign-off",
			Rule:        "Never notify the client directly",
			Consequence: constitution.BlockAndEscalate,
		}},
	}))

	result := s.emit(models.EventChecklistItemOverdue, nil)

	s.Require().NotNil(result.Chain)
	s.Equal(models.Tier3, result.Chain.ApprovalTier)
	s.Equal(models.ChainPending, result.Chain.Status)
	s.Contains(result.Chain.Summary, "[CONSTITUTIONAL VIOLATION] No client contact without partner sign-off — ")

	actions := s.storedActions(result.Chain.ID)
	s.True(actions[0].ConstitutionalViolation)
	s.Equal(models.Tier3, actions[0].ApprovalTier)
	s.False(actions[1].ConstitutionalViolation)
	s.Equal(models.Tier1, actions[1].ApprovalTier)
	s.Equal(models.ActionPending, actions[1].Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ConstitutionalEscalations))
	s.Contains(s.tracker.actions, string(audit.EventConstitutionalViolation))
}

func (s *OrchestratorSuite) TestPolicyIsSelectedPerCall() {
	override := approval.MustPolicy("deal override", "", approval.Scope{Type: approval.ScopeDeal, ID: s.dealID.String()},
		[]approval.Rule{{Rank: 1, ActionType: approval.Wildcard, Tier: models.Tier1}})
	s.registry.Register(override)

	result := s.emit(models.EventDDFindingConfirmed, nil)
	s.Equal(models.Tier1, result.Chain.ApprovalTier)

	other := id.NewDealID()
	res, err := s.service.Emit(s.ctx, EmitRequest{
		DealID: other, EventType: models.EventDDFindingConfirmed,
		SourceEntityType: "dd_finding", SourceEntityID: "f-1",
	})
	s.Require().NoError(err)
	s.Equal(models.Tier3, res.Chain.ApprovalTier)
}

func (s *OrchestratorSuite) TestInvalidRequestIsCritical() {
	cases := map[string]EmitRequest{
		"missing deal":   {EventType: models.EventDealCreated, SourceEntityType: "deal", SourceEntityID: "d"},
		"unknown type":   {DealID: s.dealID, EventType: "deal.exploded", SourceEntityType: "deal", SourceEntityID: "d"},
		"missing source": {DealID: s.dealID, EventType: models.EventDealCreated, SourceEntityID: "d"},
		"significance":   {DealID: s.dealID, EventType: models.EventDealCreated, SourceEntityType: "deal", SourceEntityID: "d", Significance: intPtr(9)},
	}
	for name, req := range cases {
		s.Run(name, func() {
			result, err := s.service.Emit(s.ctx, req)
			s.Nil(result)
			var critical *CriticalError
			s.Require().ErrorAs(err, &critical)
			s.Equal(StageReceived, critical.Stage)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
	events, err := s.mem.ListEvents(s.ctx, s.dealID, models.EventFilter{})
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *OrchestratorSuite) TestEventPersistenceFailureIsCritical() {
	s.store.createEventErr = errors.New("disk full")

	_, err := s.service.Emit(s.ctx, EmitRequest{
		DealID: s.dealID, EventType: models.EventChecklistItemOverdue,
		SourceEntityType: "checklist_item", SourceEntityID: "i",
	})
	var critical *CriticalError
	s.Require().ErrorAs(err, &critical)
	s.Equal(StageReceived, critical.Stage)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}

func (s *OrchestratorSuite) TestChainPersistenceFailureIsDiagnostic() {
	s.store.createChainErr = errors.New("deadlock detected")

	result := s.emit(models.EventChecklistItemOverdue, nil)

	s.Nil(result.Chain)
	s.Require().Len(result.Diagnostics, 1)
	s.Equal(StageChainCreation, result.Diagnostics[0].Stage)
	s.True(result.Degraded())
	s.True(s.storedEvent(result.Event.ID).Processed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Diagnostics.WithLabelValues("chain_creation")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Emits.WithLabelValues("degraded")))
}

func (s *OrchestratorSuite) TestChainApprovalFailureIsDiagnostic() {
	s.store.updateChainErr = errors.New("timeout")

	result := s.emit(models.EventChecklistItemOverdue, nil)

	s.Require().Len(result.Diagnostics, 1)
	s.Equal(StageChainApproval, result.Diagnostics[0].Stage)
	s.Equal(models.ChainPending, result.Chain.Status)
	for _, a := range s.storedActions(result.Chain.ID) {
		s.NotEqual(models.ActionPending, a.Status)
	}
}

func (s *OrchestratorSuite) TestMarkProcessedFailureIsDiagnostic() {
	s.store.markErr = errors.New("connection lost")

	result := s.emit(models.EventDealCreated, nil)

	s.Require().Len(result.Diagnostics, 1)
	s.Equal(StageProcessed, result.Diagnostics[0].Stage)
	s.False(result.Event.Processed)
}

func (s *OrchestratorSuite) TestDealLocker() {
	s.Run("wraps each emit", func() {
		locker := &countingLocker{}
		svc := s.newService(WithDealLocker(locker))
		_, err := svc.Emit(s.ctx, EmitRequest{
			DealID: s.dealID, EventType: models.EventDealCreated,
			SourceEntityType: "deal", SourceEntityID: "d",
		})
		s.Require().NoError(err)
		s.Equal(1, locker.locks)
		s.Equal(1, locker.unlocks)
	})

	s.Run("lock failure is critical and stores nothing", func() {
		locker := &countingLocker{err: errors.New("lock held")}
		svc := s.newService(WithDealLocker(locker))
		other := id.NewDealID()
		_, err := svc.Emit(s.ctx, EmitRequest{
			DealID: other, EventType: models.EventDealCreated,
			SourceEntityType: "deal", SourceEntityID: "d",
		})
		var critical *CriticalError
		s.Require().ErrorAs(err, &critical)
		s.Equal(StageLocking, critical.Stage)
		s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))

		events, _ := s.mem.ListEvents(s.ctx, other, models.EventFilter{})
		s.Empty(events)
	})
}

func (s *OrchestratorSuite) TestReads() {
	result := s.emit(models.EventDDFindingConfirmed, nil)
	s.emit(models.EventDealCreated, nil)

	s.Run("event detail carries chains and ordered actions", func() {
		detail, err := s.service.EventDetail(s.ctx, result.Event.ID)
		s.Require().NoError(err)
		s.Equal(result.Event.ID, detail.Event.ID)
		s.Require().Len(detail.Chains, 1)
		s.Len(detail.Chains[0].Actions, 4)
	})

	s.Run("missing event is not found", func() {
		_, err := s.service.GetEvent(s.ctx, id.NewEventID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("list filters by type", func() {
		events, err := s.service.ListEvents(s.ctx, s.dealID, models.EventFilter{Type: models.EventDealCreated})
		s.Require().NoError(err)
		s.Len(events, 1)
	})
}

func intPtr(v int) *int { return &v }
