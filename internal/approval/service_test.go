package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"dealflow/internal/executor"
	"dealflow/internal/models"
	"dealflow/internal/platform/logger"
	"dealflow/internal/store/memory"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/audit"
	"dealflow/pkg/platform/audit/publishers/compliance"
	auditmemory "dealflow/pkg/platform/audit/store/memory"
	"dealflow/pkg/requestcontext"
)

type failingAuditStore struct{ *auditmemory.InMemoryStore }

func (failingAuditStore) Append(context.Context, audit.Event) error {
	return errors.New("outbox down")
}

type ApprovalServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	audit   *auditmemory.InMemoryStore
	metrics *Metrics
	service *Service
	now     time.Time
	dealID  id.DealID
	actor   id.UserID
	item    id.EntityID
}

func TestApprovalServiceSuite(t *testing.T) {
	suite.Run(t, new(ApprovalServiceSuite))
}

func (s *ApprovalServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.store = memory.New()
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.dealID = id.NewDealID()
	s.actor = id.NewUserID()
	s.item = id.NewEntityID()
	s.store.PutEntity("checklist_item", s.item, "open")
	s.service = s.newService(compliance.New(s.audit))
}

func (s *ApprovalServiceSuite) newService(auditor ComplianceAuditor) *Service {
	exec := executor.New(s.store, executor.WithLogger(logger.Discard()), executor.WithClock(s.clock))
	svc, err := New(s.store, exec, auditor,
		WithMetrics(s.metrics),
		WithLogger(logger.Discard()),
		WithClock(s.clock),
	)
	s.Require().NoError(err)
	return svc
}

func (s *ApprovalServiceSuite) clock() time.Time { return s.now }

// seedChain stores a pending chain whose actions have the given types. A
// checklist status update targets the seeded checklist item.
func (s *ApprovalServiceSuite) seedChain(createdAt time.Time, types ...models.ActionType) (*models.ActionChain, []models.ProposedAction) {
	event := &models.Event{
		ID:           id.NewEventID(),
		DealID:       s.dealID,
		Type:         models.EventDDFindingConfirmed,
		Payload:      map[string]any{},
		Significance: models.SignificanceDefault,
		CreatedAt:    createdAt,
	}
	s.Require().NoError(s.store.CreateEvent(s.ctx, event))

	chain := &models.ActionChain{
		ID:             id.NewChainID(),
		DealID:         s.dealID,
		TriggerEventID: event.ID,
		Summary:        "review finding",
		Significance:   models.SignificanceDefault,
		ApprovalTier:   models.Tier3,
		Status:         models.ChainPending,
		CreatedAt:      createdAt,
	}
	actions := make([]models.ProposedAction, len(types))
	for i, t := range types {
		actions[i] = models.ProposedAction{
			ID:               id.NewActionID(),
			ChainID:          chain.ID,
			SequenceOrder:    i + 1,
			Type:             t,
			TargetEntityType: "unknown",
			Payload:          map[string]any{"action": "do " + string(t)},
			Status:           models.ActionPending,
			ApprovalTier:     models.Tier3,
			CreatedAt:        createdAt,
		}
		if t == models.ActionChecklistStatusUpdate {
			target := s.item
			actions[i].TargetEntityType = "checklist_item"
			actions[i].TargetEntityID = &target
			actions[i].Payload["new_status"] = "complete"
		}
	}
	s.Require().NoError(s.store.CreateChain(s.ctx, chain, actions))
	return chain, actions
}

func (s *ApprovalServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *ApprovalServiceSuite) complianceActions() []string {
	events, err := s.audit.ListByDeal(s.ctx, s.dealID)
	s.Require().NoError(err)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func (s *ApprovalServiceSuite) TestApproveChain() {
	s.Run("approves then executes every pending action", func() {
		chain, _ := s.seedChain(s.now.Add(-time.Hour), models.ActionChecklistStatusUpdate, models.ActionNotification, models.ActionChecklistAddItem)

		detail, err := s.service.ApproveChain(s.ctx, chain.ID, s.actor)
		s.Require().NoError(err)

		s.Equal(models.ChainApproved, detail.Chain.Status)
		s.Require().NotNil(detail.Chain.ApprovedBy)
		s.Equal(s.actor, *detail.Chain.ApprovedBy)
		s.Equal(models.ActionExecuted, detail.Actions[0].Status)
		s.Equal(models.ActionExecuted, detail.Actions[1].Status)
		s.Equal(models.ActionFailed, detail.Actions[2].Status)

		stored, err := s.store.ListActions(s.ctx, chain.ID)
		s.Require().NoError(err)
		s.Equal(models.ActionFailed, stored[2].Status)
		s.Contains(stored[2].ExecutionResult.Error, "no executor for action type")

		status, _, ok := s.store.EntityStatus("checklist_item", s.item)
		s.True(ok)
		s.Equal("complete", status)

		s.Contains(s.complianceActions(), string(audit.EventChainApproved))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues(string(audit.EventChainApproved))))
	})

	s.Run("rejects a chain that is no longer pending", func() {
		chain, _ := s.seedChain(s.now, models.ActionNotification)
		_, err := s.service.ApproveChain(s.ctx, chain.ID, s.actor)
		s.Require().NoError(err)

		_, err = s.service.ApproveChain(s.ctx, chain.ID, s.actor)
		s.requireCode(err, dErrors.CodeInvalidState)
	})

	s.Run("unknown chain", func() {
		_, err := s.service.ApproveChain(s.ctx, id.NewChainID(), s.actor)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("requires a reviewer", func() {
		chain, _ := s.seedChain(s.now, models.ActionNotification)
		_, err := s.service.ApproveChain(s.ctx, chain.ID, id.UserID{})
		s.requireCode(err, dErrors.CodeUnauthorized)
	})
}

func (s *ApprovalServiceSuite) TestDecisionUsesRequestTime() {
	exec := executor.New(s.store, executor.WithLogger(logger.Discard()))
	svc, err := New(s.store, exec, compliance.New(s.audit), WithLogger(logger.Discard()))
	s.Require().NoError(err)

	chain, _ := s.seedChain(s.now.Add(-time.Hour), models.ActionNotification)
	pinned := s.now.Add(5 * time.Minute)
	detail, err := svc.ApproveChain(requestcontext.WithTime(s.ctx, pinned), chain.ID, s.actor)
	s.Require().NoError(err)
	s.Require().NotNil(detail.Chain.ApprovedAt)
	s.True(pinned.Equal(*detail.Chain.ApprovedAt))
}

func (s *ApprovalServiceSuite) TestApproveChainFailsClosedOnAudit() {
	svc := s.newService(compliance.New(failingAuditStore{auditmemory.NewInMemoryStore()}))
	chain, _ := s.seedChain(s.now, models.ActionChecklistStatusUpdate)

	_, err := svc.ApproveChain(s.ctx, chain.ID, s.actor)
	s.requireCode(err, dErrors.CodeInternal)

	stored, err := s.store.GetChain(s.ctx, chain.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainPending, stored.Status)
	actions, err := s.store.ListActions(s.ctx, chain.ID)
	s.Require().NoError(err)
	s.Equal(models.ActionPending, actions[0].Status)
	status, _, _ := s.store.EntityStatus("checklist_item", s.item)
	s.Equal("open", status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DecisionErrors.WithLabelValues(string(audit.EventChainApproved))))
}

func (s *ApprovalServiceSuite) TestApproveAction() {
	chain, actions := s.seedChain(s.now, models.ActionChecklistStatusUpdate, models.ActionNotification)

	detail, err := s.service.ApproveAction(s.ctx, chain.ID, actions[0].ID, s.actor)
	s.Require().NoError(err)
	s.Equal(models.ChainPartiallyApproved, detail.Chain.Status)
	s.Equal(models.ActionExecuted, detail.Actions[0].Status)
	s.Equal(models.ActionPending, detail.Actions[1].Status)

	_, err = s.service.ApproveAction(s.ctx, chain.ID, actions[0].ID, s.actor)
	s.requireCode(err, dErrors.CodeInvalidState)

	detail, err = s.service.ApproveAction(s.ctx, chain.ID, actions[1].ID, s.actor)
	s.Require().NoError(err)
	s.Equal(models.ChainApproved, detail.Chain.Status)

	stored, err := s.store.GetChain(s.ctx, chain.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainApproved, stored.Status)
	s.Equal([]string{string(audit.EventActionApproved), string(audit.EventActionApproved)}, s.complianceActions())
}

func (s *ApprovalServiceSuite) TestApproveActionUnknownAction() {
	chain, _ := s.seedChain(s.now, models.ActionNotification)
	_, err := s.service.ApproveAction(s.ctx, chain.ID, id.NewActionID(), s.actor)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ApprovalServiceSuite) TestModifyAction() {
	s.Run("merges payload before executing", func() {
		chain, actions := s.seedChain(s.now, models.ActionChecklistStatusUpdate)

		detail, err := s.service.ModifyAction(s.ctx, chain.ID, actions[0].ID, s.actor, map[string]any{"new_status": "waived"})
		s.Require().NoError(err)

		s.Equal(models.ChainApproved, detail.Chain.Status)
		s.Equal("waived", detail.Actions[0].Payload["new_status"])
		s.Equal("do checklist_status_update", detail.Actions[0].Payload["action"])
		status, _, _ := s.store.EntityStatus("checklist_item", s.item)
		s.Equal("waived", status)

		events, err := s.audit.ListByDeal(s.ctx, s.dealID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventActionModified), events[0].Action)
		s.Contains(events[0].Details, "original_payload")
	})

	s.Run("requires modifications", func() {
		chain, actions := s.seedChain(s.now, models.ActionNotification)
		_, err := s.service.ModifyAction(s.ctx, chain.ID, actions[0].ID, s.actor, nil)
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ApprovalServiceSuite) TestRejectAction() {
	s.Run("all rejected rejects the chain", func() {
		chain, actions := s.seedChain(s.now, models.ActionNotification, models.ActionNotification)

		detail, err := s.service.RejectAction(s.ctx, chain.ID, actions[0].ID, s.actor, "not now")
		s.Require().NoError(err)
		s.Equal(models.ChainPending, detail.Chain.Status)

		detail, err = s.service.RejectAction(s.ctx, chain.ID, actions[1].ID, s.actor, "")
		s.Require().NoError(err)
		s.Equal(models.ChainRejected, detail.Chain.Status)

		stored, err := s.store.GetChain(s.ctx, chain.ID)
		s.Require().NoError(err)
		s.Equal(models.ChainRejected, stored.Status)
	})

	s.Run("mixed outcome leaves the chain partially approved", func() {
		chain, actions := s.seedChain(s.now, models.ActionNotification, models.ActionNotification)

		_, err := s.service.ApproveAction(s.ctx, chain.ID, actions[0].ID, s.actor)
		s.Require().NoError(err)
		detail, err := s.service.RejectAction(s.ctx, chain.ID, actions[1].ID, s.actor, "")
		s.Require().NoError(err)

		s.Equal(models.ChainPartiallyApproved, detail.Chain.Status)
		s.Equal(models.ActionRejected, detail.Actions[1].Status)
	})
}

func (s *ApprovalServiceSuite) TestRejectChain() {
	chain, actions := s.seedChain(s.now, models.ActionNotification, models.ActionChecklistStatusUpdate)
	_, err := s.service.ApproveAction(s.ctx, chain.ID, actions[0].ID, s.actor)
	s.Require().NoError(err)

	detail, err := s.service.RejectChain(s.ctx, chain.ID, s.actor, "deal paused")
	s.Require().NoError(err)

	s.Equal(models.ChainRejected, detail.Chain.Status)
	s.Equal(models.ActionExecuted, detail.Actions[0].Status)
	s.Equal(models.ActionRejected, detail.Actions[1].Status)
	status, _, _ := s.store.EntityStatus("checklist_item", s.item)
	s.Equal("open", status)

	events, err := s.audit.ListByDeal(s.ctx, s.dealID)
	s.Require().NoError(err)
	last := events[len(events)-1]
	s.Equal(string(audit.EventChainRejected), last.Action)
	s.Equal("deal paused", last.Reason)

	_, err = s.service.RejectChain(s.ctx, chain.ID, s.actor, "")
	s.requireCode(err, dErrors.CodeInvalidState)
}

func (s *ApprovalServiceSuite) TestListQueueAndStats() {
	older, _ := s.seedChain(s.now.Add(-3*time.Hour), models.ActionNotification)
	newer, _ := s.seedChain(s.now.Add(-time.Hour), models.ActionNotification)
	done, _ := s.seedChain(s.now.Add(-2*time.Hour), models.ActionNotification)
	_, err := s.service.ApproveChain(s.ctx, done.ID, s.actor)
	s.Require().NoError(err)

	queue, err := s.service.ListQueue(s.ctx, models.QueueFilter{DealID: &s.dealID})
	s.Require().NoError(err)
	s.Require().Len(queue, 2)
	s.Equal(older.ID, queue[0].Chain.ID)
	s.Equal(newer.ID, queue[1].Chain.ID)
	s.Len(queue[0].Actions, 1)

	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.PendingCount)
	s.Equal(2, stats.ByTier[models.Tier3])
	s.Equal(0, stats.ByTier[models.Tier1])
	s.Equal(1, stats.RecentlyApproved)
	s.Equal(2*time.Hour, stats.AvgResolution)
	s.Equal((2 * time.Hour).Milliseconds(), stats.AvgResolutionMS)
}

func (s *ApprovalServiceSuite) TestGetChain() {
	chain, _ := s.seedChain(s.now, models.ActionNotification)

	view, err := s.service.GetChain(s.ctx, chain.ID)
	s.Require().NoError(err)
	s.Equal(chain.ID, view.Chain.ID)
	s.Len(view.Actions, 1)
	s.Require().NotNil(view.TriggerEvent)
	s.Equal(chain.TriggerEventID, view.TriggerEvent.ID)

	_, err = s.service.GetChain(s.ctx, id.NewChainID())
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ApprovalServiceSuite) TestExpireStale() {
	stale, _ := s.seedChain(s.now.Add(-49*time.Hour), models.ActionNotification)
	fresh, _ := s.seedChain(s.now.Add(-time.Hour), models.ActionNotification)

	n, err := s.service.ExpireStale(s.ctx, 48*time.Hour)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.store.GetChain(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainExpired, got.Status)
	got, err = s.store.GetChain(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.ChainPending, got.Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Expired))

	_, err = s.service.ApproveChain(s.ctx, stale.ID, s.actor)
	s.requireCode(err, dErrors.CodeInvalidState)

	_, err = s.service.ExpireStale(s.ctx, 0)
	s.requireCode(err, dErrors.CodeValidation)
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := memory.New()
	exec := executor.New(store)
	auditor := compliance.New(auditmemory.NewInMemoryStore())

	_, err := New(nil, exec, auditor)
	if err == nil {
		t.Fatal("expected error for nil store")
	}
	_, err = New(store, nil, auditor)
	if err == nil {
		t.Fatal("expected error for nil executor")
	}
	_, err = New(store, exec, nil)
	if err == nil {
		t.Fatal("expected error for nil compliance auditor")
	}
}
