// Package approval is the reviewer workflow over chains that were not
// auto-approved: the queue, its stats, and the decisions that move a chain
// out of pending.
//
// Every decision is recorded through the compliance auditor inside the same
// transaction as the status writes, and a failed audit aborts the decision.
// Approved actions execute only after the decision commits.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/audit"
	"dealflow/pkg/platform/sentinel"
	"dealflow/pkg/requestcontext"
)

const (
	// recentApprovedWindow bounds the average resolution time sample.
	recentApprovedWindow = 50

	chainEntity  = "action_chain"
	actionEntity = "proposed_action"
)

// ChainView is a chain as a reviewer sees it.
type ChainView struct {
	Chain        models.ActionChain      `json:"chain"`
	Actions      []models.ProposedAction `json:"actions"`
	TriggerEvent *models.Event           `json:"trigger_event,omitempty"`
}

// Service runs reviewer decisions against the store.
type Service struct {
	store      Store
	executor   Executor
	compliance ComplianceAuditor
	auditor    AuditTracker
	metrics    *Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Service)

func WithAuditor(a AuditTracker) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, executor Executor, compliance ComplianceAuditor, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if compliance == nil {
		return nil, errors.New("compliance auditor is required")
	}
	s := &Service{
		store:      store,
		executor:   executor,
		compliance: compliance,
		logger:     slog.Default(),
		tracer:     otel.Tracer("dealflow/approval"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// clock prefers an injected clock, then the request time pinned by the
// request-time middleware.
func (s *Service) clock(ctx context.Context) time.Time {
	if s.now != nil {
		return s.now()
	}
	return requestcontext.Now(ctx)
}

// ListQueue returns pending chains with their actions, most significant
// first and oldest first within a significance.
func (s *Service) ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.ChainDetail, error) {
	filter.Normalize()
	chains, err := s.store.ListPendingChains(ctx, filter)
	if err != nil {
		return nil, translate(err, "failed to list approval queue")
	}
	out := make([]models.ChainDetail, 0, len(chains))
	for _, c := range chains {
		actions, err := s.store.ListActions(ctx, c.ID)
		if err != nil {
			return nil, translate(err, "failed to load actions")
		}
		out = append(out, models.ChainDetail{Chain: c, Actions: actions})
	}
	return out, nil
}

// Stats summarizes the pending backlog and how fast chains get approved.
func (s *Service) Stats(ctx context.Context) (*models.QueueStats, error) {
	counts, err := s.store.CountPendingByTier(ctx)
	if err != nil {
		return nil, translate(err, "failed to count pending chains")
	}
	stats := &models.QueueStats{ByTier: map[models.Tier]int{models.Tier1: 0, models.Tier2: 0, models.Tier3: 0}}
	for tier, n := range counts {
		stats.ByTier[tier] += n
		stats.PendingCount += n
	}

	recent, err := s.store.ListRecentlyApproved(ctx, recentApprovedWindow)
	if err != nil {
		return nil, translate(err, "failed to load approved chains")
	}
	stats.RecentlyApproved = len(recent)
	if len(recent) > 0 {
		var total time.Duration
		for _, c := range recent {
			total += c.ApprovedAt.Sub(c.CreatedAt)
		}
		stats.AvgResolution = total / time.Duration(len(recent))
		stats.AvgResolutionMS = stats.AvgResolution.Milliseconds()
	}
	return stats, nil
}

// GetChain returns a chain with its ordered actions and trigger event.
func (s *Service) GetChain(ctx context.Context, chainID id.ChainID) (*ChainView, error) {
	chain, err := s.loadChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	actions, err := s.store.ListActions(ctx, chainID)
	if err != nil {
		return nil, translate(err, "failed to load actions")
	}
	view := &ChainView{Chain: *chain, Actions: actions}
	event, err := s.store.GetEvent(ctx, chain.TriggerEventID)
	switch {
	case err == nil:
		view.TriggerEvent = event
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, translate(err, "failed to load trigger event")
	}
	return view, nil
}

// ApproveChain approves a pending chain and then executes every action that
// was still pending. The chain is approved before the first action runs.
func (s *Service) ApproveChain(ctx context.Context, chainID id.ChainID, actor id.UserID) (*models.ChainDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	chain, err := s.loadChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if chain.Status != models.ChainPending {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "chain is already %s", chain.Status)
	}
	actions, err := s.store.ListActions(ctx, chainID)
	if err != nil {
		return nil, translate(err, "failed to load actions")
	}

	now := s.clock(ctx)
	approved := *chain
	if err := approved.TransitionTo(models.ChainApproved, now, &actor); err != nil {
		return nil, translate(err, "failed to approve chain")
	}
	var queued []*models.ProposedAction
	for i := range actions {
		if actions[i].Status != models.ActionPending {
			continue
		}
		if err := actions[i].Approve(); err != nil {
			return nil, translate(err, "failed to approve action")
		}
		queued = append(queued, &actions[i])
	}

	err = s.decide(ctx, audit.EventChainApproved, func(ctx context.Context) error {
		if err := s.record(ctx, &approved, actor, audit.EventChainApproved, chainEntity, approved.ID.String(), string(approved.Status), "", map[string]any{
			"actions": len(queued),
		}); err != nil {
			return err
		}
		if err := s.store.UpdateChain(ctx, &approved, models.ChainPending); err != nil {
			return err
		}
		for _, a := range queued {
			if err := s.store.UpdateAction(ctx, a, models.ActionPending); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveResolution(now.Sub(approved.CreatedAt))

	s.execute(ctx, queued)
	return &models.ChainDetail{Chain: approved, Actions: actions}, nil
}

// ApproveAction approves and executes one pending action. The chain leaves
// pending first and becomes approved once nothing is pending.
func (s *Service) ApproveAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID) (*models.ChainDetail, error) {
	return s.approveOne(ctx, chainID, actionID, actor, nil)
}

// ModifyAction merges patch over the action payload, then approves and
// executes it like ApproveAction.
func (s *Service) ModifyAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID, patch map[string]any) (*models.ChainDetail, error) {
	if len(patch) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payload modifications are required")
	}
	return s.approveOne(ctx, chainID, actionID, actor, patch)
}

func (s *Service) approveOne(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID, patch map[string]any) (*models.ChainDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	chain, action, err := s.loadOpen(ctx, chainID, actionID)
	if err != nil {
		return nil, err
	}

	decision := audit.EventActionApproved
	details := map[string]any{"action_type": string(action.Type)}
	if patch != nil {
		decision = audit.EventActionModified
		details["original_payload"] = action.Payload
		details["modifications"] = patch
		action.Payload = mergePayload(action.Payload, patch)
	}

	now := s.clock(ctx)
	prior := chain.Status
	updated := *chain
	if err := updated.TransitionTo(models.ChainPartiallyApproved, now, &actor); err != nil {
		return nil, translate(err, "failed to update chain")
	}
	if err := action.Approve(); err != nil {
		return nil, translate(err, "failed to approve action")
	}

	err = s.decide(ctx, decision, func(ctx context.Context) error {
		if err := s.record(ctx, &updated, actor, decision, actionEntity, action.ID.String(), string(action.Status), "", details); err != nil {
			return err
		}
		if err := s.store.UpdateChain(ctx, &updated, prior); err != nil {
			return err
		}
		return s.store.UpdateAction(ctx, action, models.ActionPending)
	})
	if err != nil {
		return nil, err
	}

	s.execute(ctx, []*models.ProposedAction{action})

	actions, err := s.store.ListActions(ctx, chainID)
	if err != nil {
		return nil, translate(err, "failed to load actions")
	}
	if len(models.PendingActions(actions)) == 0 {
		s.settleApproved(ctx, &updated, actor)
	}
	return &models.ChainDetail{Chain: updated, Actions: actions}, nil
}

// settleApproved closes a chain whose last pending action was approved.
// The decision itself is already committed, so a failure here is logged.
func (s *Service) settleApproved(ctx context.Context, chain *models.ActionChain, actor id.UserID) {
	final := *chain
	if err := final.TransitionTo(models.ChainApproved, s.clock(ctx), &actor); err != nil {
		s.logger.ErrorContext(ctx, "failed to settle chain", "chain_id", chain.ID, "error", err)
		return
	}
	if err := s.store.UpdateChain(ctx, &final, chain.Status); err != nil {
		s.logger.ErrorContext(ctx, "failed to settle chain", "chain_id", chain.ID, "error", err)
		return
	}
	*chain = final
	s.metrics.ObserveResolution(final.ApprovedAt.Sub(final.CreatedAt))
}

// RejectAction rejects one pending action. Once nothing is pending the chain
// is partially approved if any action was approved, and rejected otherwise.
func (s *Service) RejectAction(ctx context.Context, chainID id.ChainID, actionID id.ActionID, actor id.UserID, reason string) (*models.ChainDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	chain, action, err := s.loadOpen(ctx, chainID, actionID)
	if err != nil {
		return nil, err
	}
	if err := action.Reject(); err != nil {
		return nil, translate(err, "failed to reject action")
	}

	updated := *chain
	var actions []models.ProposedAction
	err = s.decide(ctx, audit.EventActionRejected, func(ctx context.Context) error {
		if err := s.record(ctx, chain, actor, audit.EventActionRejected, actionEntity, action.ID.String(), string(action.Status), reason, map[string]any{
			"action_type": string(action.Type),
		}); err != nil {
			return err
		}
		if err := s.store.UpdateAction(ctx, action, models.ActionPending); err != nil {
			return err
		}
		var err error
		actions, err = s.store.ListActions(ctx, chainID)
		if err != nil {
			return err
		}
		if len(models.PendingActions(actions)) > 0 {
			return nil
		}
		next := models.ChainRejected
		if anyApproved(actions) {
			next = models.ChainPartiallyApproved
		}
		if err := updated.TransitionTo(next, s.clock(ctx), &actor); err != nil {
			return err
		}
		return s.store.UpdateChain(ctx, &updated, chain.Status)
	})
	if err != nil {
		return nil, err
	}
	return &models.ChainDetail{Chain: updated, Actions: actions}, nil
}

// RejectChain rejects every pending action and the chain with them.
func (s *Service) RejectChain(ctx context.Context, chainID id.ChainID, actor id.UserID, reason string) (*models.ChainDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	chain, err := s.loadChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if !open(chain) {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "chain is already %s", chain.Status)
	}
	actions, err := s.store.ListActions(ctx, chainID)
	if err != nil {
		return nil, translate(err, "failed to load actions")
	}

	rejected := *chain
	if err := rejected.TransitionTo(models.ChainRejected, s.clock(ctx), &actor); err != nil {
		return nil, translate(err, "failed to reject chain")
	}
	var dropped []*models.ProposedAction
	for i := range actions {
		if actions[i].Status != models.ActionPending {
			continue
		}
		if err := actions[i].Reject(); err != nil {
			return nil, translate(err, "failed to reject action")
		}
		dropped = append(dropped, &actions[i])
	}

	err = s.decide(ctx, audit.EventChainRejected, func(ctx context.Context) error {
		if err := s.record(ctx, &rejected, actor, audit.EventChainRejected, chainEntity, rejected.ID.String(), string(rejected.Status), reason, map[string]any{
			"actions": len(dropped),
		}); err != nil {
			return err
		}
		if err := s.store.UpdateChain(ctx, &rejected, chain.Status); err != nil {
			return err
		}
		for _, a := range dropped {
			if err := s.store.UpdateAction(ctx, a, models.ActionPending); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.ChainDetail{Chain: rejected, Actions: actions}, nil
}

// ExpireStale expires pending chains created more than ttl ago and returns
// how many were expired.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "expiry ttl must be positive")
	}
	expired, err := s.store.ExpirePendingBefore(ctx, s.clock(ctx).Add(-ttl))
	if err != nil {
		return 0, translate(err, "failed to expire chains")
	}
	for _, c := range expired {
		s.track(ctx, c.DealID, audit.EventChainExpired, chainEntity, c.ID.String(), map[string]any{
			"approval_tier": int(c.ApprovalTier),
		})
	}
	if len(expired) > 0 {
		s.metrics.AddExpired(len(expired))
		s.logger.InfoContext(ctx, "expired stale chains", "count", len(expired), "ttl", ttl)
	}
	return len(expired), nil
}

// decide runs fn atomically under a span named for the decision.
func (s *Service) decide(ctx context.Context, decision audit.AuditEvent, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "approval."+string(decision), trace.WithAttributes(
		attribute.String("decision", string(decision)),
	))
	defer span.End()

	if err := s.store.RunInTx(ctx, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decision aborted")
		s.metrics.IncDecisionError(string(decision))
		s.logger.ErrorContext(ctx, "decision aborted",
			"decision", decision,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return translate(err, "failed to record decision")
	}
	s.metrics.IncDecision(string(decision))
	return nil
}

func (s *Service) record(ctx context.Context, chain *models.ActionChain, actor id.UserID, decision audit.AuditEvent, entityType, subject, outcome, reason string, details map[string]any) error {
	details["chain_id"] = chain.ID.String()
	return s.compliance.Emit(ctx, audit.ComplianceEvent{
		Timestamp:  s.clock(ctx),
		DealID:     chain.DealID,
		ActorID:    actor,
		Subject:    subject,
		EntityType: entityType,
		Action:     string(decision),
		Decision:   outcome,
		Reason:     reason,
		RequestID:  requestcontext.RequestID(ctx),
		Details:    details,
	})
}

// execute runs approved actions and records their outcome. A failed write
// leaves the action approved; it is logged, not returned.
func (s *Service) execute(ctx context.Context, actions []*models.ProposedAction) {
	for _, a := range actions {
		outcome := s.executor.Execute(ctx, a)
		if err := a.ApplyExecution(outcome, s.clock(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "failed to apply execution", "action_id", a.ID, "error", err)
			continue
		}
		if err := s.store.UpdateAction(ctx, a, models.ActionApproved); err != nil {
			s.logger.ErrorContext(ctx, "failed to record execution",
				"action_id", a.ID,
				"chain_id", a.ChainID,
				"error", err,
			)
		}
	}
}

func (s *Service) track(ctx context.Context, dealID id.DealID, action audit.AuditEvent, entityType, subject string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Track(ctx, audit.OpsEvent{
		DealID:     dealID,
		Subject:    subject,
		EntityType: entityType,
		Action:     string(action),
		RequestID:  requestcontext.RequestID(ctx),
		Details:    details,
	})
}

func (s *Service) loadChain(ctx context.Context, chainID id.ChainID) (*models.ActionChain, error) {
	chain, err := s.store.GetChain(ctx, chainID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "chain not found")
		}
		return nil, translate(err, "failed to load chain")
	}
	return chain, nil
}

// loadOpen loads a chain that still takes decisions and one of its pending
// actions.
func (s *Service) loadOpen(ctx context.Context, chainID id.ChainID, actionID id.ActionID) (*models.ActionChain, *models.ProposedAction, error) {
	chain, err := s.loadChain(ctx, chainID)
	if err != nil {
		return nil, nil, err
	}
	if !open(chain) {
		return nil, nil, dErrors.Newf(dErrors.CodeInvalidState, "chain is already %s", chain.Status)
	}
	action, err := s.store.GetAction(ctx, chainID, actionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeNotFound, "action not found")
		}
		return nil, nil, translate(err, "failed to load action")
	}
	if action.Status != models.ActionPending {
		return nil, nil, dErrors.Newf(dErrors.CodeInvalidState, "action is already %s", action.Status)
	}
	return chain, action, nil
}

func open(chain *models.ActionChain) bool {
	return chain.Status == models.ChainPending || chain.Status == models.ChainPartiallyApproved
}

func requireActor(actor id.UserID) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "an authenticated reviewer is required")
	}
	return nil
}

// anyApproved reports whether a reviewer let any action through, whatever its
// execution outcome.
func anyApproved(actions []models.ProposedAction) bool {
	for _, a := range actions {
		switch a.Status {
		case models.ActionApproved, models.ActionExecuted, models.ActionFailed:
			return true
		}
	}
	return false
}

func mergePayload(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	maps.Copy(out, base)
	maps.Copy(out, patch)
	return out
}

func translate(err error, internalMsg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "chain was changed by another decision")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, "decision not allowed in current state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
	}
}
