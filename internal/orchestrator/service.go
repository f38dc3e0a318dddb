// Package orchestrator turns an incoming deal event into an action chain.
//
// One Emit call is a single pass: persist the event, resolve consequences,
// assign tiers, apply the deal's constitution, persist the chain with its
// actions, auto-execute tier-1 chains and mark the event processed. Only a
// failure before the event is stored is returned as an error; every later
// failure is recorded as a Diagnostic on the Result and the pass continues.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dealflow/internal/models"
	"dealflow/internal/orchestrator/metrics"
	"dealflow/internal/rules/approval"
	"dealflow/internal/rules/consequence"
	"dealflow/internal/rules/constitution"
	"dealflow/internal/rules/predicate"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/audit"
	"dealflow/pkg/platform/sentinel"
	strutil "dealflow/pkg/platform/strings"
)

const (
	maxTitleRunes         = 80
	violationSummaryRunes = 400
	unknownTarget         = "unknown"
)

// Service runs the emit pipeline.
type Service struct {
	store         Store
	catalog       *consequence.Catalog
	policies      PolicySelector
	executor      Executor
	constitutions ConstitutionSource
	activity      ActivityReader
	locker        DealLocker
	auditor       AuditTracker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

type Option func(*Service)

// WithConstitutions enables the constitution check at chain creation.
func WithConstitutions(src ConstitutionSource) Option {
	return func(s *Service) {
		s.constitutions = src
	}
}

func WithActivityReader(r ActivityReader) Option {
	return func(s *Service) {
		s.activity = r
	}
}

// WithDealLocker serializes emit calls per deal. Without it concurrent calls
// for one deal run unordered.
func WithDealLocker(l DealLocker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithAuditor(a AuditTracker) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, catalog *consequence.Catalog, policies PolicySelector, executor Executor, opts ...Option) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("orchestrator requires a store")
	case catalog == nil:
		return nil, errors.New("orchestrator requires a consequence catalog")
	case policies == nil:
		return nil, errors.New("orchestrator requires a policy selector")
	case executor == nil:
		return nil, errors.New("orchestrator requires an executor")
	}
	s := &Service{
		store:    store,
		catalog:  catalog,
		policies: policies,
		executor: executor,
		logger:   slog.Default(),
		tracer:   otel.Tracer("dealflow/orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Emit runs one pass for req. The returned error is always a *CriticalError;
// when it is nil the event is stored and marked processed (unless the final
// write itself is among the diagnostics).
func (s *Service) Emit(ctx context.Context, req EmitRequest) (*Result, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "orchestrator.emit", trace.WithAttributes(
		attribute.String("deal.id", req.DealID.String()),
		attribute.String("event.type", string(req.EventType)),
	))
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.critical(ctx, span, StageReceived, err)
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, req.DealID)
		if err != nil {
			return nil, s.critical(ctx, span, StageLocking,
				dErrors.Wrap(err, dErrors.CodeUnavailable, "deal is busy"))
		}
		defer unlock()
	}

	significance, _ := models.ParseSignificance(req.Significance)
	event := models.Event{
		ID:               id.NewEventID(),
		DealID:           req.DealID,
		Type:             req.EventType,
		SourceEntityType: req.SourceEntityType,
		SourceEntityID:   req.SourceEntityID,
		Payload:          req.Payload,
		Significance:     significance,
		CreatedAt:        start,
	}
	if err := s.store.CreateEvent(ctx, &event); err != nil {
		return nil, s.critical(ctx, span, StageReceived,
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist event"))
	}
	span.SetAttributes(attribute.String("event.id", event.ID.String()))
	s.track(ctx, event.DealID, audit.EventEventReceived, "propagation_event", event.ID.String(), map[string]any{
		"event_type": string(event.Type),
	})

	result := &Result{Event: event}
	s.process(ctx, req, result)
	s.markProcessed(ctx, result)

	outcome := "accepted"
	if result.Degraded() {
		outcome = "degraded"
		span.SetStatus(codes.Error, "emit degraded")
	}
	s.metrics.IncEmit(outcome)
	s.metrics.ObserveEmitLatency(s.now().Sub(start))
	s.logger.InfoContext(ctx, "event emitted",
		"event_id", event.ID,
		"deal_id", event.DealID,
		"event_type", event.Type,
		"chain_created", result.Chain != nil,
		"diagnostics", len(result.Diagnostics),
	)
	return result, nil
}

func (s *Service) process(ctx context.Context, req EmitRequest, result *Result) {
	event := &result.Event
	consequences := consequence.Resolve(s.catalog, event)
	if len(consequences) == 0 {
		return
	}

	policy := s.policies.Select(req.DealID, req.Actor, req.Role)
	chain, actions := s.buildChain(ctx, event, consequences, policy, result)

	createCtx, span := s.tracer.Start(ctx, "orchestrator.create_chain")
	err := s.store.CreateChain(createCtx, chain, actions)
	span.End()
	if err != nil {
		s.diagnose(ctx, result, StageChainCreation, err)
		return
	}
	result.Chain = chain
	result.Actions = actions
	s.metrics.IncChainCreated(int(chain.ApprovalTier))
	s.track(ctx, chain.DealID, audit.EventChainCreated, "action_chain", chain.ID.String(), map[string]any{
		"approval_tier": int(chain.ApprovalTier),
		"actions":       len(actions),
		"event_id":      event.ID.String(),
	})

	if chain.ApprovalTier == models.Tier1 {
		s.autoExecute(ctx, result)
	}
}

// buildChain materializes consequences into a pending chain. A constitution
// breach raises every affected action to tier 3 before the chain tier is
// taken as the maximum.
func (s *Service) buildChain(ctx context.Context, event *models.Event, consequences []consequence.Consequence, policy *approval.Policy, result *Result) (*models.ActionChain, []models.ProposedAction) {
	now := s.now()
	chain := &models.ActionChain{
		ID:             id.NewChainID(),
		DealID:         event.DealID,
		TriggerEventID: event.ID,
		Significance:   event.Significance,
		Status:         models.ChainPending,
		CreatedAt:      now,
	}

	pctx := predicate.FromPayload(event.Payload)
	actions := make([]models.ProposedAction, len(consequences))
	types := make([]models.ActionType, len(consequences))
	descriptions := make([]string, len(consequences))
	for i, c := range consequences {
		actions[i] = models.ProposedAction{
			ID:               id.NewActionID(),
			ChainID:          chain.ID,
			SequenceOrder:    i + 1,
			DependsOn:        []id.ActionID{},
			Type:             c.Type,
			TargetEntityType: targetKind(c.Target),
			TargetEntityID:   targetEntity(c.Target, event),
			Payload:          map[string]any{"action": c.Action, "priority": string(c.Priority)},
			Preview: models.Preview{
				Title:       fmt.Sprintf("%s: %s", c.Type, strutil.Truncate(c.Action, maxTitleRunes)),
				Description: c.Action,
			},
			Status:       models.ActionPending,
			ApprovalTier: approval.AssignTier(c.Type, pctx, policy),
			CreatedAt:    now,
		}
		types[i] = c.Type
		descriptions[i] = c.Action
	}
	summary := strings.Join(descriptions, "; ")

	if violation := s.checkConstitution(ctx, event.DealID, types, result); violation != nil {
		for i := range actions {
			if violation.Covers(actions[i].Type) {
				actions[i].ApprovalTier = models.Tier3
				actions[i].ConstitutionalViolation = true
			}
		}
		summary = violation.SummaryPrefix() + strutil.Truncate(summary, violationSummaryRunes)
		s.metrics.IncConstitutionalEscalation()
		s.track(ctx, event.DealID, audit.EventConstitutionalViolation, "action_chain", chain.ID.String(), map[string]any{
			"constraint_id": violation.Constraint.ID,
			"category":      string(violation.Constraint.Category),
			"affected":      len(violation.Affected),
		})
	}

	chain.Summary = strutil.Truncate(summary, models.MaxSummaryRunes)
	chain.ApprovalTier = models.ChainTier(actions)
	return chain, actions
}

func (s *Service) checkConstitution(ctx context.Context, dealID id.DealID, types []models.ActionType, result *Result) *constitution.Violation {
	if s.constitutions == nil {
		return nil
	}
	c, err := s.constitutions.GetConstitution(ctx, dealID)
	if err != nil {
		s.diagnose(ctx, result, StageConstitution, err)
		return nil
	}
	return constitution.Check(c, types)
}

// autoExecute runs every action of a tier-1 chain, then approves the chain.
// Failed actions do not block their siblings or the approval.
func (s *Service) autoExecute(ctx context.Context, result *Result) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.auto_execute")
	defer span.End()

	chain := result.Chain
	for i := range result.Actions {
		a := &result.Actions[i]
		outcome := s.executor.Execute(ctx, a)
		if err := a.ApplyExecution(outcome, s.now()); err != nil {
			s.diagnose(ctx, result, StageAutoExecution, err)
			continue
		}
		if err := s.store.UpdateAction(ctx, a, models.ActionPending); err != nil {
			s.diagnose(ctx, result, StageAutoExecution, fmt.Errorf("record action %s: %w", a.ID, err))
		}
	}

	approved := *chain
	if err := approved.TransitionTo(models.ChainApproved, s.now(), nil); err != nil {
		s.diagnose(ctx, result, StageChainApproval, err)
		return
	}
	if err := s.store.UpdateChain(ctx, &approved, models.ChainPending); err != nil {
		s.diagnose(ctx, result, StageChainApproval, err)
		return
	}
	*chain = approved
	s.metrics.IncAutoApproved()
	s.track(ctx, chain.DealID, audit.EventChainAutoApproved, "action_chain", chain.ID.String(), nil)
}

func (s *Service) markProcessed(ctx context.Context, result *Result) {
	now := s.now()
	if err := s.store.MarkEventProcessed(ctx, result.Event.ID, now); err != nil {
		s.diagnose(ctx, result, StageProcessed, err)
		return
	}
	_ = result.Event.MarkProcessed(now)
	s.track(ctx, result.Event.DealID, audit.EventEventProcessed, "propagation_event", result.Event.ID.String(), nil)
}

func (s *Service) critical(ctx context.Context, span trace.Span, stage Stage, err error) *CriticalError {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(stage))
	s.metrics.IncEmit("rejected")
	if dErrors.HasCode(err, dErrors.CodeValidation) {
		s.logger.WarnContext(ctx, "emit rejected", "stage", stage, "error", err)
	} else {
		s.logger.ErrorContext(ctx, "emit failed", "stage", stage, "error", err)
	}
	return &CriticalError{Stage: stage, Err: err}
}

func (s *Service) diagnose(ctx context.Context, result *Result, stage Stage, err error) {
	result.Diagnostics = append(result.Diagnostics, Diagnostic{Stage: stage, Err: err})
	s.metrics.IncDiagnostic(string(stage))
	trace.SpanFromContext(ctx).AddEvent("diagnostic", trace.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("error", err.Error()),
	))
	s.logger.ErrorContext(ctx, "emit step failed",
		"event_id", result.Event.ID,
		"deal_id", result.Event.DealID,
		"stage", stage,
		"error", err,
	)
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
		Details:    details,
	})
}

func targetKind(target string) string {
	if target == "" {
		return unknownTarget
	}
	return target
}

// targetEntity binds an action to the event's source entity when the
// consequence targets the same kind and the source id is a UUID.
func targetEntity(target string, event *models.Event) *id.EntityID {
	if target == "" || target != event.SourceEntityType {
		return nil
	}
	entityID, err := id.ParseEntityID(event.SourceEntityID)
	if err != nil {
		return nil
	}
	return &entityID
}

// GetEvent returns one stored event.
func (s *Service) GetEvent(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, translate(err, "event not found", "failed to load event")
	}
	return event, nil
}

// ListEvents pages a deal's events, newest first.
func (s *Service) ListEvents(ctx context.Context, dealID id.DealID, filter models.EventFilter) ([]models.Event, error) {
	filter.Normalize()
	events, err := s.store.ListEvents(ctx, dealID, filter)
	if err != nil {
		return nil, translate(err, "", "failed to list events")
	}
	return events, nil
}

// EventDetail returns an event with its chains and their ordered actions.
func (s *Service) EventDetail(ctx context.Context, eventID id.EventID) (*EventDetail, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	chains, err := s.store.ListChainsByEvent(ctx, eventID)
	if err != nil {
		return nil, translate(err, "", "failed to load chains")
	}
	detail := &EventDetail{Event: *event, Chains: make([]models.ChainDetail, 0, len(chains))}
	for _, c := range chains {
		actions, err := s.store.ListActions(ctx, c.ID)
		if err != nil {
			return nil, translate(err, "", "failed to load actions")
		}
		detail.Chains = append(detail.Chains, models.ChainDetail{Chain: c, Actions: actions})
	}
	return detail, nil
}

// ListActivity returns the deal's activity feed, newest first.
func (s *Service) ListActivity(ctx context.Context, dealID id.DealID, limit int) ([]models.ActivityEntry, error) {
	if s.activity == nil {
		return []models.ActivityEntry{}, nil
	}
	entries, err := s.activity.ListActivity(ctx, dealID, limit)
	if err != nil {
		return nil, translate(err, "", "failed to list activity")
	}
	return entries, nil
}

func translate(err error, notFoundMsg, internalMsg string) error {
	if notFoundMsg != "" && errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
