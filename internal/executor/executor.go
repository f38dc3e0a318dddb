// Package executor carries out approved actions against the deal's records.
//
// Dispatch is a fixed table built at construction. Action types without a
// concrete write fall back to an activity-log entry describing what happened.
// Every outcome, including panics inside a handler, is reported as an
// ExecutionResult rather than an error.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/audit"
)

// Store is the persistence the executor writes through.
type Store interface {
	GetChain(ctx context.Context, chainID id.ChainID) (*models.ActionChain, error)
	UpdateChecklistItemStatus(ctx context.Context, itemID id.EntityID, status string, at time.Time) error
	UpdateChecklistItemBallWith(ctx context.Context, itemID id.EntityID, ballWith string, at time.Time) error
	UpdateEntityStatus(ctx context.Context, entityType string, entityID id.EntityID, status string, at time.Time) error
	AppendActivity(ctx context.Context, entry models.ActivityEntry) error
}

// AuditTracker receives best-effort audit entries.
type AuditTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

type handlerFunc func(ctx context.Context, run *execution) (map[string]any, error)

// Executor runs proposed actions.
type Executor struct {
	store    Store
	auditor  AuditTracker
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	handlers map[models.ActionType]handlerFunc
}

type Option func(*Executor)

func WithAuditor(a AuditTracker) Option {
	return func(e *Executor) {
		e.auditor = a
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func New(store Store, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("dealflow/executor"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[models.ActionType]handlerFunc{
		models.ActionChecklistStatusUpdate:   e.checklistStatusUpdate,
		models.ActionChecklistBallWithUpdate: e.checklistBallWithUpdate,
		models.ActionStatusUpdate:            e.statusUpdate,
		models.ActionNotification:            e.notification,
		models.ActionTimelineUpdate:          e.timelineUpdate,
		models.ActionCriticalPathUpdate:      e.criticalPathUpdate,
		models.ActionClosingChecklistUpdate:  e.closingChecklistUpdate,
		models.ActionAnalysis:                e.analysis,
		models.ActionAgentEvaluation:         e.agentEvaluation,
	}
	return e
}

// Supports reports whether t has a handler.
func (e *Executor) Supports(t models.ActionType) bool {
	_, ok := e.handlers[t]
	return ok
}

// execution carries one action through its handler. The owning chain's deal
// is looked up once and shared by the fallback writer and the audit entry.
type execution struct {
	action *models.ProposedAction
	dealID *id.DealID
}

// Execute runs action and reports the outcome. It never panics and never
// returns an error; failures are carried in the result.
func (e *Executor) Execute(ctx context.Context, action *models.ProposedAction) models.ExecutionResult {
	ctx, span := e.tracer.Start(ctx, "executor.execute", trace.WithAttributes(
		attribute.String("action.id", action.ID.String()),
		attribute.String("action.type", string(action.Type)),
	))
	defer span.End()

	start := e.now()
	run := &execution{action: action, dealID: e.dealOf(ctx, action.ChainID)}
	result := e.dispatch(ctx, run)
	e.metrics.ObserveExecution(action.Type, result.Success, e.now().Sub(start))

	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
		e.logger.WarnContext(ctx, "action execution failed",
			"action_id", action.ID,
			"action_type", action.Type,
			"error", result.Error,
		)
	}
	e.track(ctx, run, result)
	return result
}

func (e *Executor) dispatch(ctx context.Context, run *execution) (result models.ExecutionResult) {
	handler, ok := e.handlers[run.action.Type]
	if !ok {
		return models.Failed(fmt.Sprintf("no executor for action type %s", run.action.Type))
	}
	defer func() {
		if r := recover(); r != nil {
			e.metrics.IncPanics()
			e.logger.ErrorContext(ctx, "action handler panicked",
				"action_id", run.action.ID,
				"action_type", run.action.Type,
				"panic", r,
			)
			result = models.Failed(fmt.Sprintf("panic: %v", r))
		}
	}()
	out, err := handler(ctx, run)
	if err != nil {
		return models.Failed(err.Error())
	}
	return models.Succeeded(out)
}

func (e *Executor) dealOf(ctx context.Context, chainID id.ChainID) *id.DealID {
	chain, err := e.store.GetChain(ctx, chainID)
	if err != nil {
		e.logger.DebugContext(ctx, "owning chain not found", "chain_id", chainID, "error", err)
		return nil
	}
	return &chain.DealID
}

func (e *Executor) track(ctx context.Context, run *execution, result models.ExecutionResult) {
	if e.auditor == nil {
		return
	}
	action := audit.EventActionExecuted
	details := map[string]any{
		"action_type": string(run.action.Type),
		"chain_id":    run.action.ChainID.String(),
	}
	if !result.Success {
		action = audit.EventActionFailed
		details["error"] = result.Error
	}
	event := audit.OpsEvent{
		Subject:    run.action.ID.String(),
		EntityType: "proposed_action",
		Action:     string(action),
		Details:    details,
	}
	if run.dealID != nil {
		event.DealID = *run.dealID
	}
	e.auditor.Track(ctx, event)
}
