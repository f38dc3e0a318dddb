package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"dealflow/internal/models"
	strutil "dealflow/pkg/platform/strings"
)

const maxDescriptionRunes = 500

func (e *Executor) checklistStatusUpdate(ctx context.Context, run *execution) (map[string]any, error) {
	status := payloadString(run.action.Payload, "new_status", "status")
	target := run.action.TargetEntityID
	if target == nil || status == "" {
		return e.logActivity(ctx, run, "Checklist status update: "+status)
	}
	if err := e.store.UpdateChecklistItemStatus(ctx, *target, status, e.now()); err != nil {
		return nil, err
	}
	return map[string]any{"updated": target.String(), "status": status}, nil
}

func (e *Executor) checklistBallWithUpdate(ctx context.Context, run *execution) (map[string]any, error) {
	ballWith := payloadString(run.action.Payload, "ball_with", "new_ball_with")
	target := run.action.TargetEntityID
	if target == nil || ballWith == "" {
		return e.logActivity(ctx, run, "Ball-with update: "+ballWith)
	}
	if err := e.store.UpdateChecklistItemBallWith(ctx, *target, ballWith, e.now()); err != nil {
		return nil, err
	}
	return map[string]any{"updated": target.String(), "ball_with": ballWith}, nil
}

func (e *Executor) statusUpdate(ctx context.Context, run *execution) (map[string]any, error) {
	status := payloadString(run.action.Payload, "new_status", "status")
	target := run.action.TargetEntityID
	if target == nil || status == "" {
		return e.logActivity(ctx, run, "Status update: "+status)
	}
	if err := e.store.UpdateEntityStatus(ctx, run.action.TargetEntityType, *target, status, e.now()); err != nil {
		return nil, err
	}
	return map[string]any{"updated": target.String(), "status": status}, nil
}

func (e *Executor) notification(ctx context.Context, run *execution) (map[string]any, error) {
	desc := payloadString(run.action.Payload, "action", "message")
	if desc == "" {
		desc = "Notification"
	}
	return e.logActivity(ctx, run, desc)
}

func (e *Executor) timelineUpdate(ctx context.Context, run *execution) (map[string]any, error) {
	raw, err := json.Marshal(run.action.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode timeline payload: %w", err)
	}
	return e.logActivity(ctx, run, "Timeline update: "+string(raw))
}

func (e *Executor) criticalPathUpdate(ctx context.Context, run *execution) (map[string]any, error) {
	return e.logActivity(ctx, run, "Critical path recalculated")
}

func (e *Executor) closingChecklistUpdate(ctx context.Context, run *execution) (map[string]any, error) {
	return e.logActivity(ctx, run, "Closing checklist updated: "+payloadString(run.action.Payload, "action"))
}

func (e *Executor) analysis(ctx context.Context, run *execution) (map[string]any, error) {
	return e.logActivity(ctx, run, "Analysis completed: "+payloadString(run.action.Payload, "action"))
}

func (e *Executor) agentEvaluation(ctx context.Context, run *execution) (map[string]any, error) {
	return e.logActivity(ctx, run, "Agent evaluation: "+payloadString(run.action.Payload, "action"))
}

// logActivity records description on the owning deal's activity log. An
// action whose chain cannot be found is still reported as logged; a failed
// write is logged and does not fail the action.
func (e *Executor) logActivity(ctx context.Context, run *execution, description string) (map[string]any, error) {
	if run.dealID != nil {
		a := run.action
		entry := models.ActivityEntry{
			DealID:     *run.dealID,
			ActorType:  models.ActorSystem,
			Action:     string(a.Type),
			EntityType: a.TargetEntityType,
			EntityID:   a.TargetEntityID,
			Details: map[string]any{
				"description": strutil.Truncate(description, maxDescriptionRunes),
				"action_id":   a.ID.String(),
				"chain_id":    a.ChainID.String(),
				"payload":     a.Payload,
			},
			CreatedAt: e.now(),
		}
		if err := e.store.AppendActivity(ctx, entry); err != nil {
			e.logger.WarnContext(ctx, "activity log write failed",
				"action_id", a.ID,
				"error", err,
			)
		}
	}
	return map[string]any{"logged": true, "description": description}, nil
}

// payloadString returns the first non-empty value among keys.
func payloadString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := payload[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if s != "" {
			return s
		}
	}
	return ""
}
