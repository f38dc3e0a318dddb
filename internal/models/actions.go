package models

import (
	"fmt"
	"strings"
	"time"

	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/sentinel"
)

// ActionType names one kind of proposed follow-up work.
type ActionType string

const (
	ActionDocumentEdit              ActionType = "document_edit"
	ActionDocumentGenerate          ActionType = "document_generate"
	ActionDocumentModification      ActionType = "document_modification"
	ActionChecklistStatusUpdate     ActionType = "checklist_status_update"
	ActionChecklistBallWithUpdate   ActionType = "checklist_ball_with_update"
	ActionChecklistAddItem          ActionType = "checklist_add_item"
	ActionChecklistRegeneration     ActionType = "checklist_regeneration"
	ActionDisclosureScheduleEntry   ActionType = "disclosure_schedule_entry"
	ActionDisclosureScheduleRemove  ActionType = "disclosure_schedule_remove"
	ActionDisclosureScheduleUpdate  ActionType = "disclosure_schedule_update"
	ActionEmailDraft                ActionType = "email_draft"
	ActionEmailSend                 ActionType = "email_send"
	ActionDDFindingCreate           ActionType = "dd_finding_create"
	ActionDDRequestCreate           ActionType = "dd_request_create"
	ActionNegotiationPositionUpdate ActionType = "negotiation_position_update"
	ActionNegotiationUpdate         ActionType = "negotiation_update"
	ActionClientActionItemCreate    ActionType = "client_action_item_create"
	ActionClientCommunicationDraft  ActionType = "client_communication_draft"
	ActionClientCommunication       ActionType = "client_communication"
	ActionThirdPartyCommunication   ActionType = "third_party_communication"
	ActionClosingChecklistUpdate    ActionType = "closing_checklist_update"
	ActionClosingReadinessCheck     ActionType = "closing_readiness_check"
	ActionNotification              ActionType = "notification"
	ActionAgentActivation           ActionType = "agent_activation"
	ActionAgentEvaluation           ActionType = "agent_evaluation"
	ActionStatusUpdate              ActionType = "status_update"
	ActionTimelineUpdate            ActionType = "timeline_update"
	ActionCriticalPathUpdate        ActionType = "critical_path_update"
	ActionDocumentReview            ActionType = "document_review"
	ActionAnalysis                  ActionType = "analysis"
)

var actionTypes = map[ActionType]struct{}{
	ActionDocumentEdit: {}, ActionDocumentGenerate: {}, ActionDocumentModification: {},
	ActionChecklistStatusUpdate: {}, ActionChecklistBallWithUpdate: {}, ActionChecklistAddItem: {},
	ActionChecklistRegeneration: {}, ActionDisclosureScheduleEntry: {}, ActionDisclosureScheduleRemove: {},
	ActionDisclosureScheduleUpdate: {}, ActionEmailDraft: {}, ActionEmailSend: {},
	ActionDDFindingCreate: {}, ActionDDRequestCreate: {}, ActionNegotiationPositionUpdate: {},
	ActionNegotiationUpdate: {}, ActionClientActionItemCreate: {}, ActionClientCommunicationDraft: {},
	ActionClientCommunication: {}, ActionThirdPartyCommunication: {}, ActionClosingChecklistUpdate: {},
	ActionClosingReadinessCheck: {}, ActionNotification: {}, ActionAgentActivation: {},
	ActionAgentEvaluation: {}, ActionStatusUpdate: {}, ActionTimelineUpdate: {},
	ActionCriticalPathUpdate: {}, ActionDocumentReview: {}, ActionAnalysis: {},
}

// AllActionTypes returns every known action type, in no particular order.
func AllActionTypes() []ActionType {
	out := make([]ActionType, 0, len(actionTypes))
	for t := range actionTypes {
		out = append(out, t)
	}
	return out
}

func ParseActionType(s string) (ActionType, error) {
	t := ActionType(strings.TrimSpace(s))
	if !t.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown action_type %q", s)
	}
	return t, nil
}

func (t ActionType) IsValid() bool {
	_, ok := actionTypes[t]
	return ok
}

func (t ActionType) String() string { return string(t) }

// Tier is the human-approval level an action or chain needs.
//   - 1: executes automatically
//   - 2: one approver
//   - 3: partner sign-off
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

func (t Tier) IsValid() bool { return t >= Tier1 && t <= Tier3 }

// ChainStatus is the lifecycle state of an ActionChain.
type ChainStatus string

const (
	ChainPending           ChainStatus = "pending"
	ChainApproved          ChainStatus = "approved"
	ChainPartiallyApproved ChainStatus = "partially_approved"
	ChainRejected          ChainStatus = "rejected"
	ChainExpired           ChainStatus = "expired"
)

var chainTransitions = map[ChainStatus][]ChainStatus{
	ChainPending:           {ChainApproved, ChainPartiallyApproved, ChainRejected, ChainExpired},
	ChainPartiallyApproved: {ChainApproved, ChainPartiallyApproved, ChainRejected},
}

// ActionStatus is the lifecycle state of a ProposedAction.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
	ActionExecuted ActionStatus = "executed"
	ActionFailed   ActionStatus = "failed"
)

var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionPending:  {ActionApproved, ActionRejected, ActionExecuted, ActionFailed},
	ActionApproved: {ActionExecuted, ActionFailed},
}

func canTransition[S comparable](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

const MaxSummaryRunes = 500

// ActionChain groups every action derived from one event. It is the unit of
// approval.
type ActionChain struct {
	ID             id.ChainID   `json:"id"`
	DealID         id.DealID    `json:"deal_id"`
	TriggerEventID id.EventID   `json:"trigger_event_id"`
	Summary        string       `json:"summary"`
	Significance   Significance `json:"significance"`
	ApprovalTier   Tier         `json:"approval_tier"`
	Status         ChainStatus  `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	ApprovedAt     *time.Time   `json:"approved_at,omitempty"`
	ApprovedBy     *id.UserID   `json:"approved_by,omitempty"`
}

// CanExecute reports whether the chain's actions may run. A tier-1 chain's
// approval is implicit; every other chain must have left pending.
func (c *ActionChain) CanExecute() bool {
	return c.Status != ChainPending || c.ApprovalTier == Tier1
}

func (c *ActionChain) CanTransitionTo(next ChainStatus) bool {
	return canTransition(chainTransitions, c.Status, next)
}

// TransitionTo moves the chain to next, stamping approval metadata when the
// move resolves it.
func (c *ActionChain) TransitionTo(next ChainStatus, now time.Time, actor *id.UserID) error {
	if !c.CanTransitionTo(next) {
		return fmt.Errorf("chain %s: %s -> %s: %w", c.ID, c.Status, next, sentinel.ErrInvalidState)
	}
	c.Status = next
	switch next {
	case ChainApproved, ChainPartiallyApproved, ChainRejected:
		c.ApprovedAt = &now
		if actor != nil {
			c.ApprovedBy = actor
		}
	}
	return nil
}

// Preview is what a reviewer sees before approving an action.
type Preview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Diff        string `json:"diff,omitempty"`
	Draft       string `json:"draft,omitempty"`
}

// ProposedAction is one concrete unit of work inside a chain.
type ProposedAction struct {
	ID                      id.ActionID      `json:"id"`
	ChainID                 id.ChainID       `json:"chain_id"`
	SequenceOrder           int              `json:"sequence_order"`
	DependsOn               []id.ActionID    `json:"depends_on"`
	Type                    ActionType       `json:"action_type"`
	TargetEntityType        string           `json:"target_entity_type"`
	TargetEntityID          *id.EntityID     `json:"target_entity_id,omitempty"`
	Payload                 map[string]any   `json:"payload"`
	Preview                 Preview          `json:"preview"`
	Status                  ActionStatus     `json:"status"`
	ApprovalTier            Tier             `json:"approval_tier"`
	ExecutionResult         *ExecutionResult `json:"execution_result,omitempty"`
	ConstitutionalViolation bool             `json:"constitutional_violation"`
	CreatedAt               time.Time        `json:"created_at"`
	ExecutedAt              *time.Time       `json:"executed_at,omitempty"`
}

func (a *ProposedAction) CanTransitionTo(next ActionStatus) bool {
	return canTransition(actionTransitions, a.Status, next)
}

// Approve moves a pending action to approved, ahead of execution.
func (a *ProposedAction) Approve() error {
	if !a.CanTransitionTo(ActionApproved) {
		return fmt.Errorf("action %s: %s -> %s: %w", a.ID, a.Status, ActionApproved, sentinel.ErrInvalidState)
	}
	a.Status = ActionApproved
	return nil
}

// Reject moves a pending action to rejected.
func (a *ProposedAction) Reject() error {
	if !a.CanTransitionTo(ActionRejected) {
		return fmt.Errorf("action %s: %s -> %s: %w", a.ID, a.Status, ActionRejected, sentinel.ErrInvalidState)
	}
	a.Status = ActionRejected
	return nil
}

// ApplyExecution records an executor outcome: executed on success, failed
// otherwise.
func (a *ProposedAction) ApplyExecution(result ExecutionResult, now time.Time) error {
	next := ActionFailed
	if result.Success {
		next = ActionExecuted
	}
	if !a.CanTransitionTo(next) {
		return fmt.Errorf("action %s: %s -> %s: %w", a.ID, a.Status, next, sentinel.ErrInvalidState)
	}
	a.Status = next
	a.ExecutionResult = &result
	a.ExecutedAt = &now
	return nil
}

// ExecutionResult is the executor's account of one action.
type ExecutionResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(result map[string]any) ExecutionResult {
	return ExecutionResult{Success: true, Result: result}
}

// Failed builds a failed result carrying msg.
func Failed(msg string) ExecutionResult {
	return ExecutionResult{Error: msg}
}

// ChainTier is the highest tier among actions; an empty list yields Tier1.
func ChainTier(actions []ProposedAction) Tier {
	highest := Tier1
	for _, a := range actions {
		if a.ApprovalTier > highest {
			highest = a.ApprovalTier
		}
	}
	return highest
}

// PendingActions returns the actions still awaiting a decision.
func PendingActions(actions []ProposedAction) []ProposedAction {
	var out []ProposedAction
	for _, a := range actions {
		if a.Status == ActionPending {
			out = append(out, a)
		}
	}
	return out
}

// ChainDetail is a chain with its actions in sequence order.
type ChainDetail struct {
	Chain   ActionChain      `json:"chain"`
	Actions []ProposedAction `json:"actions"`
}

// QueueFilter narrows the approval queue.
type QueueFilter struct {
	DealID *id.DealID
	Limit  int
	Offset int
}

func (f *QueueFilter) Normalize() {
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset)
}

// QueueStats summarizes the approval backlog.
type QueueStats struct {
	PendingCount     int           `json:"pending_count"`
	ByTier           map[Tier]int  `json:"by_tier"`
	AvgResolution    time.Duration `json:"-"`
	AvgResolutionMS  int64         `json:"avg_resolution_ms"`
	RecentlyApproved int           `json:"recently_approved"`
}
