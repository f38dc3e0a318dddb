package audit

import (
	"time"

	id "dealflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers human approval decisions. These are written
	// fail-closed and kept for the life of the deal.
	// Examples: chain approved, action modified, chain rejected.
	CategoryCompliance EventCategory = "compliance"

	// CategoryGovernance covers breaches of a deal's partner constitution.
	CategoryGovernance EventCategory = "governance"

	// CategoryOperations covers pipeline activity useful for debugging and the
	// deal activity feed. These are best-effort and may be sampled.
	// Examples: event processed, chain created, action executed.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         string
	Category   EventCategory
	Timestamp  time.Time
	DealID     id.DealID
	ActorID    id.UserID // nil for system-initiated work
	Subject    string    // id of the chain, action or event the entry is about
	EntityType string
	Action     string
	Decision   string
	Reason     string
	RequestID  string
	Details    map[string]any
}

type AuditEvent string

const (
	// Pipeline events
	EventEventReceived     AuditEvent = "event_received"
	EventEventProcessed    AuditEvent = "event_processed"
	EventChainCreated      AuditEvent = "chain_created"
	EventChainAutoApproved AuditEvent = "chain_auto_approved"
	EventActionExecuted    AuditEvent = "action_executed"
	EventActionFailed      AuditEvent = "action_failed"
	EventChainExpired      AuditEvent = "chain_expired"

	// Approval decisions
	EventChainApproved  AuditEvent = "chain_approved"
	EventChainRejected  AuditEvent = "chain_rejected"
	EventActionApproved AuditEvent = "action_approved"
	EventActionModified AuditEvent = "action_modified"
	EventActionRejected AuditEvent = "action_rejected"

	// Constitution events
	EventConstitutionalViolation AuditEvent = "constitutional_violation"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventChainApproved:  CategoryCompliance,
	EventChainRejected:  CategoryCompliance,
	EventActionApproved: CategoryCompliance,
	EventActionModified: CategoryCompliance,
	EventActionRejected: CategoryCompliance,

	EventConstitutionalViolation: CategoryGovernance,

	EventEventReceived:     CategoryOperations,
	EventEventProcessed:    CategoryOperations,
	EventChainCreated:      CategoryOperations,
	EventChainAutoApproved: CategoryOperations,
	EventActionExecuted:    CategoryOperations,
	EventActionFailed:      CategoryOperations,
	EventChainExpired:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures a human approval decision requiring guaranteed
// persistence. Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp  time.Time // set automatically if zero
	DealID     id.DealID
	ActorID    id.UserID // the approver (required)
	Subject    string    // chain or action id
	EntityType string    // "action_chain" or "proposed_action"
	Action     string    // e.g. "chain_approved"
	Decision   string    // resulting status
	Reason     string
	RequestID  string
	Details    map[string]any
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:   CategoryCompliance,
		Timestamp:  e.Timestamp,
		DealID:     e.DealID,
		ActorID:    e.ActorID,
		Subject:    e.Subject,
		EntityType: e.EntityType,
		Action:     e.Action,
		Decision:   e.Decision,
		Reason:     e.Reason,
		RequestID:  e.RequestID,
		Details:    e.Details,
	}
}

// OpsEvent captures pipeline activity with minimal overhead.
// Use with the ops tracker for non-blocking, sampled emission.
type OpsEvent struct {
	Timestamp  time.Time // set automatically if zero
	DealID     id.DealID
	Subject    string
	EntityType string
	Action     string
	RequestID  string
	Details    map[string]any
}

// ToEvent converts to the stored Event shape. The category follows the action
// so governance events routed through the tracker keep their category.
func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:   AuditEvent(e.Action).Category(),
		Timestamp:  e.Timestamp,
		DealID:     e.DealID,
		Subject:    e.Subject,
		EntityType: e.EntityType,
		Action:     e.Action,
		RequestID:  e.RequestID,
		Details:    e.Details,
	}
}
