package models

import (
	"fmt"
	"strings"
	"time"

	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/sentinel"
)

// EventType classifies something that happened in a deal. The set is closed;
// producers cannot emit a type that is not listed here.
type EventType string

const (
	EventDealCreated           EventType = "deal.created"
	EventDealParametersUpdated EventType = "deal.parameters_updated"
	EventDealStatusChanged     EventType = "deal.status_changed"
	EventDealTimelineUpdated   EventType = "deal.timeline_updated"

	EventChecklistGenerated          EventType = "checklist.generated"
	EventChecklistItemStatusChanged  EventType = "checklist.item_status_changed"
	EventChecklistItemAssigned       EventType = "checklist.item_assigned"
	EventChecklistItemOverdue        EventType = "checklist.item_overdue"
	EventChecklistDependencyResolved EventType = "checklist.dependency_resolved"

	EventDocumentVersionCreated     EventType = "document.version_created"
	EventDocumentMarkupReceived     EventType = "document.markup_received"
	EventDocumentMarkupAnalyzed     EventType = "document.markup_analyzed"
	EventDocumentSentToCounterparty EventType = "document.sent_to_counterparty"
	EventDocumentAttorneyReviewed   EventType = "document.attorney_reviewed"

	EventDDFindingCreated        EventType = "dd.finding_created"
	EventDDFindingConfirmed      EventType = "dd.finding_confirmed"
	EventDDFindingResolved       EventType = "dd.finding_resolved"
	EventDDCoverageGapIdentified EventType = "dd.coverage_gap_identified"
	EventDDRequestSent           EventType = "dd.request_sent"
	EventDDResponseReceived      EventType = "dd.response_received"

	EventEmailReceived             EventType = "email.received"
	EventEmailClassified           EventType = "email.classified"
	EventEmailPositionExtracted    EventType = "email.position_extracted"
	EventEmailActionItemIdentified EventType = "email.action_item_identified"
	EventEmailAttachmentProcessed  EventType = "email.attachment_processed"

	EventNegotiationPositionUpdated    EventType = "negotiation.position_updated"
	EventNegotiationConcessionDetected EventType = "negotiation.concession_detected"
	EventNegotiationImpasseDetected    EventType = "negotiation.impasse_detected"
	EventNegotiationRoundCompleted     EventType = "negotiation.round_completed"

	EventDisclosureScheduleUpdated        EventType = "disclosure.schedule_updated"
	EventDisclosureGapIdentified          EventType = "disclosure.gap_identified"
	EventDisclosureClientResponseReceived EventType = "disclosure.client_response_received"
	EventDisclosureCrossReferenceBroken   EventType = "disclosure.cross_reference_broken"

	EventThirdPartyDeliverableReceived   EventType = "third_party.deliverable_received"
	EventThirdPartyDeliverableOverdue    EventType = "third_party.deliverable_overdue"
	EventThirdPartyCommunicationReceived EventType = "third_party.communication_received"

	EventClientActionItemCreated   EventType = "client.action_item_created"
	EventClientActionItemCompleted EventType = "client.action_item_completed"
	EventClientCommunicationNeeded EventType = "client.communication_needed"
	EventClientApprovalRequested   EventType = "client.approval_requested"

	EventClosingConditionSatisfied      EventType = "closing.condition_satisfied"
	EventClosingConditionWaived         EventType = "closing.condition_waived"
	EventClosingDeliverableReceived     EventType = "closing.deliverable_received"
	EventClosingBlockingIssueIdentified EventType = "closing.blocking_issue_identified"

	EventSystemDeadlineApproaching      EventType = "system.deadline_approaching"
	EventSystemCriticalPathChanged      EventType = "system.critical_path_changed"
	EventSystemAgentActivationTriggered EventType = "system.agent_activation_triggered"
)

var eventTypes = map[EventType]struct{}{
	EventDealCreated: {}, EventDealParametersUpdated: {}, EventDealStatusChanged: {}, EventDealTimelineUpdated: {},
	EventChecklistGenerated: {}, EventChecklistItemStatusChanged: {}, EventChecklistItemAssigned: {},
	EventChecklistItemOverdue: {}, EventChecklistDependencyResolved: {},
	EventDocumentVersionCreated: {}, EventDocumentMarkupReceived: {}, EventDocumentMarkupAnalyzed: {},
	EventDocumentSentToCounterparty: {}, EventDocumentAttorneyReviewed: {},
	EventDDFindingCreated: {}, EventDDFindingConfirmed: {}, EventDDFindingResolved: {},
	EventDDCoverageGapIdentified: {}, EventDDRequestSent: {}, EventDDResponseReceived: {},
	EventEmailReceived: {}, EventEmailClassified: {}, EventEmailPositionExtracted: {},
	EventEmailActionItemIdentified: {}, EventEmailAttachmentProcessed: {},
	EventNegotiationPositionUpdated: {}, EventNegotiationConcessionDetected: {},
	EventNegotiationImpasseDetected: {}, EventNegotiationRoundCompleted: {},
	EventDisclosureScheduleUpdated: {}, EventDisclosureGapIdentified: {},
	EventDisclosureClientResponseReceived: {}, EventDisclosureCrossReferenceBroken: {},
	EventThirdPartyDeliverableReceived: {}, EventThirdPartyDeliverableOverdue: {}, EventThirdPartyCommunicationReceived: {},
	EventClientActionItemCreated: {}, EventClientActionItemCompleted: {},
	EventClientCommunicationNeeded: {}, EventClientApprovalRequested: {},
	EventClosingConditionSatisfied: {}, EventClosingConditionWaived: {},
	EventClosingDeliverableReceived: {}, EventClosingBlockingIssueIdentified: {},
	EventSystemDeadlineApproaching: {}, EventSystemCriticalPathChanged: {}, EventSystemAgentActivationTriggered: {},
}

// AllEventTypes returns every known event type, in no particular order.
func AllEventTypes() []EventType {
	out := make([]EventType, 0, len(eventTypes))
	for t := range eventTypes {
		out = append(out, t)
	}
	return out
}

// ParseEventType validates s against the closed set.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.TrimSpace(s))
	if t == "" {
		return "", dErrors.New(dErrors.CodeValidation, "event_type is required")
	}
	if !t.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown event_type %q", s)
	}
	return t, nil
}

func (t EventType) IsValid() bool {
	_, ok := eventTypes[t]
	return ok
}

// Subsystem is the prefix before the dot: "dd" for "dd.finding_confirmed".
func (t EventType) Subsystem() string {
	sub, _, _ := strings.Cut(string(t), ".")
	return sub
}

func (t EventType) String() string { return string(t) }

// Significance ranks an event from 1 (trivial) to 5 (deal-critical).
type Significance int

const (
	SignificanceMin     Significance = 1
	SignificanceDefault Significance = 3
	SignificanceMax     Significance = 5
)

// ParseSignificance applies the default for nil and rejects values outside 1-5.
func ParseSignificance(v *int) (Significance, error) {
	if v == nil {
		return SignificanceDefault, nil
	}
	s := Significance(*v)
	if !s.IsValid() {
		return 0, dErrors.Newf(dErrors.CodeValidation, "significance must be between %d and %d", SignificanceMin, SignificanceMax)
	}
	return s, nil
}

func (s Significance) IsValid() bool {
	return s >= SignificanceMin && s <= SignificanceMax
}

// Event is an immutable record of something that happened in a deal. The only
// mutation it ever sees is the single flip of Processed.
type Event struct {
	ID               id.EventID     `json:"id"`
	DealID           id.DealID      `json:"deal_id"`
	Type             EventType      `json:"event_type"`
	SourceEntityType string         `json:"source_entity_type"`
	SourceEntityID   string         `json:"source_entity_id"`
	Payload          map[string]any `json:"payload"`
	Significance     Significance   `json:"significance"`
	CreatedAt        time.Time      `json:"created_at"`
	Processed        bool           `json:"processed"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}

// MarkProcessed flips the processed flag. A second call fails with
// sentinel.ErrInvalidState.
func (e *Event) MarkProcessed(now time.Time) error {
	if e.Processed {
		return fmt.Errorf("event %s already processed: %w", e.ID, sentinel.ErrInvalidState)
	}
	e.Processed = true
	e.ProcessedAt = &now
	return nil
}

// EventFilter narrows event listings for a deal.
type EventFilter struct {
	Type      EventType
	Processed *bool
	Limit     int
	Offset    int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps paging to sane bounds.
func (f *EventFilter) Normalize() {
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
