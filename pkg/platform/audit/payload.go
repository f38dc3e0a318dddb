package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "dealflow/pkg/domain"
)

// payload is the JSON structure published to Kafka.
type payload struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Timestamp  string         `json:"timestamp"`
	DealID     string         `json:"deal_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Subject    string         `json:"subject"`
	EntityType string         `json:"entity_type,omitempty"`
	Action     string         `json:"action"`
	Decision   string         `json:"decision,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Prepare assigns the event an ID when it has none. The category is always
// derived from the action.
func Prepare(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Category = AuditEvent(event.Action).Category()
	return event
}

// NewOutboxEntry serializes a prepared event for the outbox.
func NewOutboxEntry(event Event, now time.Time) (OutboxEntry, error) {
	event = Prepare(event)
	p := payload{
		ID:         event.ID,
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Subject:    event.Subject,
		EntityType: event.EntityType,
		Action:     event.Action,
		Decision:   event.Decision,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
		Details:    event.Details,
	}
	aggregateType, aggregateID := "audit", event.ID
	if !event.DealID.IsNil() {
		p.DealID = event.DealID.String()
		aggregateType, aggregateID = "deal", p.DealID
	}
	if !event.ActorID.IsNil() {
		p.ActorID = event.ActorID.String()
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("marshal audit payload: %w", err)
	}
	return OutboxEntry{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event.Action,
		Payload:       raw,
		CreatedAt:     now,
	}, nil
}

// DecodePayload parses a published outbox payload back into an Event.
func DecodePayload(raw []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	if p.ID == "" || p.Action == "" {
		return Event{}, fmt.Errorf("audit payload missing id or action")
	}

	event := Event{
		ID:         p.ID,
		Category:   EventCategory(p.Category),
		Subject:    p.Subject,
		EntityType: p.EntityType,
		Action:     p.Action,
		Decision:   p.Decision,
		Reason:     p.Reason,
		RequestID:  p.RequestID,
		Details:    p.Details,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	}
	if p.DealID != "" {
		dealID, err := id.ParseDealID(p.DealID)
		if err != nil {
			return Event{}, fmt.Errorf("audit payload deal_id: %w", err)
		}
		event.DealID = dealID
	}
	if p.ActorID != "" {
		actorID, err := id.ParseUserID(p.ActorID)
		if err != nil {
			return Event{}, fmt.Errorf("audit payload actor_id: %w", err)
		}
		event.ActorID = actorID
	}
	return event, nil
}
