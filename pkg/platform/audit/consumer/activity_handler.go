package consumer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"dealflow/internal/models"
	"dealflow/internal/platform/kafka/consumer"
	id "dealflow/pkg/domain"
	audit "dealflow/pkg/platform/audit"
)

// ActivityStore is where materialized audit events land.
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry models.ActivityEntry) error
}

// ActivityHandler materializes deal-scoped audit events into the deal's
// activity log. Writes are idempotent on the audit event id, so redelivery is
// harmless.
type ActivityHandler struct {
	store  ActivityStore
	logger *slog.Logger
}

func NewActivityHandler(store ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{store: store, logger: logger}
}

// Handle decodes one audit payload. Malformed payloads and events without a
// deal are skipped; store failures are returned so the batch is retried.
func (h *ActivityHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := audit.DecodePayload(msg.Value)
	if err != nil {
		h.logger.WarnContext(ctx, "skipping malformed audit payload",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.DealID.IsNil() {
		return nil
	}

	entryID, err := uuid.Parse(event.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "skipping audit event with non-uuid id", "event_id", event.ID)
		return nil
	}

	entry := models.ActivityEntry{
		ID:         id.EntityID(entryID),
		DealID:     event.DealID,
		ActorType:  models.ActorSystem,
		Action:     event.Action,
		EntityType: event.EntityType,
		Details:    activityDetails(event),
		CreatedAt:  event.Timestamp,
	}
	if !event.ActorID.IsNil() {
		actor := event.ActorID
		entry.ActorID = &actor
		entry.ActorType = models.ActorUser
	}
	if subject, err := id.ParseEntityID(event.Subject); err == nil {
		entry.EntityID = &subject
	}

	return h.store.AppendActivity(ctx, entry)
}

func activityDetails(event audit.Event) map[string]any {
	details := make(map[string]any, len(event.Details)+4)
	for k, v := range event.Details {
		details[k] = v
	}
	details["category"] = string(event.Category)
	if event.Decision != "" {
		details["decision"] = event.Decision
	}
	if event.Reason != "" {
		details["reason"] = event.Reason
	}
	if event.RequestID != "" {
		details["request_id"] = event.RequestID
	}
	return details
}
