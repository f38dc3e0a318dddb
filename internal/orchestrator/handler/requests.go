package handler

import (
	"net/url"
	"strconv"
	"strings"

	"dealflow/internal/models"
	"dealflow/internal/orchestrator"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
)

// EmitRequest is the HTTP request body for POST /deals/{dealID}/events.
type EmitRequest struct {
	EventType        string         `json:"event_type"`
	SourceEntityType string         `json:"source_entity_type"`
	SourceEntityID   string         `json:"source_entity_id"`
	Payload          map[string]any `json:"payload"`
	Significance     *int           `json:"significance,omitempty"`

	parsedType models.EventType
}

func (r *EmitRequest) Normalize() {
	r.EventType = strings.TrimSpace(r.EventType)
	r.SourceEntityType = strings.TrimSpace(r.SourceEntityType)
	r.SourceEntityID = strings.TrimSpace(r.SourceEntityID)
}

// Validate implements httputil.Preparable. Field rules beyond the event type
// are enforced by the service.
func (r *EmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	t, err := models.ParseEventType(r.EventType)
	if err != nil {
		return err
	}
	r.parsedType = t
	return nil
}

func (r *EmitRequest) toDomain(dealID id.DealID, actor id.UserID, role string) orchestrator.EmitRequest {
	return orchestrator.EmitRequest{
		DealID:           dealID,
		EventType:        r.parsedType,
		SourceEntityType: r.SourceEntityType,
		SourceEntityID:   r.SourceEntityID,
		Payload:          r.Payload,
		Significance:     r.Significance,
		Actor:            actor,
		Role:             role,
	}
}

func parseEventFilter(q url.Values) (models.EventFilter, error) {
	var f models.EventFilter
	if raw := q.Get("type"); raw != "" {
		t, err := models.ParseEventType(raw)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if raw := q.Get("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "processed must be true or false")
		}
		f.Processed = &processed
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = limit
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer")
		}
		f.Offset = offset
	}
	return f, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
	}
	return limit, nil
}
