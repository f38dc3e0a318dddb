package orchestrator

import (
	"strings"

	"dealflow/internal/models"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
)

const maxSourceFieldLen = 200

// EmitRequest is the in-process emit contract. Actor and Role only steer
// policy selection; both may be empty for system producers.
type EmitRequest struct {
	DealID           id.DealID
	EventType        models.EventType
	SourceEntityType string
	SourceEntityID   string
	Payload          map[string]any
	Significance     *int

	Actor id.UserID
	Role  string
}

func (r *EmitRequest) Normalize() {
	r.SourceEntityType = strings.TrimSpace(r.SourceEntityType)
	r.SourceEntityID = strings.TrimSpace(r.SourceEntityID)
	r.Role = strings.TrimSpace(r.Role)
	if r.Payload == nil {
		r.Payload = map[string]any{}
	}
}

func (r *EmitRequest) Validate() error {
	if r.DealID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "deal_id is required")
	}
	if !r.EventType.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown event_type %q", r.EventType)
	}
	if r.SourceEntityType == "" {
		return dErrors.New(dErrors.CodeValidation, "source_entity_type is required")
	}
	if r.SourceEntityID == "" {
		return dErrors.New(dErrors.CodeValidation, "source_entity_id is required")
	}
	if len(r.SourceEntityType) > maxSourceFieldLen || len(r.SourceEntityID) > maxSourceFieldLen {
		return dErrors.Newf(dErrors.CodeValidation, "source fields must be at most %d characters", maxSourceFieldLen)
	}
	if _, err := models.ParseSignificance(r.Significance); err != nil {
		return err
	}
	return nil
}
