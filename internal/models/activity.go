package models

import (
	"time"

	id "dealflow/pkg/domain"
)

// Actor kinds recorded on activity entries.
const (
	ActorSystem = "system"
	ActorUser   = "user"
)

// ActivityEntry is one line of a deal's activity log. Executor fallbacks and
// materialized audit events both land here.
type ActivityEntry struct {
	ID         id.EntityID    `json:"id"`
	DealID     id.DealID      `json:"deal_id"`
	ActorID    *id.UserID     `json:"actor_id,omitempty"`
	ActorType  string         `json:"actor_type"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   *id.EntityID   `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}
