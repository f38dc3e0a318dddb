// Package domain holds the typed identifiers shared by every bounded context.
//
// Identifiers are UUIDs wrapped in distinct named types so a ChainID can never
// be passed where an ActionID is expected. Parse functions are the only way
// external input becomes an identifier; they reject empty, malformed and nil
// UUIDs with a CodeInvalidInput domain error.
package domain

import (
	"github.com/google/uuid"

	dErrors "dealflow/pkg/domain-errors"
)

// maxIDLength bounds input before it reaches the UUID parser. The longest
// accepted form is the braced/urn representation.
const maxIDLength = 45

type (
	DealID   uuid.UUID
	EventID  uuid.UUID
	ChainID  uuid.UUID
	ActionID uuid.UUID
	UserID   uuid.UUID
	EntityID uuid.UUID
)

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

func ParseDealID(s string) (DealID, error) {
	u, err := parseUUID(s, "deal_id")
	return DealID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event_id")
	return EventID(u), err
}

func ParseChainID(s string) (ChainID, error) {
	u, err := parseUUID(s, "chain_id")
	return ChainID(u), err
}

func ParseActionID(s string) (ActionID, error) {
	u, err := parseUUID(s, "action_id")
	return ActionID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID(s, "entity_id")
	return EntityID(u), err
}

func NewDealID() DealID     { return DealID(uuid.New()) }
func NewEventID() EventID   { return EventID(uuid.New()) }
func NewChainID() ChainID   { return ChainID(uuid.New()) }
func NewActionID() ActionID { return ActionID(uuid.New()) }
func NewEntityID() EntityID { return EntityID(uuid.New()) }
func NewUserID() UserID     { return UserID(uuid.New()) }

func (id DealID) String() string   { return uuid.UUID(id).String() }
func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id ChainID) String() string  { return uuid.UUID(id).String() }
func (id ActionID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id EntityID) String() string { return uuid.UUID(id).String() }

func (id DealID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ChainID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps JSON payloads in canonical UUID form.

func (id DealID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ChainID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ActionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id EntityID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DealID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ChainID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ActionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntityID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
