package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about records, not validation failures:
// - ErrNotFound: event, chain, action or entity does not exist in store
// - ErrConflict: record with the same identity already exists
// - ErrInvalidState: record in wrong state for requested operation
// - ErrLockHeld: a per-deal lock is held by another emitter
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrLockHeld     = errors.New("lock held")
	ErrUnavailable  = errors.New("unavailable")
)
