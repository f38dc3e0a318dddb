package orchestrator

import (
	"fmt"

	"dealflow/internal/models"
)

// Stage names a step of the emit pass.
type Stage string

const (
	StageReceived      Stage = "received"
	StageLocking       Stage = "locking"
	StageConstitution  Stage = "constitution"
	StageChainCreation Stage = "chain_creation"
	StageAutoExecution Stage = "auto_execution"
	StageChainApproval Stage = "chain_approval"
	StageProcessed     Stage = "processed"
)

// CriticalError is the only error Emit returns. It means the event was not
// accepted: the request was invalid or the event could not be persisted.
type CriticalError struct {
	Stage Stage
	Err   error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("emit failed at %s: %v", e.Stage, e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// Diagnostic is a secondary failure recorded after the event was accepted.
// It never aborts the pass.
type Diagnostic struct {
	Stage Stage
	Err   error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Stage, d.Err)
}

// Result is the outcome of one emit pass. Chain is nil when no consequence
// resolved or the chain could not be persisted.
type Result struct {
	Event       models.Event
	Chain       *models.ActionChain
	Actions     []models.ProposedAction
	Diagnostics []Diagnostic
}

// Degraded reports whether any secondary step failed.
func (r *Result) Degraded() bool {
	return len(r.Diagnostics) > 0
}

// EventDetail is an event with every chain it produced.
type EventDetail struct {
	Event  models.Event         `json:"event"`
	Chains []models.ChainDetail `json:"chains"`
}
