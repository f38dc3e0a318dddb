package handler

import (
	"dealflow/internal/models"
	"dealflow/internal/orchestrator"
)

// EmitResponse is returned by POST /deals/{dealID}/events. Diagnostics lists
// the stages that failed after the event was accepted.
type EmitResponse struct {
	Event       models.Event            `json:"event"`
	Chain       *models.ActionChain     `json:"chain,omitempty"`
	Actions     []models.ProposedAction `json:"actions"`
	Degraded    bool                    `json:"degraded"`
	Diagnostics []string                `json:"diagnostics,omitempty"`
}

func FromResult(r *orchestrator.Result) EmitResponse {
	resp := EmitResponse{
		Event:    r.Event,
		Chain:    r.Chain,
		Actions:  r.Actions,
		Degraded: r.Degraded(),
	}
	if resp.Actions == nil {
		resp.Actions = []models.ProposedAction{}
	}
	for _, d := range r.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, string(d.Stage))
	}
	return resp
}

type EventListResponse struct {
	Events []models.Event `json:"events"`
	Count  int            `json:"count"`
}

type ActivityResponse struct {
	Entries []models.ActivityEntry `json:"entries"`
}
