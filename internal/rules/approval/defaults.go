package approval

import (
	"dealflow/internal/models"
	"dealflow/internal/rules/predicate"
)

// DefaultPartnerPolicy builds the standard M&A approval tiers. Every call
// returns a new value; there is no shared default instance.
func DefaultPartnerPolicy() *Policy {
	financial := []predicate.Condition{predicate.Eq{Field: "financial_impact", Value: predicate.Bool(true)}}
	strategic := []predicate.Condition{predicate.Eq{Field: "strategic", Value: predicate.Bool(true)}}

	rules := []Rule{
		// Tier 1: auto-execute.
		{Rank: 10, ActionType: models.ActionNotification, Tier: models.Tier1, Description: "Notifications auto-send"},
		{Rank: 20, ActionType: models.ActionStatusUpdate, Tier: models.Tier1, Description: "Status updates auto-apply"},
		{Rank: 30, ActionType: models.ActionChecklistStatusUpdate, Tier: models.Tier1, Description: "Checklist status changes auto-apply"},
		{Rank: 40, ActionType: models.ActionChecklistBallWithUpdate, Tier: models.Tier1, Description: "Ball-with assignments auto-update"},
		{Rank: 50, ActionType: models.ActionTimelineUpdate, Tier: models.Tier1, Description: "Timeline updates auto-apply"},
		{Rank: 60, ActionType: models.ActionCriticalPathUpdate, Tier: models.Tier1, Description: "Critical path recalculations auto-run"},
		{Rank: 70, ActionType: models.ActionClosingChecklistUpdate, Tier: models.Tier1, Description: "Closing checklist updates auto-apply"},
		{Rank: 80, ActionType: models.ActionAnalysis, Tier: models.Tier1, Description: "Analysis tasks auto-execute"},
		{Rank: 90, ActionType: models.ActionAgentEvaluation, Tier: models.Tier1, Description: "Agent evaluations auto-run"},

		// Tier 3: partner review for financial or client-facing work.
		{Rank: 100, ActionType: models.ActionDocumentEdit, Conditions: financial, Tier: models.Tier3, Description: "Financial document edits require partner review"},
		{Rank: 110, ActionType: models.ActionDocumentModification, Conditions: financial, Tier: models.Tier3, Description: "Financial document modifications require partner review"},
		{Rank: 120, ActionType: models.ActionClientCommunication, Tier: models.Tier3, Description: "Client communications require partner review"},
		{Rank: 130, ActionType: models.ActionClientCommunicationDraft, Tier: models.Tier3, Description: "Client communication drafts require partner review"},
		{Rank: 140, ActionType: models.ActionClientActionItemCreate, Tier: models.Tier3, Description: "Client action items require partner review"},
		{Rank: 150, ActionType: models.ActionNegotiationUpdate, Conditions: strategic, Tier: models.Tier3, Description: "Strategic negotiation updates require partner review"},

		// Tier 2: one-tap approval.
		{Rank: 200, ActionType: models.ActionDocumentEdit, Tier: models.Tier2, Description: "Document edits need approval"},
		{Rank: 210, ActionType: models.ActionDocumentGenerate, Tier: models.Tier2, Description: "Document generation needs approval"},
		{Rank: 220, ActionType: models.ActionDocumentModification, Tier: models.Tier2, Description: "Document modifications need approval"},
		{Rank: 230, ActionType: models.ActionDocumentReview, Tier: models.Tier2, Description: "Document reviews need approval"},
		{Rank: 240, ActionType: models.ActionChecklistRegeneration, Tier: models.Tier2, Description: "Checklist regeneration needs approval"},
		{Rank: 250, ActionType: models.ActionChecklistAddItem, Tier: models.Tier2, Description: "Adding checklist items needs approval"},
		{Rank: 260, ActionType: models.ActionDisclosureScheduleEntry, Tier: models.Tier2, Description: "Disclosure entries need approval"},
		{Rank: 270, ActionType: models.ActionDisclosureScheduleUpdate, Tier: models.Tier2, Description: "Disclosure updates need approval"},
		{Rank: 280, ActionType: models.ActionDisclosureScheduleRemove, Tier: models.Tier2, Description: "Disclosure removals need approval"},
		{Rank: 290, ActionType: models.ActionEmailDraft, Tier: models.Tier2, Description: "Email drafts need approval"},
		{Rank: 300, ActionType: models.ActionEmailSend, Tier: models.Tier2, Description: "Email sends need approval"},
		{Rank: 310, ActionType: models.ActionDDFindingCreate, Tier: models.Tier2, Description: "DD findings need approval"},
		{Rank: 320, ActionType: models.ActionDDRequestCreate, Tier: models.Tier2, Description: "DD requests need approval"},
		{Rank: 330, ActionType: models.ActionNegotiationUpdate, Tier: models.Tier2, Description: "Negotiation updates need approval"},
		{Rank: 340, ActionType: models.ActionNegotiationPositionUpdate, Tier: models.Tier2, Description: "Position updates need approval"},
		{Rank: 350, ActionType: models.ActionThirdPartyCommunication, Tier: models.Tier2, Description: "Third party comms need approval"},
		{Rank: 360, ActionType: models.ActionClosingReadinessCheck, Tier: models.Tier2, Description: "Closing readiness checks need approval"},
		{Rank: 370, ActionType: models.ActionAgentActivation, Tier: models.Tier2, Description: "Agent activations need approval"},

		{Rank: 1000, ActionType: Wildcard, Tier: models.Tier2, Description: "Default: one-tap approval"},
	}

	return MustPolicy("Default Partner Policy", "Standard approval tiers for M&A deal operations",
		Scope{Type: ScopeDefault}, rules)
}
