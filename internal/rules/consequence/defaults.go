package consequence

import "dealflow/internal/models"

// DefaultCatalogVersion identifies the built-in catalog.
const DefaultCatalogVersion = "2024-builtin-1"

// DefaultCatalog returns the built-in catalog. Each call builds a fresh value.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultCatalogVersion, []Entry{
		{
			Rank:    10,
			Trigger: models.EventDDFindingConfirmed,
			Consequences: []Consequence{
				{Type: models.ActionDocumentModification, Target: "document", Action: "Update relevant document sections based on DD finding", Priority: PriorityHigh},
				{Type: models.ActionDisclosureScheduleUpdate, Target: "disclosure_schedule", Action: "Add or update disclosure schedule entry for confirmed finding", Priority: PriorityHigh},
				{Type: models.ActionNotification, Target: "deal_team", Action: "Notify deal team of confirmed DD finding", Priority: PriorityImmediate},
				{Type: models.ActionClientCommunication, Target: "client", Action: "Draft client communication regarding DD finding impact", Priority: PriorityHigh},
			},
		},
		{
			Rank:    20,
			Trigger: models.EventDocumentMarkupReceived,
			Consequences: []Consequence{
				{Type: models.ActionAnalysis, Target: "document", Action: "Analyze markup changes and identify key modifications", Priority: PriorityImmediate},
				{Type: models.ActionNegotiationUpdate, Target: "negotiation", Action: "Update negotiation positions based on markup", Priority: PriorityHigh},
				{Type: models.ActionChecklistStatusUpdate, Target: "checklist_item", Action: "Update checklist item status based on markup receipt", Priority: PriorityNormal},
				{Type: models.ActionChecklistBallWithUpdate, Target: "checklist_item", Action: "Update ball-with assignment after markup received", Priority: PriorityNormal},
			},
		},
		{
			Rank:    30,
			Trigger: models.EventEmailPositionExtracted,
			Consequences: []Consequence{
				{Type: models.ActionNegotiationUpdate, Target: "negotiation", Action: "Update negotiation tracker with extracted position", Priority: PriorityHigh},
				{Type: models.ActionAgentEvaluation, Target: "agent", Action: "Evaluate strategic implications of extracted position", Priority: PriorityNormal},
			},
		},
		{
			Rank:    40,
			Trigger: models.EventChecklistItemOverdue,
			Consequences: []Consequence{
				{Type: models.ActionNotification, Target: "deal_team", Action: "Send overdue notification to responsible party", Priority: PriorityImmediate},
				{Type: models.ActionCriticalPathUpdate, Target: "deal", Action: "Recalculate critical path considering overdue item", Priority: PriorityHigh},
			},
		},
		{
			Rank:    50,
			Trigger: models.EventDealParametersUpdated,
			Consequences: []Consequence{
				{Type: models.ActionChecklistRegeneration, Target: "checklist", Action: "Regenerate checklist items based on updated parameters", Priority: PriorityHigh},
				{Type: models.ActionDocumentReview, Target: "document", Action: "Flag documents that may need revision based on parameter changes", Priority: PriorityNormal},
			},
		},
		{
			Rank:    60,
			Trigger: models.EventClosingConditionSatisfied,
			Consequences: []Consequence{
				{Type: models.ActionClosingChecklistUpdate, Target: "closing_checklist", Action: "Mark closing condition as satisfied in closing checklist", Priority: PriorityImmediate},
				{Type: models.ActionClosingReadinessCheck, Target: "deal", Action: "Evaluate overall closing readiness after condition satisfied", Priority: PriorityHigh},
			},
		},
	})
}
