// Package constitution checks proposed work against a deal's partner
// constitution: hard constraints a supervising partner has set for the deal.
package constitution

import (
	"fmt"
	"slices"
	"strings"

	"dealflow/internal/models"
)

// Consequence is what a violated constraint demands.
type Consequence string

const (
	BlockAndEscalate Consequence = "block_and_escalate"
	Escalate         Consequence = "escalate"
	Flag             Consequence = "flag"
)

// Escalates reports whether the consequence forces partner review.
func (c Consequence) Escalates() bool {
	return c == BlockAndEscalate || c == Escalate
}

// Category groups constraints by the kind of work they police.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryFinancial     Category = "financial"
	CategoryNegotiation   Category = "negotiation"
	CategoryDrafting      Category = "drafting"
	CategoryProcess       Category = "process"
)

// HardConstraint is one non-negotiable rule. Rule is free text whose keywords
// refine some categories.
type HardConstraint struct {
	ID          string      `json:"id" yaml:"id"`
	Category    Category    `json:"category" yaml:"category"`
	Description string      `json:"description" yaml:"description"`
	Rule        string      `json:"rule" yaml:"rule"`
	Consequence Consequence `json:"consequence" yaml:"consequence"`
}

// Preference is a soft default the partner wants honored unless overridden.
type Preference struct {
	ID                string `json:"id" yaml:"id"`
	Category          string `json:"category" yaml:"category"`
	Description       string `json:"description" yaml:"description"`
	DefaultBehavior   string `json:"default_behavior" yaml:"default_behavior"`
	OverrideCondition string `json:"override_condition" yaml:"override_condition"`
}

// Constitution is the per-deal governance document.
type Constitution struct {
	HardConstraints []HardConstraint `json:"hard_constraints" yaml:"hard_constraints"`
	Preferences     []Preference     `json:"preferences,omitempty" yaml:"preferences,omitempty"`
}

// Validate rejects constraints the checker cannot interpret.
func (c *Constitution) Validate() error {
	for i, hc := range c.HardConstraints {
		if strings.TrimSpace(hc.ID) == "" {
			return fmt.Errorf("hard constraint %d: id is required", i)
		}
		switch hc.Consequence {
		case BlockAndEscalate, Escalate, Flag:
		default:
			return fmt.Errorf("hard constraint %s: unknown consequence %q", hc.ID, hc.Consequence)
		}
	}
	return nil
}

// Violation names the breached constraint and the action types it covers.
type Violation struct {
	Constraint HardConstraint
	Affected   []models.ActionType
}

// Covers reports whether t is one of the affected action types.
func (v *Violation) Covers(t models.ActionType) bool {
	return slices.Contains(v.Affected, t)
}

// SummaryPrefix is prepended to the chain summary of a violating chain.
func (v *Violation) SummaryPrefix() string {
	return "[CONSTITUTIONAL VIOLATION] " + v.Constraint.Description + " — "
}

var categoryActions = map[Category][]models.ActionType{
	CategoryCommunication: {models.ActionClientCommunication, models.ActionNotification},
	CategoryFinancial:     {models.ActionDocumentModification, models.ActionNegotiationUpdate},
	CategoryNegotiation:   {models.ActionNegotiationUpdate, models.ActionDocumentModification},
	CategoryDrafting:      {models.ActionDocumentModification},
}

// Check returns the first escalating constraint breached by actionTypes, or
// nil. Flag-only constraints never escalate.
func Check(c *Constitution, actionTypes []models.ActionType) *Violation {
	if c == nil {
		return nil
	}
	for _, hc := range c.HardConstraints {
		if !hc.Consequence.Escalates() {
			continue
		}
		if affected := affectedBy(hc, actionTypes); len(affected) > 0 {
			return &Violation{Constraint: hc, Affected: affected}
		}
	}
	return nil
}

func affectedBy(hc HardConstraint, actionTypes []models.ActionType) []models.ActionType {
	rule := strings.ToLower(hc.Rule)
	switch hc.Category {
	case CategoryCommunication:
		if !strings.Contains(rule, "client") {
			return nil
		}
	case CategoryFinancial:
		if !strings.Contains(rule, "financial") {
			return nil
		}
	case CategoryNegotiation, CategoryDrafting:
	case CategoryProcess:
		if !strings.Contains(rule, "tier3") {
			return nil
		}
		return slices.Clone(actionTypes)
	default:
		return nil
	}

	var out []models.ActionType
	for _, t := range actionTypes {
		if slices.Contains(categoryActions[hc.Category], t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
