// Package approval assigns human-approval tiers to proposed actions.
//
// A Policy is an immutable, ranked rule list ending in a wildcard catch-all.
// AssignTier is pure and total: every action type and context yields exactly
// one tier.
package approval

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"dealflow/internal/models"
	"dealflow/internal/rules/predicate"
)

// Wildcard matches every action type.
const Wildcard models.ActionType = "*"

// ScopeType says who a policy applies to.
type ScopeType string

const (
	ScopeDefault ScopeType = "default"
	ScopeRole    ScopeType = "role"
	ScopeUser    ScopeType = "user"
	ScopeDeal    ScopeType = "deal"
)

// Scope binds a policy to a deal, user or role. ID is empty for ScopeDefault.
type Scope struct {
	Type ScopeType `json:"scope_type" yaml:"scope_type"`
	ID   string    `json:"scope_id,omitempty" yaml:"scope_id,omitempty"`
}

func (s Scope) validate() error {
	switch s.Type {
	case ScopeDefault:
		if s.ID != "" {
			return errors.New("default scope takes no id")
		}
	case ScopeRole, ScopeUser, ScopeDeal:
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%s scope requires an id", s.Type)
		}
	default:
		return fmt.Errorf("unknown scope type %q", s.Type)
	}
	return nil
}

// Rule maps an action type (or the wildcard) plus optional conditions to a
// tier. Lower Rank is consulted first.
type Rule struct {
	Rank        int
	ActionType  models.ActionType
	Conditions  []predicate.Condition
	Tier        models.Tier
	Description string
}

func (r Rule) matches(actionType models.ActionType) bool {
	return r.ActionType == Wildcard || r.ActionType == actionType
}

// Policy is an immutable, validated rule list.
type Policy struct {
	name        string
	description string
	scope       Scope
	rules       []Rule
}

// NewPolicy sorts rules by rank and validates them. The highest-ranked rule
// must be an unconditional wildcard.
func NewPolicy(name, description string, scope Scope, rules []Rule) (*Policy, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("policy name is required")
	}
	if err := scope.validate(); err != nil {
		return nil, fmt.Errorf("policy %q: %w", name, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("policy %q: no rules", name)
	}

	sorted := make([]Rule, len(rules))
	for i, r := range rules {
		r.Conditions = slices.Clone(r.Conditions)
		sorted[i] = r
	}
	slices.SortStableFunc(sorted, func(a, b Rule) int { return cmp.Compare(a.Rank, b.Rank) })

	seen := make(map[int]struct{}, len(sorted))
	for _, r := range sorted {
		if _, dup := seen[r.Rank]; dup {
			return nil, fmt.Errorf("policy %q: duplicate rank %d", name, r.Rank)
		}
		seen[r.Rank] = struct{}{}
		if !r.Tier.IsValid() {
			return nil, fmt.Errorf("policy %q: rule rank %d: invalid tier %d", name, r.Rank, r.Tier)
		}
		if r.ActionType != Wildcard && !r.ActionType.IsValid() {
			return nil, fmt.Errorf("policy %q: rule rank %d: unknown action type %q", name, r.Rank, r.ActionType)
		}
		for _, c := range r.Conditions {
			if err := predicate.Validate(c); err != nil {
				return nil, fmt.Errorf("policy %q: rule rank %d: %w", name, r.Rank, err)
			}
		}
	}

	last := sorted[len(sorted)-1]
	if last.ActionType != Wildcard || len(last.Conditions) > 0 {
		return nil, fmt.Errorf("policy %q: last rule must be an unconditional wildcard catch-all", name)
	}

	return &Policy{name: name, description: description, scope: scope, rules: sorted}, nil
}

// MustPolicy is NewPolicy for policies defined in code.
func MustPolicy(name, description string, scope Scope, rules []Rule) *Policy {
	p, err := NewPolicy(name, description, scope, rules)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Name() string        { return p.name }
func (p *Policy) Description() string { return p.description }
func (p *Policy) Scope() Scope        { return p.scope }

// Rules returns a copy of the rules in rank order.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		r.Conditions = slices.Clone(r.Conditions)
		out[i] = r
	}
	return out
}

// CatchAllTier is the tier of the trailing wildcard rule.
func (p *Policy) CatchAllTier() models.Tier {
	return p.rules[len(p.rules)-1].Tier
}

// AssignTier returns the tier of the first rule, by rank, whose action type
// matches and whose conditions all hold against ctx.
func AssignTier(actionType models.ActionType, ctx predicate.Context, policy *Policy) models.Tier {
	tier, _ := Explain(actionType, ctx, policy)
	return tier
}

// Explain is AssignTier that also returns the winning rule.
func Explain(actionType models.ActionType, ctx predicate.Context, policy *Policy) (models.Tier, Rule) {
	for _, r := range policy.rules {
		if !r.matches(actionType) {
			continue
		}
		if !predicate.All(r.Conditions, ctx) {
			continue
		}
		return r.Tier, r
	}
	// NewPolicy guarantees the last rule matches everything.
	last := policy.rules[len(policy.rules)-1]
	return last.Tier, last
}
