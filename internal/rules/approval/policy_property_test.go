package approval

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"dealflow/internal/models"
	"dealflow/internal/rules/predicate"
)

func actionTypeGen() gopter.Gen {
	all := models.AllActionTypes()
	values := make([]any, 0, len(all)+1)
	for _, t := range all {
		values = append(values, t)
	}
	values = append(values, models.ActionType("not_in_catalog"))
	return gen.OneConstOf(values...)
}

// TestAssignTierIsTotalAndDeterministic checks that every action type and
// payload shape resolves to exactly one valid tier, the same one every time.
func TestAssignTierIsTotalAndDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	policy := DefaultPartnerPolicy()

	properties.Property("tier is valid and stable", prop.ForAll(
		func(actionType models.ActionType, financial, strategic bool, severity string, amount float64) bool {
			ctx := predicate.Context{
				"financial_impact": predicate.Bool(financial),
				"strategic":        predicate.Bool(strategic),
				"severity":         predicate.String(severity),
				"amount":           predicate.Number(amount),
			}
			first := AssignTier(actionType, ctx, policy)
			second := AssignTier(actionType, ctx, policy)
			return first.IsValid() && first == second
		},
		actionTypeGen(),
		gen.Bool(),
		gen.Bool(),
		gen.AlphaString(),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("unknown action types get the catch-all tier", prop.ForAll(
		func(name string) bool {
			t := models.ActionType("x_" + name)
			return AssignTier(t, nil, policy) == policy.CatchAllTier()
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
