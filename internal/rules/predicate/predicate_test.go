package predicate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPayload(t *testing.T) {
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"financial_impact": true,
		"severity": "high",
		"days_overdue": 4,
		"note": null,
		"nested": {"a": 1},
		"list": [1, 2]
	}`), &payload))

	ctx := FromPayload(payload)

	assert.Equal(t, Bool(true), ctx["financial_impact"])
	assert.Equal(t, String("high"), ctx["severity"])
	assert.Equal(t, Number(4), ctx["days_overdue"])
	assert.Equal(t, KindNull, ctx["note"].Kind())
	assert.NotContains(t, ctx, "nested")
	assert.NotContains(t, ctx, "list")
}

func TestFromAnyNumericKinds(t *testing.T) {
	for _, raw := range []any{
		int(7), int8(7), int16(7), int32(7), int64(7),
		uint(7), uint8(7), uint16(7), uint32(7), uint64(7),
		float32(7), float64(7), json.Number("7"),
	} {
		v, ok := FromAny(raw)
		require.True(t, ok, "%T", raw)
		assert.Equal(t, Number(7), v, "%T", raw)
	}

	_, ok := FromAny([]int{1})
	assert.False(t, ok)
}

func TestHolds(t *testing.T) {
	ctx := Context{
		"financial_impact": Bool(true),
		"severity":         String("high"),
		"days_overdue":     Number(4),
		"amount":           String("1000"),
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq bool match", Eq{Field: "financial_impact", Value: Bool(true)}, true},
		{"eq bool mismatch", Eq{Field: "financial_impact", Value: Bool(false)}, false},
		{"eq kind mismatch", Eq{Field: "days_overdue", Value: String("4")}, false},
		{"eq missing field", Eq{Field: "strategic", Value: Bool(true)}, false},
		{"in member", In{Field: "severity", Values: []Value{String("high"), String("critical")}}, true},
		{"in non-member", In{Field: "severity", Values: []Value{String("low")}}, false},
		{"in missing field", In{Field: "priority", Values: []Value{String("high")}}, false},
		{"gte above", Gte{Field: "days_overdue", Min: 3}, true},
		{"gte equal", Gte{Field: "days_overdue", Min: 4}, true},
		{"gte below", Gte{Field: "days_overdue", Min: 5}, false},
		{"gte non-numeric", Gte{Field: "amount", Min: 1}, false},
		{"gte missing field", Gte{Field: "missing", Min: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Holds(tt.cond, ctx))
		})
	}
}

func TestAll(t *testing.T) {
	ctx := Context{"strategic": Bool(true), "round": Number(2)}

	assert.True(t, All(nil, ctx), "empty condition list holds")
	assert.True(t, All([]Condition{
		Eq{Field: "strategic", Value: Bool(true)},
		Gte{Field: "round", Min: 2},
	}, ctx))
	assert.False(t, All([]Condition{
		Eq{Field: "strategic", Value: Bool(true)},
		Gte{Field: "round", Min: 3},
	}, ctx))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Eq{Field: "x", Value: Bool(true)}))
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(Gte{Field: "  ", Min: 1}))
	assert.Error(t, Validate(In{Field: "x"}))
}

func TestConditionString(t *testing.T) {
	assert.Equal(t, `severity in ["critical", "high"]`,
		In{Field: "severity", Values: []Value{String("high"), String("critical")}}.String())
	assert.Equal(t, "days_overdue >= 3", Gte{Field: "days_overdue", Min: 3}.String())
}
