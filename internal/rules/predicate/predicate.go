// Package predicate evaluates rule conditions against a typed view of an
// event payload.
//
// Conditions form a closed set (Eq, In, Gte). The unexported marker method
// keeps other packages from adding kinds, and Holds switches over every kind,
// so a new kind is a compile-time change here rather than a silent no-op at
// runtime.
package predicate

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a typed scalar.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
}

func String(s string) Value  { return Value{kind: KindString, s: s} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Null() Value            { return Value{} }

func (v Value) Kind() Kind { return v.kind }

// AsNumber returns the numeric value and whether v is a number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string value and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBool returns the boolean value and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Equal compares kind and value. A string "1" never equals the number 1.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindNumber:
		return fmt.Sprintf("%g", v.n)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return "null"
	}
}

// FromAny converts a decoded JSON scalar (or Go numeric) into a Value.
// Composite values (maps, slices) are not addressable and report false.
func FromAny(raw any) (Value, bool) {
	switch x := raw.(type) {
	case nil:
		return Null(), true
	case string:
		return String(x), true
	case bool:
		return Bool(x), true
	case float64:
		return Number(x), true
	case float32:
		return Number(float64(x)), true
	case int:
		return Number(float64(x)), true
	case int8:
		return Number(float64(x)), true
	case int16:
		return Number(float64(x)), true
	case int32:
		return Number(float64(x)), true
	case int64:
		return Number(float64(x)), true
	case uint:
		return Number(float64(x)), true
	case uint8:
		return Number(float64(x)), true
	case uint16:
		return Number(float64(x)), true
	case uint32:
		return Number(float64(x)), true
	case uint64:
		return Number(float64(x)), true
	case interface{ Float64() (float64, error) }:
		// json.Number
		f, err := x.Float64()
		if err != nil {
			return Value{}, false
		}
		return Number(f), true
	default:
		return Value{}, false
	}
}

// Context is the typed key/value view a condition is evaluated against.
type Context map[string]Value

// FromPayload builds a Context from an untyped payload. Nested objects and
// arrays are dropped.
func FromPayload(payload map[string]any) Context {
	ctx := make(Context, len(payload))
	for k, raw := range payload {
		if v, ok := FromAny(raw); ok {
			ctx[k] = v
		}
	}
	return ctx
}

// Condition is one predicate over a single context field.
type Condition interface {
	FieldName() string
	fmt.Stringer
	sealed()
}

// Eq holds when the field is present and equal in kind and value.
type Eq struct {
	Field string
	Value Value
}

// In holds when the field is present and equal to one of Values.
type In struct {
	Field  string
	Values []Value
}

// Gte holds when the field is present, numeric and at least Min.
type Gte struct {
	Field string
	Min   float64
}

func (Eq) sealed()  {}
func (In) sealed()  {}
func (Gte) sealed() {}

func (c Eq) FieldName() string  { return c.Field }
func (c In) FieldName() string  { return c.Field }
func (c Gte) FieldName() string { return c.Field }

func (c Eq) String() string { return fmt.Sprintf("%s == %s", c.Field, c.Value) }

func (c In) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = v.String()
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s in [%s]", c.Field, strings.Join(parts, ", "))
}

func (c Gte) String() string { return fmt.Sprintf("%s >= %g", c.Field, c.Min) }

// Holds evaluates cond against ctx. A missing field fails every kind.
func Holds(cond Condition, ctx Context) bool {
	v, present := ctx[cond.FieldName()]
	if !present {
		return false
	}
	switch c := cond.(type) {
	case Eq:
		return v.Equal(c.Value)
	case In:
		for _, member := range c.Values {
			if v.Equal(member) {
				return true
			}
		}
		return false
	case Gte:
		n, ok := v.AsNumber()
		return ok && n >= c.Min
	default:
		panic(fmt.Sprintf("predicate: unhandled condition %T", cond))
	}
}

// All reports whether every condition holds. An empty list holds.
func All(conds []Condition, ctx Context) bool {
	for _, c := range conds {
		if !Holds(c, ctx) {
			return false
		}
	}
	return true
}

// Validate reports structural defects in a condition.
func Validate(cond Condition) error {
	if cond == nil {
		return fmt.Errorf("nil condition")
	}
	if strings.TrimSpace(cond.FieldName()) == "" {
		return fmt.Errorf("condition %s: empty field", cond)
	}
	if c, ok := cond.(In); ok && len(c.Values) == 0 {
		return fmt.Errorf("condition on %q: empty member set", c.Field)
	}
	return nil
}
