// Package value defines the runtime value vocabulary shared by the
// evaluator, field generator, instance generator, and dataset driver.
//
// The DSL has no user-defined types beyond its primitives, so values are
// represented as `any` holding one of: int64, float64, string, bool,
// nil, Range, Record, or []any (a generated collection / projected list).
package value

import (
	"fmt"
	"reflect"
)

// Record is one generated instance: field name to value.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Range is an unresolved [Min, Max] bound. §4.H: "yields an object
// {min,max} (not yet a number); a random value is drawn only when
// embedded in a superposition or used as dynamic cardinality."
type Range struct {
	Min, Max float64
	IsInt    bool
}

func (r Range) String() string {
	if r.IsInt {
		return fmt.Sprintf("%d..%d", int64(r.Min), int64(r.Max))
	}
	return fmt.Sprintf("%g..%g", r.Min, r.Max)
}

// Duration is a first-class value produced by the days/weeks/months/
// years builtins, honoring §9's "durations are first-class values"
// note. Unit is one of "days", "weeks", "months", "years".
type Duration struct {
	Count int
	Unit  string
}

// IsNull reports whether v is the DSL null value.
func IsNull(v any) bool {
	return v == nil
}

// AsFloat converts a numeric value to float64. ok is false for non-numeric v.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// AsString converts a value to its string form if it is a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Truthy follows the DSL's boolean coercion: nil and false are falsy,
// zero numeric values and empty strings/collections are falsy, everything
// else is truthy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case Record:
		return true
	default:
		return true
	}
}

// Equal implements the DSL's `==` semantics: numeric values compare by
// value across int64/float64, everything else compares structurally.
func Equal(a, b any) bool {
	af, aok := AsFloat(a)
	bf, bok := AsFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && sameKind(a, b)
}

func sameKind(a, b any) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	case nil:
		return b == nil
	default:
		return reflect.TypeOf(a) == reflect.TypeOf(b)
	}
}
