// Package filters turns loosely-typed, caller-supplied filter maps into
// a strict predicate over fragment metadata, and evaluates predicates
// locally for stores without a native filter engine.
//
// Filter input typically comes from a UI form, so normalization never
// fails: fields that cannot be coerced are dropped and the query runs
// as a best-effort similarity search over whatever remains.
package filters

import (
	"reflect"
	"strings"
)

// Op is a comparison operator usable inside a Condition.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpNin      Op = "nin"
	OpContains Op = "contains"
)

// Condition maps operators to their comparison values. All entries must
// hold for the condition to match.
type Condition map[Op]any

// Predicate maps metadata field names to conditions, combined with
// implicit AND semantics.
type Predicate map[string]Condition

// DateRangeKey is the virtual filter key rewritten to a bounded
// condition on the "date" field.
const DateRangeKey = "date_range"

// Normalize coerces a raw filter map into a Predicate.
//
//   - nil, empty-map and blank-string values mean "no filter on this
//     field" and are skipped
//   - "date_range": [from, to] becomes date: {gte: from, lte: to},
//     taking precedence over any plain "date" filter in the same map
//   - scalars become {eq: value}
//   - maps whose keys are all allowed operators pass through unchanged
//   - anything else is dropped silently
//
// Returns nil when no field survives, which callers treat as an
// unfiltered similarity search.
func Normalize(raw map[string]any) Predicate {
	if len(raw) == 0 {
		return nil
	}
	pred := Predicate{}
	var dateRange Condition
	for key, val := range raw {
		if skippable(val) {
			continue
		}
		if key == DateRangeKey {
			if from, to, ok := asPair(val); ok {
				dateRange = Condition{OpGte: from, OpLte: to}
			}
			continue
		}
		if cond, ok := coerce(val); ok {
			pred[key] = cond
		}
	}
	// applied last so the outcome never depends on map iteration order
	if dateRange != nil {
		pred["date"] = dateRange
	}
	if len(pred) == 0 {
		return nil
	}
	return pred
}

func skippable(val any) bool {
	switch v := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	rv := reflect.ValueOf(val)
	return rv.Kind() == reflect.Map && rv.Len() == 0
}

func asPair(val any) (from, to any, ok bool) {
	rv := reflect.ValueOf(val)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Len() != 2 {
		return nil, nil, false
	}
	return rv.Index(0).Interface(), rv.Index(1).Interface(), true
}

func coerce(val any) (Condition, bool) {
	switch v := val.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Condition{OpEq: v}, true
	case Condition:
		return passthrough(v)
	case map[Op]any:
		return passthrough(v)
	case map[string]any:
		cond := make(Condition, len(v))
		for k, cv := range v {
			cond[Op(k)] = cv
		}
		return passthrough(cond)
	}
	return nil, false
}

func passthrough(cond Condition) (Condition, bool) {
	if len(cond) == 0 {
		return nil, false
	}
	for op := range cond {
		if !allowed(op) {
			return nil, false
		}
	}
	return cond, true
}

func allowed(op Op) bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpContains:
		return true
	}
	return false
}

// Matches reports whether metadata satisfies every condition of the
// predicate. A nil predicate matches everything; a condition on a field
// the metadata lacks matches nothing.
func Matches(pred Predicate, meta map[string]any) bool {
	for field, cond := range pred {
		have, ok := meta[field]
		if !ok {
			return false
		}
		for op, want := range cond {
			if !holds(op, have, want) {
				return false
			}
		}
	}
	return true
}

func holds(op Op, have, want any) bool {
	switch op {
	case OpEq:
		return equal(have, want)
	case OpNe:
		return !equal(have, want)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := compare(have, want)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		return member(have, want)
	case OpNin:
		return !member(have, want)
	case OpContains:
		return contains(have, want)
	}
	return false
}

// equal compares with numeric coercion so that a JSON-decoded float64
// matches a stored int.
func equal(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values: numerically when both are numbers,
// lexically when both are strings (which covers YYYY-MM-DD dates).
func compare(a, b any) (int, bool) {
	if fa, aok := asFloat(a); aok {
		fb, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// member reports whether have appears in the list want.
func member(have, want any) bool {
	rv := reflect.ValueOf(want)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equal(have, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// contains does substring matching on strings and membership when the
// stored value is a list.
func contains(have, want any) bool {
	if hs, ok := have.(string); ok {
		ws, ok := want.(string)
		return ok && strings.Contains(hs, ws)
	}
	rv := reflect.ValueOf(have)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if equal(rv.Index(i).Interface(), want) {
				return true
			}
		}
	}
	return false
}
