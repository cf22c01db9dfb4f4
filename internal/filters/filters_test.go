package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNilAndEmpty(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize(map[string]any{}))
	assert.Nil(t, Normalize(map[string]any{
		"patient_name": nil,
		"date":         "   ",
		"age":          map[string]any{},
	}))
}

func TestNormalizeScalarsBecomeEquality(t *testing.T) {
	pred := Normalize(map[string]any{
		"patient_name": "Juan Pérez",
		"age":          30,
	})
	require.NotNil(t, pred)
	assert.Equal(t, Condition{OpEq: "Juan Pérez"}, pred["patient_name"])
	assert.Equal(t, Condition{OpEq: 30}, pred["age"])
}

func TestNormalizeDateRange(t *testing.T) {
	pred := Normalize(map[string]any{
		"date_range": []any{"2025-07-01", "2025-07-31"},
	})
	require.NotNil(t, pred)
	assert.Equal(t, Condition{OpGte: "2025-07-01", OpLte: "2025-07-31"}, pred["date"])
	_, hasRaw := pred[DateRangeKey]
	assert.False(t, hasRaw, "raw date_range key must never appear in output")
}

func TestNormalizeDateRangeStringSlice(t *testing.T) {
	pred := Normalize(map[string]any{"date_range": []string{"2025-01-01", "2025-12-31"}})
	require.NotNil(t, pred)
	assert.Equal(t, Condition{OpGte: "2025-01-01", OpLte: "2025-12-31"}, pred["date"])
}

func TestNormalizeDateRangeWinsOverPlainDate(t *testing.T) {
	raw := map[string]any{
		"date":       "2025-07-15",
		"date_range": []any{"2025-07-01", "2025-07-31"},
	}
	want := Condition{OpGte: "2025-07-01", OpLte: "2025-07-31"}
	// repeat to rule out map iteration order deciding the winner
	for i := 0; i < 50; i++ {
		pred := Normalize(raw)
		require.NotNil(t, pred)
		assert.Equal(t, want, pred["date"])
	}
}

func TestNormalizeMixedFormDrop(t *testing.T) {
	pred := Normalize(map[string]any{
		"age":        30,
		"date_range": []any{"2025-07-01", "2025-07-31"},
		"bogus":      map[string]any{"$foo": 1},
	})
	require.NotNil(t, pred)
	assert.Equal(t, Predicate{
		"age":  Condition{OpEq: 30},
		"date": Condition{OpGte: "2025-07-01", OpLte: "2025-07-31"},
	}, pred)
}

func TestNormalizeMalformedNeverPanicsNeverIncluded(t *testing.T) {
	cases := map[string]any{
		"wrong op key":       map[string]any{"between": []int{1, 2}},
		"struct value":       struct{ X int }{1},
		"slice value":        []int{1, 2, 3},
		"bad date_range len": nil, // handled below
		"func value":         map[string]any{"eq": 1, "nope": 2},
	}
	for name, val := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, Normalize(map[string]any{"field": val}))
		})
	}
	// date_range with wrong arity is dropped, not an error
	assert.Nil(t, Normalize(map[string]any{"date_range": []any{"2025-07-01"}}))
	assert.Nil(t, Normalize(map[string]any{"date_range": "2025-07-01"}))
}

func TestNormalizeOperatorObjectPassesThrough(t *testing.T) {
	raw := map[string]any{
		"age":  map[string]any{"gte": 18, "lte": 65},
		"date": Condition{OpGte: "2025-07-01", OpLte: "2025-07-31"},
	}
	pred := Normalize(raw)
	require.NotNil(t, pred)
	assert.Equal(t, Condition{OpGte: 18, OpLte: 65}, pred["age"])
	assert.Equal(t, Condition{OpGte: "2025-07-01", OpLte: "2025-07-31"}, pred["date"])
}

// Normalizing an already-normalized predicate returns it unchanged.
func TestNormalizeIdempotent(t *testing.T) {
	first := Normalize(map[string]any{
		"patient_name": "Ana",
		"age":          map[string]any{"gte": 18},
		"date_range":   []any{"2025-07-01", "2025-07-31"},
	})
	require.NotNil(t, first)

	again := map[string]any{}
	for field, cond := range first {
		again[field] = cond
	}
	second := Normalize(again)
	assert.Equal(t, first, second)
}

func TestMatchesEquality(t *testing.T) {
	meta := map[string]any{"patient_name": "Ana", "age": 30, "chunk_idx": 0}
	assert.True(t, Matches(Predicate{"patient_name": {OpEq: "Ana"}}, meta))
	assert.False(t, Matches(Predicate{"patient_name": {OpEq: "Juan"}}, meta))
	assert.True(t, Matches(Predicate{"patient_name": {OpNe: "Juan"}}, meta))
	// numeric coercion: JSON decoding yields float64
	assert.True(t, Matches(Predicate{"age": {OpEq: float64(30)}}, meta))
	assert.True(t, Matches(Predicate{"age": {OpEq: 30}}, map[string]any{"age": float64(30)}))
}

func TestMatchesOrdering(t *testing.T) {
	meta := map[string]any{"age": 30, "date": "2025-07-15"}
	assert.True(t, Matches(Predicate{"age": {OpGte: 18, OpLte: 65}}, meta))
	assert.False(t, Matches(Predicate{"age": {OpGt: 30}}, meta))
	assert.True(t, Matches(Predicate{"date": {OpGte: "2025-07-01", OpLte: "2025-07-31"}}, meta))
	assert.False(t, Matches(Predicate{"date": {OpLt: "2025-07-15"}}, meta))
	// incomparable types never match
	assert.False(t, Matches(Predicate{"date": {OpGt: 5}}, meta))
}

func TestMatchesMembership(t *testing.T) {
	meta := map[string]any{"patient_name": "Ana"}
	assert.True(t, Matches(Predicate{"patient_name": {OpIn: []any{"Ana", "Juan"}}}, meta))
	assert.False(t, Matches(Predicate{"patient_name": {OpIn: []string{"Juan"}}}, meta))
	assert.True(t, Matches(Predicate{"patient_name": {OpNin: []string{"Juan"}}}, meta))
	// a non-list operand fails closed
	assert.False(t, Matches(Predicate{"patient_name": {OpIn: "Ana"}}, meta))
}

func TestMatchesContains(t *testing.T) {
	meta := map[string]any{"patient_name": "Juan Pérez", "tags": []any{"fiebre", "tos"}}
	assert.True(t, Matches(Predicate{"patient_name": {OpContains: "Pérez"}}, meta))
	assert.False(t, Matches(Predicate{"patient_name": {OpContains: "Ana"}}, meta))
	assert.True(t, Matches(Predicate{"tags": {OpContains: "tos"}}, meta))
	assert.False(t, Matches(Predicate{"tags": {OpContains: "gripe"}}, meta))
}

func TestMatchesMissingFieldFailsClosed(t *testing.T) {
	meta := map[string]any{"source_id": "s1"}
	assert.False(t, Matches(Predicate{"patient_name": {OpEq: "Ana"}}, meta))
	assert.False(t, Matches(Predicate{"patient_name": {OpNe: "Ana"}}, meta))
}

func TestMatchesNilPredicate(t *testing.T) {
	assert.True(t, Matches(nil, map[string]any{"anything": 1}))
}
