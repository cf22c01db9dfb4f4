package tui

import (
	"strconv"
	"strings"
)

// ParseQuery splits an input line into free query text and a raw filter
// map for the normalizer. Recognized prefixes:
//
//	patient:"Juan Pérez"   equality on patient_name
//	date:2025-07-01        equality on date
//	date:2025-07-01..2025-07-31   date_range
//	age:30  age:>=18  age:<65      equality or bounded age
//	source:abc123          equality on source_id
//
// Anything else stays part of the query text. Filter values the engine
// cannot coerce are dropped there, not here.
func ParseQuery(line string) (string, map[string]any) {
	var words []string
	raw := map[string]any{}
	for _, tok := range splitQuoted(line) {
		key, val, ok := strings.Cut(tok, ":")
		if !ok || val == "" {
			words = append(words, tok)
			continue
		}
		switch key {
		case "patient":
			raw["patient_name"] = val
		case "date":
			if from, to, ok := strings.Cut(val, ".."); ok {
				raw["date_range"] = []any{from, to}
			} else {
				raw["date"] = val
			}
		case "age":
			if cond, ok := parseAge(val); ok {
				raw["age"] = cond
			}
		case "source":
			raw["source_id"] = val
		default:
			words = append(words, tok)
		}
	}
	if len(raw) == 0 {
		raw = nil
	}
	return strings.Join(words, " "), raw
}

func parseAge(val string) (any, bool) {
	op := "eq"
	switch {
	case strings.HasPrefix(val, ">="):
		op, val = "gte", val[2:]
	case strings.HasPrefix(val, "<="):
		op, val = "lte", val[2:]
	case strings.HasPrefix(val, "!="):
		op, val = "ne", val[2:]
	case strings.HasPrefix(val, ">"):
		op, val = "gt", val[1:]
	case strings.HasPrefix(val, "<"):
		op, val = "lt", val[1:]
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return nil, false
	}
	if op == "eq" {
		return n, true
	}
	return map[string]any{op: n}, true
}

// splitQuoted splits on spaces but keeps double-quoted runs together,
// including the key prefix of key:"quoted value" tokens.
func splitQuoted(line string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
