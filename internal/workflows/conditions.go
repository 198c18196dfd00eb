package workflows

import (
	"strconv"
	"strings"
)

// EvaluateConditions reports whether every condition holds against the call's
// attribute map. A workflow with no conditions always fires.
func EvaluateConditions(conds []Condition, attrs map[string]string) bool {
	for _, c := range conds {
		if !evaluate(c, attrs) {
			return false
		}
	}
	return true
}

func evaluate(c Condition, attrs map[string]string) bool {
	got, present := attrs[c.Field]

	switch c.Operator {
	case OpExists:
		return present && got != ""
	case OpNotExists:
		return !present || got == ""
	}

	// Remaining operators compare against a value; a missing field never
	// matches except through not_equals/not_contains.
	switch c.Operator {
	case OpEquals:
		return present && got == c.Value
	case OpNotEquals:
		return !present || got != c.Value
	case OpContains:
		return present && strings.Contains(strings.ToLower(got), strings.ToLower(c.Value))
	case OpNotContains:
		return !present || !strings.Contains(strings.ToLower(got), strings.ToLower(c.Value))
	case OpGreaterThan:
		a, b, ok := numericPair(got, c.Value)
		return present && ok && a > b
	case OpLessThan:
		a, b, ok := numericPair(got, c.Value)
		return present && ok && a < b
	}
	return false
}

func numericPair(got, want string) (float64, float64, bool) {
	a, err1 := strconv.ParseFloat(strings.TrimSpace(got), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(want), 64)
	return a, b, err1 == nil && err2 == nil
}
