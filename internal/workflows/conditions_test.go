package workflows

import "testing"

func TestEvaluateConditions(t *testing.T) {
	attrs := map[string]string{
		"status":       "completed",
		"duration":     "120",
		"ended_reason": "customer-ended-call",
		"transcript":   "I would like to book a Demo next week",
	}

	cases := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"no conditions always fires", nil, true},
		{"equals", []Condition{{Field: "status", Operator: OpEquals, Value: "completed"}}, true},
		{"equals mismatch", []Condition{{Field: "status", Operator: OpEquals, Value: "failed"}}, false},
		{"not_equals", []Condition{{Field: "status", Operator: OpNotEquals, Value: "failed"}}, true},
		{"contains is case-insensitive", []Condition{{Field: "transcript", Operator: OpContains, Value: "demo"}}, true},
		{"not_contains", []Condition{{Field: "transcript", Operator: OpNotContains, Value: "refund"}}, true},
		{"greater_than numeric", []Condition{{Field: "duration", Operator: OpGreaterThan, Value: "60"}}, true},
		{"less_than numeric", []Condition{{Field: "duration", Operator: OpLessThan, Value: "60"}}, false},
		{"greater_than non-numeric never matches", []Condition{{Field: "status", Operator: OpGreaterThan, Value: "10"}}, false},
		{"exists", []Condition{{Field: "ended_reason", Operator: OpExists}}, true},
		{"not_exists on absent field", []Condition{{Field: "metadata.lead_id", Operator: OpNotExists}}, true},
		{"equals on absent field", []Condition{{Field: "missing", Operator: OpEquals, Value: "x"}}, false},
		{"not_equals on absent field", []Condition{{Field: "missing", Operator: OpNotEquals, Value: "x"}}, true},
		{
			"AND of all conditions",
			[]Condition{
				{Field: "status", Operator: OpEquals, Value: "completed"},
				{Field: "duration", Operator: OpGreaterThan, Value: "60"},
			},
			true,
		},
		{
			"one failing condition blocks the workflow",
			[]Condition{
				{Field: "status", Operator: OpEquals, Value: "completed"},
				{Field: "duration", Operator: OpLessThan, Value: "60"},
			},
			false,
		},
	}

	for _, tc := range cases {
		if got := EvaluateConditions(tc.conds, attrs); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
