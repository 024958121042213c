package rules

import "testing"

func TestCheckConditionComparisons(t *testing.T) {
	input := map[string]any{
		"engagement_score": 75.0,
		"sector":           "government",
		"company": map[string]any{
			"age_years": 0.5,
		},
	}

	testCases := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"eq string match", &Condition{Field: "sector", Op: OpEq, Value: "government"}, true},
		{"eq string mismatch", &Condition{Field: "sector", Op: OpEq, Value: "retail"}, false},
		{"eq numeric coercion", &Condition{Field: "engagement_score", Op: OpEq, Value: "75"}, true},
		{"lt", &Condition{Field: "engagement_score", Op: OpLt, Value: 80.0}, true},
		{"gt", &Condition{Field: "engagement_score", Op: OpGt, Value: 80.0}, false},
		{"gte at boundary", &Condition{Field: "engagement_score", Op: OpGte, Value: 75.0}, true},
		{"lte at boundary", &Condition{Field: "engagement_score", Op: OpLte, Value: 75.0}, true},
		{"dotted field path", &Condition{Field: "company.age_years", Op: OpLt, Value: 1.0}, true},
		{"between inclusive lower", &Condition{Field: "engagement_score", Op: OpBetween, Value: []any{75.0, 100.0}}, true},
		{"between inclusive upper", &Condition{Field: "engagement_score", Op: OpBetween, Value: []any{0.0, 75.0}}, true},
		{"between outside", &Condition{Field: "engagement_score", Op: OpBetween, Value: []any{80.0, 90.0}}, false},
		{"in match", &Condition{Field: "sector", Op: OpIn, Value: []any{"government", "public"}}, true},
		{"in no match", &Condition{Field: "sector", Op: OpIn, Value: []any{"retail", "energy"}}, false},
		{"missing field is false", &Condition{Field: "absent", Op: OpEq, Value: "x"}, false},
		{"missing nested field is false", &Condition{Field: "company.revenue", Op: OpGt, Value: 0.0}, false},
		{"non-numeric ordering is false", &Condition{Field: "sector", Op: OpGt, Value: 5.0}, false},
		{"nil condition is false", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckCondition(tc.cond, input); got != tc.want {
				t.Errorf("CheckCondition() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckConditionCombinators(t *testing.T) {
	input := map[string]any{"a": 1.0, "b": 2.0}

	yes := &Condition{Field: "a", Op: OpEq, Value: 1.0}
	no := &Condition{Field: "b", Op: OpEq, Value: 99.0}

	testCases := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"and all true", &Condition{And: []*Condition{yes, yes}}, true},
		{"and one false", &Condition{And: []*Condition{yes, no}}, false},
		{"or one true", &Condition{Or: []*Condition{no, yes}}, true},
		{"or all false", &Condition{Or: []*Condition{no, no}}, false},
		{"nested and of or", &Condition{And: []*Condition{yes, {Or: []*Condition{no, yes}}}}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckCondition(tc.cond, input); got != tc.want {
				t.Errorf("CheckCondition() = %v, want %v", got, tc.want)
			}
		})
	}
}
