package rules

// AppliedRule records one override that fired during rule-list
// evaluation, in declaration order.
type AppliedRule struct {
	Name       string  `json:"name"`
	Adjustment float64 `json:"adjustment"`
	Severity   string  `json:"severity"`
	Reason     string  `json:"reason,omitempty"`
}

// EvaluateList checks every rule in the list - no short-circuit - and
// composes the adjustments of all matching rules into a running
// product. Cumulative composition is deliberate: independent signals
// ("government entity", "very new company") are meant to compound
// rather than mask each other. The applied slice follows declaration
// order so the explanation trace is stable regardless of evaluation
// internals.
func EvaluateList(rule *Rule, input map[string]any) (float64, []AppliedRule) {
	final := 1.0
	applied := make([]AppliedRule, 0, len(rule.Rules))

	for _, or := range rule.Rules {
		if !CheckCondition(or.Condition, input) {
			continue
		}
		final *= or.Adjustment
		applied = append(applied, AppliedRule{
			Name:       or.Name,
			Adjustment: or.Adjustment,
			Severity:   or.Severity,
			Reason:     or.Reason,
		})
	}

	return final, applied
}
