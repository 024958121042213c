package rules

// fallbackReasoning is carried into the trace when no branch matched.
const fallbackReasoning = "fallback: no branch matched"

// EvaluateTree walks branches in declaration order and returns the
// output of the first branch whose condition holds, with its reasoning
// verbatim. Remaining branches are never evaluated; authors order
// branches most-specific first. When nothing matches, the mandatory
// fallback output is returned.
func EvaluateTree(rule *Rule, input map[string]any) (Output, string) {
	for _, branch := range rule.Branches {
		if CheckCondition(branch.Condition, input) {
			return branch.Output, branch.Reasoning
		}
	}
	return *rule.Fallback, fallbackReasoning
}
