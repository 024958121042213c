package rules

import (
	"fmt"
	"strings"
)

// readableFactors maps technical factor names to the phrasing analysts
// see in explanation summaries. Unknown names fall back to a
// title-cased version of the identifier.
var readableFactors = map[string]string{
	"base_quality":            "Base company quality",
	"industry_multiplier":     "Industry multiplier",
	"uae_employees":           "UAE employee count",
	"hiring_signals_90d":      "Recent hiring activity",
	"funding_signals_90d":     "Recent funding activity",
	"news_signals_90d":        "Recent news mentions",
	"open_rate":               "Historical email open rate",
	"reply_rate":              "Historical email reply rate",
	"conversion_rate":         "Historical conversion rate",
	"days_since_last_contact": "Days since last contact",
	"account_age_days":        "Relationship age (days)",
	"company_age_years":       "Company age (years)",
	"seniority_level":         "Seniority level",
}

// ReadableFactor converts a technical factor name to a human-readable
// label.
func ReadableFactor(name string) string {
	if label, ok := readableFactors[name]; ok {
		return label
	}
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// summarize produces the one-line human explanation attached to every
// decision. It works purely over the breakdown so it stays
// deterministic for identical inputs.
func summarize(rule *Rule, decision *Decision) string {
	switch rule.Type {
	case RuleTypeDecisionTree:
		if len(decision.Breakdown) > 0 {
			return decision.Breakdown[0].Reason
		}
		return ""

	case RuleTypeRuleList:
		return summarizeOverrides(decision.Breakdown)

	case RuleTypeFormula, RuleTypeLookup:
		return summarizeFactors(decision.Breakdown)
	}
	return ""
}

func summarizeOverrides(breakdown []BreakdownEntry) string {
	var boosts, penalties []string
	for _, entry := range breakdown {
		if entry.Factor == "final_adjustment" {
			continue
		}
		adj, ok := toNumber(entry.Contribution)
		if !ok {
			continue
		}
		label := ReadableFactor(entry.Factor)
		if adj < 1 {
			penalties = append(penalties, label)
		} else if adj > 1 {
			boosts = append(boosts, label)
		}
	}

	switch {
	case len(penalties) == 0 && len(boosts) == 0:
		return "No overrides applied."
	case len(penalties) > 0 && len(boosts) > 0:
		return fmt.Sprintf("Adjusted down by %s; boosted by %s.",
			joinReadable(penalties), joinReadable(boosts))
	case len(penalties) > 0:
		return fmt.Sprintf("Adjusted down by %s.", joinReadable(penalties))
	default:
		return fmt.Sprintf("Boosted by %s.", joinReadable(boosts))
	}
}

func summarizeFactors(breakdown []BreakdownEntry) string {
	var factors []string
	clamped := false
	for _, entry := range breakdown {
		if entry.Factor == "clamped" {
			clamped = true
			continue
		}
		factors = append(factors, ReadableFactor(entry.Factor))
	}

	if len(factors) == 0 {
		return ""
	}
	summary := "Computed from " + joinReadable(factors)
	if clamped {
		summary += "; result clamped to the configured output range"
	}
	return summary + "."
}

// joinReadable joins labels as "a", "a and b", or "a, b and c".
func joinReadable(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}
