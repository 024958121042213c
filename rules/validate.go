package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LoadDocument parses and validates a raw rule document. It is a pure
// function: no I/O, no clock. On any structural violation the whole
// document is rejected with a *ValidationError enumerating every
// problem found - a partially valid rule set would produce silently
// wrong decisions. The returned document has all formulas compiled and
// all textual ranges normalized, and must be treated as immutable.
func LoadDocument(raw []byte) (*RuleDocument, error) {
	var doc RuleDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Issues: []Issue{
			{Path: "", Message: "malformed JSON: " + err.Error()},
		}}
	}

	v := &docValidator{}
	v.validateDocument(&doc)
	if len(v.issues) > 0 {
		return nil, &ValidationError{Issues: v.issues}
	}

	doc.raw = append([]byte(nil), raw...)
	return &doc, nil
}

// ValidateDocument validates raw bytes and returns every issue found.
// An empty slice means the document is valid. This is the surface
// offline authoring tools use.
func ValidateDocument(raw []byte) []Issue {
	_, err := LoadDocument(raw)
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Issues
	}
	return []Issue{{Message: err.Error()}}
}

type docValidator struct {
	issues []Issue
}

func (v *docValidator) addf(path, format string, args ...any) {
	v.issues = append(v.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *docValidator) validateDocument(doc *RuleDocument) {
	if doc.Name == "" {
		v.addf("name", "document name is required")
	}
	if doc.Version == "" {
		v.addf("version", "document version is required")
	}
	if len(doc.Rules) == 0 {
		v.addf("rules", "document must define at least one rule")
	}

	// Deterministic issue order for stable authoring output.
	names := make([]string, 0, len(doc.Rules))
	for name := range doc.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := doc.Rules[name]
		path := "rules." + name
		if rule == nil {
			v.addf(path, "rule is null")
			continue
		}
		v.validateRule(path, rule)
	}
}

func (v *docValidator) validateRule(path string, rule *Rule) {
	switch rule.Type {
	case RuleTypeFormula:
		v.rejectStrayFields(path, rule, "formula", "variables", "output_range")
		v.validateFormulaRule(path, rule)
	case RuleTypeLookup:
		v.rejectStrayFields(path, rule, "variables")
		v.validateLookupRule(path, rule)
	case RuleTypeDecisionTree:
		v.rejectStrayFields(path, rule, "branches", "fallback")
		v.validateTreeRule(path, rule)
	case RuleTypeRuleList:
		v.rejectStrayFields(path, rule, "rules")
		v.validateRuleListRule(path, rule)
	case "":
		v.addf(path+".type", "rule type is required")
	default:
		v.addf(path+".type", "unknown rule type %q (want formula, decision_tree, rule_list, or lookup)", rule.Type)
	}
}

// rejectStrayFields flags populated fields that belong to a different
// rule variant. Ignoring them silently would mask authoring mistakes
// like a formula rule carrying branches meant for a decision tree.
func (v *docValidator) rejectStrayFields(path string, rule *Rule, allowed ...string) {
	present := map[string]bool{
		"formula":      rule.Formula != "",
		"variables":    len(rule.Variables) > 0,
		"output_range": rule.OutputRange != nil,
		"branches":     len(rule.Branches) > 0,
		"fallback":     rule.Fallback != nil,
		"rules":        len(rule.Rules) > 0,
	}
	for _, field := range allowed {
		delete(present, field)
	}
	for _, field := range []string{"formula", "variables", "output_range", "branches", "fallback", "rules"} {
		if present[field] {
			v.addf(path+"."+field, "field %q is not used by %s rules", field, rule.Type)
		}
	}
}

func (v *docValidator) validateFormulaRule(path string, rule *Rule) {
	if rule.OutputRange != nil && rule.OutputRange[0] > rule.OutputRange[1] {
		v.addf(path+".output_range", "min %v exceeds max %v", rule.OutputRange[0], rule.OutputRange[1])
	}

	for _, variable := range rule.Variables {
		v.validateVariableSpec(path+".variables."+variable.Name, variable.Spec, 0)
	}

	if rule.Formula == "" {
		v.addf(path+".formula", "formula is required")
		return
	}

	expr, err := ParseFormula(rule.Formula)
	if err != nil {
		v.addf(path+".formula", "%v", err)
		return
	}
	rule.compiled = expr

	for _, ident := range expr.Identifiers() {
		if rule.Variables.Get(ident) == nil {
			v.addf(path+".formula", "formula references undeclared variable %q", ident)
		}
	}
}

func (v *docValidator) validateLookupRule(path string, rule *Rule) {
	// A lookup rule is the degenerate formula: exactly one table-backed
	// variable whose resolved value is the result.
	if len(rule.Variables) != 1 {
		v.addf(path+".variables", "lookup rule requires exactly one variable, got %d", len(rule.Variables))
		return
	}

	variable := rule.Variables[0]
	if t := variable.Spec.Type; t != VarTypeLookupTable && t != VarTypeRangeLookup {
		v.addf(path+".variables."+variable.Name+".type",
			"lookup rule variable must be lookup_table or range_lookup, got %q", t)
	}
	v.validateVariableSpec(path+".variables."+variable.Name, variable.Spec, 0)
}

func (v *docValidator) validateTreeRule(path string, rule *Rule) {
	if len(rule.Branches) == 0 {
		v.addf(path+".branches", "decision tree requires at least one branch")
	}
	if rule.Fallback == nil {
		v.addf(path+".fallback", "decision tree requires a fallback output")
	}

	for i, branch := range rule.Branches {
		branchPath := fmt.Sprintf("%s.branches[%d]", path, i)
		if branch.Condition == nil {
			v.addf(branchPath+".condition", "branch condition is required")
		} else {
			v.validateCondition(branchPath+".condition", branch.Condition)
		}
		if branch.Output.Value == nil {
			v.addf(branchPath+".output", "branch output value is required")
		}
	}
}

func (v *docValidator) validateRuleListRule(path string, rule *Rule) {
	if len(rule.Rules) == 0 {
		v.addf(path+".rules", "rule list requires at least one rule")
	}

	for i := range rule.Rules {
		or := &rule.Rules[i]
		rulePath := fmt.Sprintf("%s.rules[%d]", path, i)

		if or.Name == "" {
			v.addf(rulePath+".name", "rule name is required")
		}
		if or.Condition == nil {
			v.addf(rulePath+".condition", "rule condition is required")
		} else {
			v.validateCondition(rulePath+".condition", or.Condition)
		}

		or.Severity = strings.ToUpper(or.Severity)
		switch or.Severity {
		case SeverityLow, SeverityMedium, SeverityHigh:
		case "":
			v.addf(rulePath+".severity", "severity is required (LOW, MEDIUM, or HIGH)")
		default:
			v.addf(rulePath+".severity", "unknown severity %q (want LOW, MEDIUM, or HIGH)", or.Severity)
		}

		if or.Adjustment < 0 {
			v.addf(rulePath+".adjustment", "adjustment must be >= 0, got %v", or.Adjustment)
		}
	}
}

func (v *docValidator) validateVariableSpec(path string, spec *VariableSpec, depth int) {
	if spec == nil {
		v.addf(path, "variable spec is null")
		return
	}

	switch spec.Type {
	case VarTypeConstant:
		if spec.Value == nil {
			v.addf(path+".value", "constant requires a numeric value")
		}

	case VarTypeField:
		if spec.Field == "" {
			v.addf(path+".field", "field name is required")
		}

	case VarTypeMapping:
		if spec.Field == "" {
			v.addf(path+".field", "field name is required")
		}
		if len(spec.Mapping) == 0 {
			v.addf(path+".mapping", "mapping requires at least one entry")
		}
		// A default is mandatory so unknown input values can never fail
		// resolution.
		if spec.Default == nil {
			v.addf(path+".default", "mapping requires a default value")
		}

	case VarTypeLookupTable:
		if spec.Field == "" {
			v.addf(path+".field", "field name is required")
		}
		if len(spec.Table) == 0 {
			v.addf(path+".table", "lookup table requires at least one range entry")
		}
		v.validateRangeEntries(path+".table", spec.Table)

	case VarTypeRangeLookup:
		if spec.Field == "" {
			v.addf(path+".field", "field name is required")
		}
		if len(spec.Ranges) == 0 {
			v.addf(path+".ranges", "range lookup requires at least one range key")
			return
		}
		parsed, ok := v.parseRangeKeys(path+".ranges", spec.Ranges)
		if ok {
			v.validateRangeEntries(path+".ranges", parsed)
			spec.parsedRanges = parsed
		}

	case VarTypeFormula:
		if depth >= maxFormulaDepth {
			v.addf(path, "formula nesting exceeds maximum depth of %d", maxFormulaDepth)
			return
		}
		for _, nested := range spec.Variables {
			v.validateVariableSpec(path+".variables."+nested.Name, nested.Spec, depth+1)
		}
		if spec.Formula == "" {
			v.addf(path+".formula", "formula is required")
			return
		}
		expr, err := ParseFormula(spec.Formula)
		if err != nil {
			v.addf(path+".formula", "%v", err)
			return
		}
		spec.compiled = expr
		for _, ident := range expr.Identifiers() {
			if spec.Variables.Get(ident) == nil {
				v.addf(path+".formula", "formula references undeclared variable %q", ident)
			}
		}

	case "":
		v.addf(path+".type", "variable type is required")
	default:
		v.addf(path+".type", "unknown variable type %q (want constant, field, mapping, lookup_table, range_lookup, or formula)", spec.Type)
	}
}

// validateRangeEntries enforces the shared range invariants: each entry
// is a proper [lo, hi) interval, and entries are sorted ascending with
// no overlap. Because bounds are upper-exclusive, a shared boundary
// (hi of one entry equal to lo of the next) is not an overlap.
func (v *docValidator) validateRangeEntries(path string, entries []RangeEntry) {
	for i, entry := range entries {
		if entry.Range[0] >= entry.Range[1] {
			v.addf(fmt.Sprintf("%s[%d]", path, i), "range lower bound %v must be below upper bound %v",
				entry.Range[0], entry.Range[1])
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if entry.Range[0] < prev.Range[0] {
			v.addf(fmt.Sprintf("%s[%d]", path, i), "ranges must be sorted ascending")
		} else if entry.Range[0] < prev.Range[1] {
			v.addf(fmt.Sprintf("%s[%d]", path, i), "range [%v,%v) overlaps previous range [%v,%v)",
				entry.Range[0], entry.Range[1], prev.Range[0], prev.Range[1])
		}
	}
}

// parseRangeKeys converts textual "lo-hi" keys into sorted range
// entries. Textual keys follow the same lower-inclusive,
// upper-exclusive convention as numeric range arrays.
func (v *docValidator) parseRangeKeys(path string, ranges map[string]float64) ([]RangeEntry, bool) {
	entries := make([]RangeEntry, 0, len(ranges))
	ok := true

	for key, value := range ranges {
		lo, hi, err := parseRangeKey(key)
		if err != nil {
			v.addf(path, "invalid range key %q: %v", key, err)
			ok = false
			continue
		}
		entries = append(entries, RangeEntry{Range: [2]float64{lo, hi}, Value: value})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Range[0] < entries[j].Range[0]
	})
	return entries, ok
}

// parseRangeKey splits "lo-hi" into its bounds. The separator is the
// first '-' that is not a leading sign, so negative bounds like
// "-5-0" parse as [-5, 0).
func parseRangeKey(key string) (float64, float64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, 0, fmt.Errorf("empty key")
	}

	sep := -1
	for i := 1; i < len(key); i++ {
		if key[i] == '-' && key[i-1] != '-' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return 0, 0, fmt.Errorf("expected \"lo-hi\"")
	}

	lo, err := strconv.ParseFloat(strings.TrimSpace(key[:sep]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad lower bound %q", key[:sep])
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(key[sep+1:]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad upper bound %q", key[sep+1:])
	}
	if lo >= hi {
		return 0, 0, fmt.Errorf("lower bound %v must be below upper bound %v", lo, hi)
	}
	return lo, hi, nil
}

func (v *docValidator) validateCondition(path string, c *Condition) {
	isCombinator := len(c.And) > 0 || len(c.Or) > 0

	if isCombinator {
		if len(c.And) > 0 && len(c.Or) > 0 {
			v.addf(path, "condition cannot set both \"and\" and \"or\"")
		}
		if c.Field != "" || c.Op != "" {
			v.addf(path, "combinator condition cannot also be a comparison")
		}
		for i, child := range c.And {
			v.validateCondition(fmt.Sprintf("%s.and[%d]", path, i), child)
		}
		for i, child := range c.Or {
			v.validateCondition(fmt.Sprintf("%s.or[%d]", path, i), child)
		}
		return
	}

	if c.Field == "" {
		v.addf(path+".field", "comparison requires a field path")
	}

	switch c.Op {
	case OpEq, OpLt, OpGt, OpGte, OpLte:
		if c.Value == nil {
			v.addf(path+".value", "operator %q requires a literal value", c.Op)
		} else if c.Op != OpEq {
			if _, ok := toNumber(c.Value); !ok {
				v.addf(path+".value", "operator %q requires a numeric value, got %v", c.Op, c.Value)
			}
		}

	case OpBetween:
		bounds, ok := c.Value.([]any)
		if !ok || len(bounds) != 2 {
			v.addf(path+".value", "between requires a 2-element numeric range")
			return
		}
		lo, okLo := toNumber(bounds[0])
		hi, okHi := toNumber(bounds[1])
		if !okLo || !okHi {
			v.addf(path+".value", "between bounds must be numeric")
		} else if lo > hi {
			v.addf(path+".value", "between lower bound %v exceeds upper bound %v", lo, hi)
		}

	case OpIn:
		list, ok := c.Value.([]any)
		if !ok || len(list) == 0 {
			v.addf(path+".value", "in requires a non-empty literal list")
		}

	case "":
		v.addf(path+".op", "operator is required")
	default:
		v.addf(path+".op", "unknown operator %q", c.Op)
	}
}
