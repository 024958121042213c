package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Rule type discriminators. Unknown types are rejected at load time,
// never at evaluation.
const (
	RuleTypeFormula      = "formula"
	RuleTypeDecisionTree = "decision_tree"
	RuleTypeRuleList     = "rule_list"
	RuleTypeLookup       = "lookup"
)

// Variable resolution strategies.
const (
	VarTypeConstant    = "constant"
	VarTypeField       = "field"
	VarTypeMapping     = "mapping"
	VarTypeLookupTable = "lookup_table"
	VarTypeRangeLookup = "range_lookup"
	VarTypeFormula     = "formula"
)

// Severity tags for rule-list entries. Used to prioritize human review,
// not to alter evaluation order.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// RuleDocument is a versioned, immutable bundle of named rules.
// Instances are identified by (Name, Version) and must never be
// mutated after LoadDocument returns them.
type RuleDocument struct {
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	CreatedAt   string           `json:"created_at,omitempty"`
	Description string           `json:"description,omitempty"`
	Rules       map[string]*Rule `json:"rules"`
	Metadata    map[string]any   `json:"metadata,omitempty"`

	raw []byte // original document bytes, kept for persistence
}

// Raw returns the JSON bytes the document was loaded from.
func (d *RuleDocument) Raw() []byte {
	return d.raw
}

// Rule is a tagged union over the four evaluation paradigms. Exactly one
// variant's fields are populated, selected by Type.
type Rule struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`

	// formula and lookup variants
	Formula     string       `json:"formula,omitempty"`
	Variables   VariableList `json:"variables,omitempty"`
	OutputRange *[2]float64  `json:"output_range,omitempty"`

	// decision_tree variant
	Branches []Branch `json:"branches,omitempty"`
	Fallback *Output  `json:"fallback,omitempty"`

	// rule_list variant
	Rules []OverrideRule `json:"rules,omitempty"`

	compiled *Expr // parsed formula, set during validation
}

// Variable pairs a name with its resolution strategy. Declaration order
// from the source document is preserved so breakdown traces read the way
// the author wrote the rule.
type Variable struct {
	Name string
	Spec *VariableSpec
}

// VariableList decodes a JSON object of variable specs while preserving
// key order. encoding/json maps are unordered, so we walk the token
// stream ourselves.
type VariableList []Variable

func (vl *VariableList) UnmarshalJSON(data []byte) error {
	// Null is a no-op, matching encoding/json convention. The document
	// then validates as a rule with no variables, which yields precise
	// per-path issues instead of a blanket malformed-JSON error.
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("variables must be a JSON object, got %v", tok)
	}

	out := make(VariableList, 0, 4)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected variable key token %v", keyTok)
		}

		var spec VariableSpec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		out = append(out, Variable{Name: name, Spec: &spec})
	}

	if _, err := dec.Token(); err != nil { // consume closing '}'
		return err
	}

	*vl = out
	return nil
}

func (vl VariableList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range vl {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		spec, err := json.Marshal(v.Spec)
		if err != nil {
			return nil, err
		}
		buf.Write(spec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the spec for a variable name, or nil if undeclared.
func (vl VariableList) Get(name string) *VariableSpec {
	for _, v := range vl {
		if v.Name == name {
			return v.Spec
		}
	}
	return nil
}

// VariableSpec is a tagged union over resolution strategies, selected
// by Type.
type VariableSpec struct {
	Type string `json:"type"`

	// constant
	Value *float64 `json:"value,omitempty"`

	// field, mapping, lookup_table, range_lookup: the input record key
	Field string `json:"field,omitempty"`

	// mapping
	Mapping map[string]float64 `json:"mapping,omitempty"`

	// mapping, field, lookup_table, range_lookup: fallback value
	Default *float64 `json:"default,omitempty"`

	// lookup_table
	Table []RangeEntry `json:"table,omitempty"`

	// range_lookup: textual keys such as "0-7"
	Ranges map[string]float64 `json:"ranges,omitempty"`

	// nested formula
	Formula   string       `json:"formula,omitempty"`
	Variables VariableList `json:"variables,omitempty"`

	compiled     *Expr        // parsed nested formula, set during validation
	parsedRanges []RangeEntry // range_lookup keys parsed and sorted, set during validation
}

// RangeEntry maps a numeric interval to a value. Bounds are
// lower-inclusive, upper-exclusive: an input equal to Range[1] does
// not match this entry.
type RangeEntry struct {
	Range [2]float64 `json:"range"`
	Value float64    `json:"value"`
}

// Contains reports whether n falls inside [lo, hi).
func (e RangeEntry) Contains(n float64) bool {
	return n >= e.Range[0] && n < e.Range[1]
}

// Condition operators.
const (
	OpEq      = "eq"
	OpLt      = "lt"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLte     = "lte"
	OpBetween = "between"
	OpIn      = "in"
)

// Condition is a recursive boolean predicate over an input record.
// Either And/Or is set (combinator node) or Field/Op/Value are set
// (leaf comparison).
type Condition struct {
	And []*Condition `json:"and,omitempty"`
	Or  []*Condition `json:"or,omitempty"`

	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Output is the result a decision-tree branch produces.
type Output struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Branch is one ordered arm of a decision tree. Reasoning is carried
// verbatim into the explanation trace when the branch fires.
type Branch struct {
	Condition *Condition `json:"condition"`
	Output    Output     `json:"output"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// OverrideRule is one entry of a rule list. Adjustments of every
// matching entry compose multiplicatively; severity is advisory.
type OverrideRule struct {
	Name       string     `json:"name"`
	Condition  *Condition `json:"condition"`
	Adjustment float64    `json:"adjustment"`
	Severity   string     `json:"severity"`
	Reason     string     `json:"reason,omitempty"`
}

// Decision is the engine output: a result plus the ordered explanation
// trace, stamped with the document version that produced it. Created
// fresh on every Execute call and never persisted by the engine.
type Decision struct {
	Result      any              `json:"result"`
	Breakdown   []BreakdownEntry `json:"breakdown"`
	RuleVersion string           `json:"rule_version"`
	Confidence  *float64         `json:"confidence,omitempty"`
	Summary     string           `json:"summary,omitempty"`
}

// BreakdownEntry records one contributing factor of a decision.
type BreakdownEntry struct {
	Factor       string `json:"factor"`
	Contribution any    `json:"contribution"`
	Reason       string `json:"reason,omitempty"`
	Severity     string `json:"severity,omitempty"`
}
