package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// maxFormulaDepth caps nested-formula recursion so a pathological
// document cannot recurse unboundedly.
const maxFormulaDepth = 5

// ResolveVariable resolves a single variable spec against an input
// record. Every failure is a *ResolutionError wrapping one of the
// resolution sentinels; there is no silent NaN or zero fallback.
func ResolveVariable(name string, spec *VariableSpec, input map[string]any) (float64, error) {
	return resolveVariable(name, spec, input, 0)
}

func resolveVariable(name string, spec *VariableSpec, input map[string]any, depth int) (float64, error) {
	switch spec.Type {
	case VarTypeConstant:
		return *spec.Value, nil

	case VarTypeField:
		raw, ok := lookupField(input, spec.Field)
		if !ok {
			if spec.Default != nil {
				return *spec.Default, nil
			}
			return 0, &ResolutionError{Variable: name, Field: spec.Field, Err: ErrMissingField}
		}
		n, ok := toNumber(raw)
		if !ok {
			return 0, &ResolutionError{Variable: name, Field: spec.Field,
				Err: fmt.Errorf("%w: %v", ErrNotANumber, raw)}
		}
		return n, nil

	case VarTypeMapping:
		raw, ok := lookupField(input, spec.Field)
		if !ok {
			if spec.Default != nil {
				return *spec.Default, nil
			}
			return 0, &ResolutionError{Variable: name, Field: spec.Field, Err: ErrMissingField}
		}
		// Unknown input values never fail; they fall through to the
		// default. Validation guarantees a default is present.
		if v, ok := spec.Mapping[stringify(raw)]; ok {
			return v, nil
		}
		return *spec.Default, nil

	case VarTypeLookupTable:
		return resolveRanges(name, spec, spec.Table, input)

	case VarTypeRangeLookup:
		return resolveRanges(name, spec, spec.parsedRanges, input)

	case VarTypeFormula:
		if depth >= maxFormulaDepth {
			return 0, &ResolutionError{Variable: name, Err: ErrMaxDepthExceeded}
		}
		bound := make(map[string]float64, len(spec.Variables))
		for _, nested := range spec.Variables {
			v, err := resolveVariable(nested.Name, nested.Spec, input, depth+1)
			if err != nil {
				return 0, err
			}
			bound[nested.Name] = v
		}
		v, err := spec.compiled.Eval(bound)
		if err != nil {
			return 0, &ResolutionError{Variable: name, Err: err}
		}
		return v, nil
	}

	// Unknown types are rejected at validation; reaching here means the
	// spec bypassed LoadDocument.
	return 0, &ResolutionError{Variable: name,
		Err: fmt.Errorf("unvalidated variable spec type %q", spec.Type)}
}

// resolveRanges performs the ordered [lo, hi) search shared by
// lookup_table and range_lookup. Entries are sorted ascending at
// validation time, so the first containing entry is the only match.
func resolveRanges(name string, spec *VariableSpec, entries []RangeEntry, input map[string]any) (float64, error) {
	raw, ok := lookupField(input, spec.Field)
	if !ok {
		if spec.Default != nil {
			return *spec.Default, nil
		}
		return 0, &ResolutionError{Variable: name, Field: spec.Field, Err: ErrMissingField}
	}
	n, ok := toNumber(raw)
	if !ok {
		return 0, &ResolutionError{Variable: name, Field: spec.Field,
			Err: fmt.Errorf("%w: %v", ErrNotANumber, raw)}
	}

	for _, entry := range entries {
		if entry.Contains(n) {
			return entry.Value, nil
		}
	}

	if spec.Default != nil {
		return *spec.Default, nil
	}
	return 0, &ResolutionError{Variable: name, Field: spec.Field,
		Err: fmt.Errorf("%w for value %v", ErrNoMatchingRange, n)}
}

// lookupField fetches a possibly dotted field path from a nested input
// record.
func lookupField(input map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var cur any = input
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// toNumber coerces the value shapes encoding/json and callers commonly
// produce into a float64. Numeric strings count; booleans do not.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// stringify renders an input value the way mapping keys are written in
// rule documents.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprintf("%v", v)
}
