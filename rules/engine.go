package rules

import (
	"fmt"
	"strconv"
	"sync"
)

// Engine dispatches rule executions and composes explanation traces.
// Evaluation is a pure function of (document, input): the engine reads
// no clock, no randomness and does no I/O while executing, so two
// calls with the same (ruleName, version, input) produce identical
// decisions. The only shared state is the read-only document cache,
// which is populated with a get-or-load-once pattern so concurrent
// first accesses never double-validate a document.
type Engine struct {
	store DocumentStore
	cache DocumentCache

	ruleIndex map[string]string // ruleName@version -> document name
	mu        sync.RWMutex
	loadMu    sync.Mutex // serializes cache misses
}

// NewEngine creates an engine over a document store with the default
// in-memory cache.
func NewEngine(store DocumentStore) *Engine {
	return NewEngineWithCache(store, NewInMemoryDocumentCache(DefaultCacheConfig()))
}

// NewEngineWithCache creates an engine with a custom document cache.
func NewEngineWithCache(store DocumentStore, cache DocumentCache) *Engine {
	return &Engine{
		store:     store,
		cache:     cache,
		ruleIndex: make(map[string]string),
	}
}

// Execute evaluates the named rule at an exact document version against
// the input record. "Current version" selection is the caller's
// decision; the engine only ever sees explicit (ruleName, version)
// pairs, which is what makes executions reproducible for audit.
func (e *Engine) Execute(ruleName, version string, input map[string]any) (*Decision, error) {
	doc, err := e.document(ruleName, version)
	if err != nil {
		return nil, &ExecutionError{Rule: ruleName, Version: version, Err: err}
	}

	rule, ok := doc.Rules[ruleName]
	if !ok {
		return nil, &ExecutionError{Rule: ruleName, Version: version, Err: ErrRuleNotFound}
	}

	var decision *Decision
	switch rule.Type {
	case RuleTypeFormula, RuleTypeLookup:
		decision, err = executeFormula(rule, input)
	case RuleTypeDecisionTree:
		decision, err = executeTree(rule, input)
	case RuleTypeRuleList:
		decision, err = executeList(rule, input)
	default:
		err = fmt.Errorf("unvalidated rule type %q", rule.Type)
	}
	if err != nil {
		return nil, &ExecutionError{Rule: ruleName, Version: version, Err: err}
	}

	decision.RuleVersion = doc.Version
	decision.Summary = summarize(rule, decision)
	return decision, nil
}

// Validate checks raw document bytes and returns every issue found,
// for offline authoring tools. Nothing is cached.
func (e *Engine) Validate(raw []byte) []Issue {
	return ValidateDocument(raw)
}

// ListVersions returns every stored document version defining the named
// rule, for audit and rollback tooling.
func (e *Engine) ListVersions(ruleName string) ([]string, error) {
	return e.store.ListVersions(ruleName)
}

// CachedDocuments reports how many validated documents the cache
// currently holds.
func (e *Engine) CachedDocuments() int {
	return e.cache.Len()
}

// document resolves (ruleName, version) to a validated document,
// consulting the cache first.
func (e *Engine) document(ruleName, version string) (*RuleDocument, error) {
	key := ruleName + "@" + version

	e.mu.RLock()
	docName, indexed := e.ruleIndex[key]
	e.mu.RUnlock()

	if indexed {
		if doc := e.cache.Get(docName, version); doc != nil {
			return doc, nil
		}
	}

	// Miss: serialize loads so concurrent first accesses for the same
	// version load and validate once.
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.RLock()
	docName, indexed = e.ruleIndex[key]
	e.mu.RUnlock()
	if indexed {
		if doc := e.cache.Get(docName, version); doc != nil {
			return doc, nil
		}
	}

	doc, err := e.store.FindByRule(ruleName, version)
	if err != nil {
		return nil, err
	}

	e.cache.Set(doc)
	e.mu.Lock()
	e.ruleIndex[key] = doc.Name
	e.mu.Unlock()

	return doc, nil
}

func executeFormula(rule *Rule, input map[string]any) (*Decision, error) {
	bound := make(map[string]float64, len(rule.Variables))
	breakdown := make([]BreakdownEntry, 0, len(rule.Variables)+1)

	for _, variable := range rule.Variables {
		value, err := ResolveVariable(variable.Name, variable.Spec, input)
		if err != nil {
			return nil, err
		}
		bound[variable.Name] = value
		breakdown = append(breakdown, BreakdownEntry{
			Factor:       variable.Name,
			Contribution: value,
			Reason:       describeSpec(variable.Spec),
		})
	}

	var result float64
	if rule.Type == RuleTypeLookup {
		// The degenerate formula: the single variable is the result.
		result = bound[rule.Variables[0].Name]
	} else {
		raw, err := rule.compiled.Eval(bound)
		if err != nil {
			return nil, err
		}
		result = raw

		if rule.OutputRange != nil {
			lo, hi := rule.OutputRange[0], rule.OutputRange[1]
			if raw < lo {
				result = lo
				breakdown = append(breakdown, BreakdownEntry{
					Factor:       "clamped",
					Contribution: true,
					Reason: fmt.Sprintf("result %s below range minimum %s",
						formatNumber(raw), formatNumber(lo)),
				})
			} else if raw > hi {
				result = hi
				breakdown = append(breakdown, BreakdownEntry{
					Factor:       "clamped",
					Contribution: true,
					Reason: fmt.Sprintf("result %s above range maximum %s",
						formatNumber(raw), formatNumber(hi)),
				})
			}
		}
	}

	return &Decision{Result: result, Breakdown: breakdown}, nil
}

func executeTree(rule *Rule, input map[string]any) (*Decision, error) {
	output, reasoning := EvaluateTree(rule, input)
	return &Decision{
		Result: output.Value,
		Breakdown: []BreakdownEntry{{
			Factor:       "decision",
			Contribution: output.Value,
			Reason:       reasoning,
		}},
		Confidence: output.Confidence,
	}, nil
}

func executeList(rule *Rule, input map[string]any) (*Decision, error) {
	final, applied := EvaluateList(rule, input)

	breakdown := make([]BreakdownEntry, 0, len(applied)+1)
	for _, ar := range applied {
		breakdown = append(breakdown, BreakdownEntry{
			Factor:       ar.Name,
			Contribution: ar.Adjustment,
			Reason:       ar.Reason,
			Severity:     ar.Severity,
		})
	}
	breakdown = append(breakdown, BreakdownEntry{
		Factor:       "final_adjustment",
		Contribution: final,
		Reason:       fmt.Sprintf("%d override(s) applied", len(applied)),
	})

	return &Decision{Result: final, Breakdown: breakdown}, nil
}

func describeSpec(spec *VariableSpec) string {
	switch spec.Type {
	case VarTypeConstant:
		return "constant"
	case VarTypeField:
		return "input field " + spec.Field
	case VarTypeMapping:
		return "mapping over " + spec.Field
	case VarTypeLookupTable, VarTypeRangeLookup:
		return "range lookup over " + spec.Field
	case VarTypeFormula:
		return "nested formula"
	}
	return spec.Type
}

// formatNumber renders floats without exponent notation or trailing
// zeros so breakdown text is stable across platforms.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
