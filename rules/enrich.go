package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// DerivedField is a host-configured computed input field. The
// expression is CEL over the raw input record, compiled once at
// startup. Derived fields belong to host configuration, not to rule
// documents: rule authors never gain access to CEL, so the restricted
// formula grammar stays the only language a document can carry.
type DerivedField struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// Enricher evaluates derived fields against an input record before
// engine execution. Compiled programs are immutable, so an Enricher is
// safe for concurrent use.
type Enricher struct {
	fields   []DerivedField
	programs []cel.Program
}

// NewEnricher compiles the configured derived fields. A field whose
// expression does not compile is a configuration error reported
// immediately, never deferred to request time.
func NewEnricher(fields []DerivedField) (*Enricher, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	programs := make([]cel.Program, 0, len(fields))
	for _, field := range fields {
		ast, issues := env.Compile(field.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("derived field %q: compile error: %w", field.Name, issues.Err())
		}

		// Cost limit bounds runaway expressions from a bad config.
		prog, err := env.Program(ast, cel.CostLimit(1000000))
		if err != nil {
			return nil, fmt.Errorf("derived field %q: program creation error: %w", field.Name, err)
		}
		programs = append(programs, prog)
	}

	return &Enricher{fields: fields, programs: programs}, nil
}

// Enrich returns a copy of the input with every derived field that
// evaluated cleanly added. A field that fails at runtime (usually a
// missing source key) is skipped and reported; enrichment gates
// optional behavior, so partial success is not fatal.
func (e *Enricher) Enrich(input map[string]any) (map[string]any, []error) {
	if len(e.programs) == 0 {
		return input, nil
	}

	enriched := make(map[string]any, len(input)+len(e.fields))
	for k, v := range input {
		enriched[k] = v
	}

	var failures []error
	for i, prog := range e.programs {
		out, _, err := prog.Eval(map[string]any{"input": input})
		if err != nil {
			failures = append(failures, fmt.Errorf("derived field %q: %w", e.fields[i].Name, err))
			continue
		}
		enriched[e.fields[i].Name] = out.Value()
	}

	return enriched, failures
}
