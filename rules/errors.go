package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the resolution and evaluation taxonomy. Callers
// classify failures with errors.Is rather than string matching.
var (
	ErrMissingField     = errors.New("missing input field")
	ErrNoMatchingRange  = errors.New("no matching range")
	ErrMaxDepthExceeded = errors.New("max formula nesting depth exceeded")
	ErrNotANumber       = errors.New("value is not numeric")

	ErrUnboundVariable = errors.New("unbound variable")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrNonFinite       = errors.New("non-finite result")
	ErrSyntax          = errors.New("formula syntax error")

	ErrDocumentNotFound = errors.New("rule document not found")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrDocumentExists   = errors.New("rule document version already exists")
)

// IsNotFound reports whether err means the requested rule or document
// does not exist in the store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) || errors.Is(err, ErrRuleNotFound)
}

// IsConflict reports whether err means a document version already
// exists; versions are immutable so a re-Put is always a conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDocumentExists)
}

// Issue is a single structural problem found while validating a rule
// document, located by a dotted path into the document.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError carries every violation found in a document, not just
// the first, so authors can fix a document in one pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rule document invalid: %d issue(s)", len(e.Issues))
	for _, iss := range e.Issues {
		sb.WriteString("\n  - ")
		sb.WriteString(iss.String())
	}
	return sb.String()
}

// ResolutionError reports a variable that failed to resolve against the
// input record. It wraps one of the resolution sentinels.
type ResolutionError struct {
	Variable string
	Field    string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("variable %q (field %q): %v", e.Variable, e.Field, e.Err)
	}
	return fmt.Sprintf("variable %q: %v", e.Variable, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// EvalError reports a failure inside the restricted formula grammar.
// Pos is a byte offset into the formula source, -1 when not applicable.
type EvalError struct {
	Pos    int
	Detail string
	Err    error
}

func (e *EvalError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%v at offset %d: %s", e.Err, e.Pos, e.Detail)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *EvalError) Unwrap() error { return e.Err }

// ExecutionError wraps any failure during Execute with the (rule,
// version) context that produced it.
type ExecutionError struct {
	Rule    string
	Version string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing rule %q version %q: %v", e.Rule, e.Version, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
