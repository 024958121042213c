package rules

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseFormulaEval(t *testing.T) {
	testCases := []struct {
		name    string
		formula string
		vars    map[string]float64
		want    float64
	}{
		{"literal", "42", nil, 42},
		{"decimal literal", "0.5", nil, 0.5},
		{"variable", "x", map[string]float64{"x": 3}, 3},
		{"addition", "1 + 2", nil, 3},
		{"subtraction is left associative", "10 - 3 - 2", nil, 5},
		{"multiplication binds tighter", "2 + 3 * 4", nil, 14},
		{"division binds tighter", "10 - 6 / 2", nil, 7},
		{"parentheses override", "(2 + 3) * 4", nil, 20},
		{"power", "2 ^ 10", nil, 1024},
		{"power is right associative", "2 ^ 3 ^ 2", nil, 512},
		{"power binds tighter than product", "2 * 3 ^ 2", nil, 18},
		{"unary minus", "-5", nil, -5},
		{"unary minus binds below power", "-2 ^ 2", nil, -4},
		{"parenthesized negative base", "(-2) ^ 2", nil, 4},
		{"double unary", "--5", nil, 5},
		{"mixed variables", "base * rate + bonus", map[string]float64{"base": 100, "rate": 0.5, "bonus": 7}, 57},
		{"underscored identifier", "uae_employees / 10", map[string]float64{"uae_employees": 150}, 15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := ParseFormula(tc.formula)
			if err != nil {
				t.Fatalf("ParseFormula(%q) failed: %v", tc.formula, err)
			}
			got, err := expr.Eval(tc.vars)
			if err != nil {
				t.Fatalf("Eval() failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Eval(%q) = %v, want %v", tc.formula, got, tc.want)
			}
		})
	}
}

func TestParseFormulaSyntaxErrors(t *testing.T) {
	testCases := []struct {
		name    string
		formula string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"dangling operator", "1 +"},
		{"leading star", "* 2"},
		{"unclosed paren", "(1 + 2"},
		{"stray close paren", "1 + 2)"},
		{"function call", "max(1, 2)"},
		{"property access", "user.age"},
		{"comparison operator", "a > b"},
		{"malformed number", "1.2.3"},
		{"adjacent operands", "1 2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFormula(tc.formula)
			if err == nil {
				t.Fatalf("ParseFormula(%q) should fail", tc.formula)
			}
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("ParseFormula(%q) error = %v, want ErrSyntax", tc.formula, err)
			}
		})
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	expr, err := ParseFormula("1 / d")
	if err != nil {
		t.Fatalf("ParseFormula() failed: %v", err)
	}

	_, err = expr.Eval(map[string]float64{"d": 0})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("Eval() error = %v, want ErrDivisionByZero", err)
	}

	// Nonzero divisor still works on the same compiled expression.
	got, err := expr.Eval(map[string]float64{"d": 4})
	if err != nil {
		t.Fatalf("Eval() failed: %v", err)
	}
	if got != 0.25 {
		t.Errorf("Eval() = %v, want 0.25", got)
	}
}

func TestEvalNonFiniteResult(t *testing.T) {
	testCases := []struct {
		name    string
		formula string
		vars    map[string]float64
	}{
		{"zero to negative power", "base ^ exp", map[string]float64{"base": 0, "exp": -1}},
		{"negative base fractional exponent", "base ^ exp", map[string]float64{"base": -2, "exp": 0.5}},
		{"overflowing power", "10 ^ 400", nil},
		{"overflow outside power", "x * x", map[string]float64{"x": 1e200}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := ParseFormula(tc.formula)
			if err != nil {
				t.Fatalf("ParseFormula(%q) failed: %v", tc.formula, err)
			}
			_, err = expr.Eval(tc.vars)
			if !errors.Is(err, ErrNonFinite) {
				t.Errorf("Eval(%q) error = %v, want ErrNonFinite", tc.formula, err)
			}
		})
	}
}

func TestEvalUnboundVariable(t *testing.T) {
	expr, err := ParseFormula("a + b")
	if err != nil {
		t.Fatalf("ParseFormula() failed: %v", err)
	}

	_, err = expr.Eval(map[string]float64{"a": 1})
	if !errors.Is(err, ErrUnboundVariable) {
		t.Errorf("Eval() error = %v, want ErrUnboundVariable", err)
	}
}

func TestExprIdentifiers(t *testing.T) {
	expr, err := ParseFormula("b * a + b - c")
	if err != nil {
		t.Fatalf("ParseFormula() failed: %v", err)
	}

	want := []string{"b", "a", "c"}
	if got := expr.Identifiers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Identifiers() = %v, want %v (first-appearance order, deduplicated)", got, want)
	}
}
