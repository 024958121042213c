package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// The formula grammar is deliberately tiny: numeric literals, variable
// references, + - * / ^ and parentheses. No calls, no property access,
// no assignment. Rule documents stay data; this parser is the security
// boundary that keeps them from becoming code.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokCaret
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch c {
	case '+':
		l.pos++
		return token{tokPlus, "+", start}, nil
	case '-':
		l.pos++
		return token{tokMinus, "-", start}, nil
	case '*':
		l.pos++
		return token{tokStar, "*", start}, nil
	case '/':
		l.pos++
		return token{tokSlash, "/", start}, nil
	case '^':
		l.pos++
		return token{tokCaret, "^", start}, nil
	case '(':
		l.pos++
		return token{tokLParen, "(", start}, nil
	case ')':
		l.pos++
		return token{tokRParen, ")", start}, nil
	}

	if c >= '0' && c <= '9' || c == '.' {
		for l.pos < len(l.src) {
			c := l.src[l.pos]
			if c >= '0' && c <= '9' || c == '.' {
				l.pos++
				continue
			}
			break
		}
		text := l.src[start:l.pos]
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return token{}, &EvalError{Pos: start, Detail: fmt.Sprintf("malformed number %q", text), Err: ErrSyntax}
		}
		return token{tokNumber, text, start}, nil
	}

	if c == '_' || unicode.IsLetter(rune(c)) {
		for l.pos < len(l.src) {
			c := rune(l.src[l.pos])
			if c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) {
				l.pos++
				continue
			}
			break
		}
		return token{tokIdent, l.src[start:l.pos], start}, nil
	}

	return token{}, &EvalError{Pos: start, Detail: fmt.Sprintf("unexpected character %q", string(c)), Err: ErrSyntax}
}

// Expr is a parsed formula, ready for repeated evaluation against
// different variable bindings.
type Expr struct {
	root   exprNode
	source string
}

// Source returns the formula text the expression was parsed from.
func (e *Expr) Source() string { return e.source }

// Identifiers returns the distinct variable names referenced by the
// formula, in first-appearance order.
func (e *Expr) Identifiers() []string {
	seen := make(map[string]bool)
	var out []string
	collectIdents(e.root, seen, &out)
	return out
}

func collectIdents(n exprNode, seen map[string]bool, out *[]string) {
	switch node := n.(type) {
	case *varNode:
		if !seen[node.name] {
			seen[node.name] = true
			*out = append(*out, node.name)
		}
	case *unaryNode:
		collectIdents(node.operand, seen, out)
	case *binaryNode:
		collectIdents(node.left, seen, out)
		collectIdents(node.right, seen, out)
	}
}

// Eval evaluates the expression with the given variable bindings.
// Unknown identifiers fail with ErrUnboundVariable; division by zero
// fails with ErrDivisionByZero, and any Inf or NaN fails with
// ErrNonFinite instead of leaking into a decision.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	v, err := e.root.eval(vars)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, &EvalError{Pos: -1, Detail: "expression overflowed", Err: ErrNonFinite}
	}
	return v, nil
}

type exprNode interface {
	eval(vars map[string]float64) (float64, error)
}

type numberNode struct {
	value float64
}

func (n *numberNode) eval(map[string]float64) (float64, error) { return n.value, nil }

type varNode struct {
	name string
	pos  int
}

func (n *varNode) eval(vars map[string]float64) (float64, error) {
	v, ok := vars[n.name]
	if !ok {
		return 0, &EvalError{Pos: n.pos, Detail: n.name, Err: ErrUnboundVariable}
	}
	return v, nil
}

type unaryNode struct {
	operand exprNode
}

func (n *unaryNode) eval(vars map[string]float64) (float64, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return 0, err
	}
	return -v, nil
}

type binaryNode struct {
	op          tokenKind
	left, right exprNode
	pos         int
}

func (n *binaryNode) eval(vars map[string]float64) (float64, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case tokPlus:
		return l + r, nil
	case tokMinus:
		return l - r, nil
	case tokStar:
		return l * r, nil
	case tokSlash:
		if r == 0 {
			return 0, &EvalError{Pos: n.pos, Detail: "right operand of / is zero", Err: ErrDivisionByZero}
		}
		return l / r, nil
	case tokCaret:
		// Pow produces Inf for cases like 0^-1 and NaN for a negative
		// base with a fractional exponent. Neither is a number a
		// decision may carry.
		v := math.Pow(l, r)
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, &EvalError{Pos: n.pos, Detail: fmt.Sprintf("%v ^ %v is not finite", l, r), Err: ErrNonFinite}
		}
		return v, nil
	}
	return 0, &EvalError{Pos: n.pos, Detail: "unknown operator", Err: ErrSyntax}
}

// Binding powers for the Pratt parser. '^' binds tightest and is
// right-associative; unary minus sits between '*' and '^' so that
// -2^2 parses as -(2^2).
func bindingPower(k tokenKind) int {
	switch k {
	case tokPlus, tokMinus:
		return 10
	case tokStar, tokSlash:
		return 20
	case tokCaret:
		return 40
	}
	return 0
}

const unaryBindingPower = 30

type parser struct {
	lex  *lexer
	cur  token
	peek bool
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// ParseFormula parses a formula string into a reusable Expr. Only the
// restricted grammar is accepted; anything else fails with ErrSyntax.
func ParseFormula(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &EvalError{Pos: 0, Detail: "empty formula", Err: ErrSyntax}
	}

	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, &EvalError{Pos: p.cur.pos, Detail: fmt.Sprintf("unexpected %q", p.cur.text), Err: ErrSyntax}
	}

	return &Expr{root: root, source: src}, nil
}

func (p *parser) parseExpr(minBP int) (exprNode, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		bp := bindingPower(p.cur.kind)
		if bp == 0 || bp <= minBP {
			break
		}

		op := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}

		// Right-associativity for '^': recurse with bp-1 so an equal
		// binding power on the right keeps consuming.
		rightBP := bp
		if op.kind == tokCaret {
			rightBP = bp - 1
		}

		right, err := p.parseExpr(rightBP)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op.kind, left: left, right: right, pos: op.pos}
	}

	return left, nil
}

func (p *parser) parsePrefix() (exprNode, error) {
	switch p.cur.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, &EvalError{Pos: p.cur.pos, Detail: p.cur.text, Err: ErrSyntax}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &numberNode{value: v}, nil

	case tokIdent:
		node := &varNode{name: p.cur.text, pos: p.cur.pos}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil

	case tokMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(unaryBindingPower)
		if err != nil {
			return nil, err
		}
		return &unaryNode{operand: operand}, nil

	case tokLParen:
		open := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, &EvalError{Pos: open.pos, Detail: "unclosed parenthesis", Err: ErrSyntax}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokEOF:
		return nil, &EvalError{Pos: p.cur.pos, Detail: "unexpected end of formula", Err: ErrSyntax}
	}

	return nil, &EvalError{Pos: p.cur.pos, Detail: fmt.Sprintf("unexpected %q", p.cur.text), Err: ErrSyntax}
}
