// Package formula parses and evaluates the arithmetic expressions stored on
// template splits.
//
// The grammar is deliberately small:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = "-" unary | "+" unary | factor
//	factor = number | ident | "(" expr ")"
//
// Numbers accept a dot or comma decimal separator. Identifiers start with a
// letter or underscore and may contain letters, digits and underscores.
// All arithmetic is exact decimal.
package formula

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrDivisionByZero = errors.New("division by zero")

// ParseError reports a syntax error at a byte offset in the source.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("at %d: %s", e.Pos, e.Msg)
}

// UnboundError is returned by Eval when an identifier has no value.
type UnboundError struct {
	Name string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Name)
}

type nodeKind int

const (
	numNode nodeKind = iota
	varNode
	negNode
	binNode
)

type node struct {
	kind  nodeKind
	num   decimal.Decimal
	name  string
	op    byte
	left  *node
	right *node
}

// Expr is a parsed formula.
type Expr struct {
	src  string
	root *node
}

// Parse parses src. An empty or blank source is a ParseError; callers that
// treat empty formulas as unset must check before parsing.
func Parse(src string) (*Expr, error) {
	p := &parser{src: src}
	p.next()
	if p.tok.kind == tokEOF {
		return nil, &ParseError{Pos: 0, Msg: "empty formula"}
	}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &ParseError{Pos: p.tok.pos, Msg: fmt.Sprintf("unexpected %q", p.tok.text)}
	}
	return &Expr{src: src, root: root}, nil
}

func (e *Expr) String() string { return e.src }

// Variables returns the identifiers referenced by the expression, sorted
// and without duplicates.
func (e *Expr) Variables() []string {
	seen := map[string]struct{}{}
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.kind == varNode {
			seen[n.name] = struct{}{}
		}
		walk(n.left)
		walk(n.right)
	}
	walk(e.root)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Eval computes the expression with the given bindings.
func (e *Expr) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return eval(e.root, vars)
}

func eval(n *node, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	switch n.kind {
	case numNode:
		return n.num, nil
	case varNode:
		v, ok := vars[n.name]
		if !ok {
			return decimal.Zero, &UnboundError{Name: n.name}
		}
		return v, nil
	case negNode:
		v, err := eval(n.left, vars)
		if err != nil {
			return decimal.Zero, err
		}
		return v.Neg(), nil
	}

	l, err := eval(n.left, vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := eval(n.right, vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	case '/':
		if r.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return l.Div(r), nil
	}
	return decimal.Zero, fmt.Errorf("unknown operator %q", n.op)
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokInvalid
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src string
	off int
	tok token
}

func (p *parser) next() {
	for p.off < len(p.src) && unicode.IsSpace(rune(p.src[p.off])) {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	c := p.src[p.off]
	switch {
	case isDigit(c) || ((c == '.' || c == ',') && p.off+1 < len(p.src) && isDigit(p.src[p.off+1])):
		seenSep := false
		for p.off < len(p.src) {
			c := p.src[p.off]
			if isDigit(c) {
				p.off++
				continue
			}
			if (c == '.' || c == ',') && !seenSep {
				seenSep = true
				p.off++
				continue
			}
			break
		}
		p.tok = token{kind: tokNum, text: p.src[start:p.off], pos: start}
	case isIdentStart(c):
		for p.off < len(p.src) && isIdentPart(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	case strings.IndexByte("+-*/", c) >= 0:
		p.off++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	case c == '(':
		p.off++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.off++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	default:
		p.off++
		p.tok = token{kind: tokInvalid, text: string(c), pos: start}
	}
}

func (p *parser) expr() (*node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &node{kind: binNode, op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) term() (*node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text[0]
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &node{kind: binNode, op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) unary() (*node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		neg := p.tok.text == "-"
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		if neg {
			return &node{kind: negNode, left: operand}, nil
		}
		return operand, nil
	}
	return p.factor()
}

func (p *parser) factor() (*node, error) {
	tok := p.tok
	switch tok.kind {
	case tokNum:
		d, err := decimal.NewFromString(strings.ReplaceAll(tok.text, ",", "."))
		if err != nil {
			return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("bad number %q", tok.text)}
		}
		p.next()
		return &node{kind: numNode, num: d}, nil
	case tokIdent:
		p.next()
		return &node{kind: varNode, name: tok.text}, nil
	case tokLParen:
		p.next()
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, &ParseError{Pos: p.tok.pos, Msg: "missing closing parenthesis"}
		}
		p.next()
		return inner, nil
	case tokEOF:
		return nil, &ParseError{Pos: tok.pos, Msg: "unexpected end of formula"}
	}
	return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
