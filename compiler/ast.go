package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: source expression tree
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// NoSpan is used for synthesized nodes that have no source text.
var NoSpan = Span{}

// IsZero reports whether the span is the synthesized NoSpan.
func (s Span) IsZero() bool {
	return s == NoSpan
}

// Contains reports whether the byte offset lies inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start.Offset && offset < s.End.Offset
}

// Combine returns the span from the start of a to the end of b.
func Combine(a, b Span) Span {
	return Span{Start: a.Start, End: b.End}
}

func (s Span) String() string {
	if s.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is a source expression: an integer, an atom, or a group.
type Expr interface {
	Node
	String() string
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span     { return n.SpanVal }
func (n *IntLiteral) node()          {}
func (n *IntLiteral) expr()          {}
func (n *IntLiteral) String() string { return fmt.Sprintf("%d", n.Value) }

// Atom represents a bare name. The parser's prefix sugar also produces
// atoms (quote, push, pop) that carry the span of the whole prefixed token.
type Atom struct {
	SpanVal Span
	Name    string
}

func (n *Atom) Span() Span     { return n.SpanVal }
func (n *Atom) node()          {}
func (n *Atom) expr()          {}
func (n *Atom) String() string { return n.Name }

// Group represents a parenthesized sequence: a deferred computation.
type Group struct {
	SpanVal Span
	Body    []Expr
}

func (n *Group) Span() Span { return n.SpanVal }
func (n *Group) node()      {}
func (n *Group) expr()      {}

func (n *Group) String() string {
	var b strings.Builder
	b.WriteString("( ")
	for _, e := range n.Body {
		b.WriteString(e.String())
		b.WriteByte(' ')
	}
	b.WriteString(")")
	return b.String()
}

// FormatExprs renders a sequence of expressions separated by spaces.
func FormatExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}
