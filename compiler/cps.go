package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// CPS expression form
// ---------------------------------------------------------------------------

// CPSExpr is an expression in continuation-passing form. Lower produces
// CPSForce; Transform replaces every CPSForce with CPSForceCC and closes
// every sequence with a ForceCC, ForceCCBare or (via the top-level
// continuation) Terminate.
type CPSExpr interface {
	Span() Span
	String() string
	cpsExpr() // marker method
}

// CPSInt pushes an integer.
type CPSInt struct {
	SpanVal Span
	Value   int64
}

// CPSAtom pushes an atom literal.
type CPSAtom struct {
	SpanVal Span
	Name    string
}

// CPSGroup pushes a closure over its body, capturing the current environment.
type CPSGroup struct {
	SpanVal Span
	Body    []CPSExpr
}

// CPSForce applies the value on top of the stack. Only present before
// Transform.
type CPSForce struct{ SpanVal Span }

// CPSForceCC pops a continuation and a callee and transfers to the callee.
type CPSForceCC struct{ SpanVal Span }

// CPSForceCCBare pops a closure and transfers to it.
type CPSForceCCBare struct{ SpanVal Span }

// CPSTerminate halts the program.
type CPSTerminate struct{ SpanVal Span }

// CPSBind pops a name and a value and binds them (surface "pop").
type CPSBind struct{ SpanVal Span }

// CPSLookup pops a name and pushes its value (surface "push").
type CPSLookup struct{ SpanVal Span }

func (e *CPSInt) Span() Span         { return e.SpanVal }
func (e *CPSAtom) Span() Span        { return e.SpanVal }
func (e *CPSGroup) Span() Span       { return e.SpanVal }
func (e *CPSForce) Span() Span       { return e.SpanVal }
func (e *CPSForceCC) Span() Span     { return e.SpanVal }
func (e *CPSForceCCBare) Span() Span { return e.SpanVal }
func (e *CPSTerminate) Span() Span   { return e.SpanVal }
func (e *CPSBind) Span() Span        { return e.SpanVal }
func (e *CPSLookup) Span() Span      { return e.SpanVal }

func (e *CPSInt) cpsExpr()         {}
func (e *CPSAtom) cpsExpr()        {}
func (e *CPSGroup) cpsExpr()       {}
func (e *CPSForce) cpsExpr()       {}
func (e *CPSForceCC) cpsExpr()     {}
func (e *CPSForceCCBare) cpsExpr() {}
func (e *CPSTerminate) cpsExpr()   {}
func (e *CPSBind) cpsExpr()        {}
func (e *CPSLookup) cpsExpr()      {}

func (e *CPSInt) String() string         { return fmt.Sprintf("%d", e.Value) }
func (e *CPSAtom) String() string        { return "'" + e.Name }
func (e *CPSForce) String() string       { return "force" }
func (e *CPSForceCC) String() string     { return "forceCC" }
func (e *CPSForceCCBare) String() string { return "forceCCbare" }
func (e *CPSTerminate) String() string   { return "terminate" }
func (e *CPSBind) String() string        { return "pop" }
func (e *CPSLookup) String() string      { return "push" }

func (e *CPSGroup) String() string {
	var b strings.Builder
	b.WriteString("( ")
	for _, x := range e.Body {
		b.WriteString(x.String())
		b.WriteByte(' ')
	}
	b.WriteString(")")
	return b.String()
}

// FormatCPS renders a CPS sequence separated by spaces.
func FormatCPS(exprs []CPSExpr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Name generation
// ---------------------------------------------------------------------------

// NameGen hands out block and continuation names from monotonically
// increasing counters. Continuation names contain '#', which the lexer
// never accepts in an identifier, so they cannot capture user bindings.
//
// A NameGen may be shared across several compilations (the REPL does) to
// keep block names unique between them.
type NameGen struct {
	blocks int
	conts  int
}

// Block returns a fresh block name.
func (g *NameGen) Block() string {
	g.blocks++
	return fmt.Sprintf("b%d", g.blocks)
}

// Continuation returns a fresh continuation variable name.
func (g *NameGen) Continuation() string {
	g.conts++
	return fmt.Sprintf("cc#%d", g.conts)
}

// ---------------------------------------------------------------------------
// CPS transform
// ---------------------------------------------------------------------------

// Transform lowers a parsed program and converts it to CPS. The result is
// the body of the entry block: it runs under the synthetic continuation
// (terminate).
func Transform(exprs []Expr, gen *NameGen) ([]CPSExpr, error) {
	lowered, err := Lower(exprs)
	if err != nil {
		return nil, err
	}
	return TransformLowered(lowered, gen), nil
}

// TransformLowered converts an already lowered sequence to CPS.
func TransformLowered(lowered []CPSExpr, gen *NameGen) []CPSExpr {
	t := &transformer{gen: gen}
	halt := []CPSExpr{&CPSGroup{Body: []CPSExpr{&CPSTerminate{}}}}
	return t.sequence(lowered, halt)
}

type transformer struct {
	gen *NameGen
}

// sequence converts exprs under the continuation cont. cont is a short
// instruction sequence that leaves the continuation closure on the stack.
//
// Scanning stops at the first force: a force in tail position passes cont
// straight through, any other force reifies the rest of the sequence as a
// new continuation group.
func (t *transformer) sequence(exprs []CPSExpr, cont []CPSExpr) []CPSExpr {
	var out []CPSExpr

	for i, e := range exprs {
		switch e := e.(type) {
		case *CPSGroup:
			out = append(out, t.group(e))

		case *CPSForce:
			rest := exprs[i+1:]
			if len(rest) == 0 {
				out = append(out, cont...)
			} else {
				out = append(out, &CPSGroup{SpanVal: e.SpanVal, Body: t.sequence(rest, cont)})
			}
			return append(out, &CPSForceCC{SpanVal: e.SpanVal})

		default:
			out = append(out, e)
		}
	}

	out = append(out, cont...)
	return append(out, &CPSForceCCBare{})
}

// group converts a user group. The closure receives its continuation on
// the stack and binds it to a fresh name on entry.
func (t *transformer) group(g *CPSGroup) *CPSGroup {
	cc := t.gen.Continuation()

	body := []CPSExpr{&CPSAtom{Name: cc}, &CPSBind{}}
	cont := []CPSExpr{&CPSAtom{Name: cc}, &CPSLookup{}}
	body = append(body, t.sequence(g.Body, cont)...)

	return &CPSGroup{SpanVal: g.SpanVal, Body: body}
}
