package compiler

import (
	"errors"
	"strings"
	"testing"
)

func mustTransform(t *testing.T, src string) []CPSExpr {
	t.Helper()
	exprs, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	cps, err := Transform(exprs, &NameGen{})
	if err != nil {
		t.Fatalf("Transform(%q): %v", src, err)
	}
	return cps
}

func TestLower(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 2", "1 2"},
		{"'x", "'x"},
		{"quote 5", "5"},
		{"push pop force", "push pop force"},
		{"inc", "'inc push force"},
		{"$x", "'x pop"},
		{"^x", "'x push"},
		{"(inc)", "( 'inc push force )"},
		{"'quote", "'quote"},
	}

	for _, tc := range tests {
		exprs, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.input, err)
		}
		lowered, err := Lower(exprs)
		if err != nil {
			t.Errorf("Lower(%q) error: %v", tc.input, err)
			continue
		}
		if got := FormatCPS(lowered); got != tc.want {
			t.Errorf("Lower(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestLowerQuoteSpan(t *testing.T) {
	exprs, err := Parse("quote   x")
	if err != nil {
		t.Fatal(err)
	}
	lowered, err := Lower(exprs)
	if err != nil {
		t.Fatal(err)
	}
	span := lowered[0].Span()
	if span.Start.Offset != 0 || span.End.Offset != 9 {
		t.Errorf("quoted literal span = %v, want offsets 0-9", span)
	}
}

func TestLowerMalformedQuote(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		offset int
	}{
		{"1 quote", "quote with nothing to quote", 2},
		{"quote (a)", "cannot quote a group", 0},
		{"(x quote)", "quote with nothing to quote", 3},
	}

	for _, tc := range tests {
		exprs, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.input, err)
		}
		_, err = Transform(exprs, &NameGen{})
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Transform(%q) error = %v, want *SyntaxError", tc.input, err)
			continue
		}
		if !strings.Contains(se.Msg, tc.want) {
			t.Errorf("Transform(%q) message = %q, want %q", tc.input, se.Msg, tc.want)
		}
		if se.Span.Start.Offset != tc.offset {
			t.Errorf("Transform(%q) offset = %d, want %d", tc.input, se.Span.Start.Offset, tc.offset)
		}
	}
}

func TestTransformShapes(t *testing.T) {
	tests := []struct {
		desc  string
		input string
		want  string
	}{
		{
			"no force: bare",
			"1 2",
			"1 2 ( terminate ) forceCCbare",
		},
		{
			"tail force passes the continuation",
			"1 inc",
			"1 'inc push ( terminate ) forceCC",
		},
		{
			"non-tail force reifies the rest",
			"f g",
			"'f push ( 'g push ( terminate ) forceCC ) forceCC",
		},
		{
			"group binds its continuation",
			"(2)",
			"( 'cc#1 pop 2 'cc#1 push forceCCbare ) ( terminate ) forceCCbare",
		},
		{
			"tail call inside a group",
			"(2 inc)",
			"( 'cc#1 pop 2 'inc push 'cc#1 push forceCC ) ( terminate ) forceCCbare",
		},
		{
			"non-tail call inside a group",
			"(a b)",
			"( 'cc#1 pop 'a push ( 'b push 'cc#1 push forceCC ) forceCC ) ( terminate ) forceCCbare",
		},
		{
			"nested groups get distinct continuations",
			"((1))",
			"( 'cc#1 pop ( 'cc#2 pop 1 'cc#2 push forceCCbare ) 'cc#1 push forceCCbare ) ( terminate ) forceCCbare",
		},
		{
			"explicit force",
			"(1) force 2",
			"( 'cc#1 pop 1 'cc#1 push forceCCbare ) ( 2 ( terminate ) forceCCbare ) forceCC",
		},
	}

	for _, tc := range tests {
		got := FormatCPS(mustTransform(t, tc.input))
		if got != tc.want {
			t.Errorf("%s: Transform(%q)\n got: %s\nwant: %s", tc.desc, tc.input, got, tc.want)
		}
	}
}

func TestTransformTailCallDoesNotWrapContinuation(t *testing.T) {
	// A self-recursive loop: the recursive call is in tail position, so the
	// group must not allocate a fresh continuation group for it.
	cps := mustTransform(t, "(^loop force) $loop")
	g := cps[0].(*CPSGroup)
	for _, e := range g.Body {
		if _, ok := e.(*CPSGroup); ok {
			t.Fatalf("tail call allocated a continuation group: %s", g)
		}
	}
	if _, ok := g.Body[len(g.Body)-1].(*CPSForceCC); !ok {
		t.Errorf("group does not end in forceCC: %s", g)
	}
}

func TestTransformNoForceRemains(t *testing.T) {
	cps := mustTransform(t, "(a (b c) force d) $x x x")

	var walk func([]CPSExpr)
	walk = func(es []CPSExpr) {
		for _, e := range es {
			switch e := e.(type) {
			case *CPSForce:
				t.Errorf("CPSForce left at %v", e.Span())
			case *CPSGroup:
				walk(e.Body)
			}
		}
	}
	walk(cps)
}

func TestNameGen(t *testing.T) {
	var g NameGen
	if got := g.Block(); got != "b1" {
		t.Errorf("first block = %q, want b1", got)
	}
	if got := g.Continuation(); got != "cc#1" {
		t.Errorf("first continuation = %q, want cc#1", got)
	}
	if got := g.Block(); got != "b2" {
		t.Errorf("second block = %q, want b2", got)
	}
}
