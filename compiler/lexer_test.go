package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) 42 foo 'bar $baz ^qux`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenInteger, "42"},
		{TokenIdentifier, "foo"},
		{TokenQuote, "bar"},
		{TokenQuotePop, "baz"},
		{TokenQuotePush, "qux"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerIdentifiers(t *testing.T) {
	tests := []string{"x", "foo_bar", "_private", "A1", "inc", "force", "cswap"}

	for _, input := range tests {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenIdentifier {
			t.Errorf("%q: type = %v, want IDENTIFIER", input, tok.Type)
		}
		if tok.Literal != input {
			t.Errorf("%q: literal = %q", input, tok.Literal)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	tokens := Tokenize("ab 'cd\n  (x)")

	tests := []struct {
		idx   int
		start Position
		end   Position
	}{
		{0, Position{0, 1, 1}, Position{2, 1, 3}},   // ab
		{1, Position{3, 1, 4}, Position{6, 1, 7}},   // 'cd
		{2, Position{9, 2, 3}, Position{10, 2, 4}},  // (
		{3, Position{10, 2, 4}, Position{11, 2, 5}}, // x
		{4, Position{11, 2, 5}, Position{12, 2, 6}}, // )
	}

	for _, tc := range tests {
		tok := tokens[tc.idx]
		if tok.Pos != tc.start {
			t.Errorf("token[%d] %s start = %+v, want %+v", tc.idx, tok, tok.Pos, tc.start)
		}
		if tok.End != tc.end {
			t.Errorf("token[%d] %s end = %+v, want %+v", tc.idx, tok, tok.End, tc.end)
		}
	}
}

func TestLexerComments(t *testing.T) {
	input := "# leading comment\nfoo # trailing\n# last"
	tokens := Tokenize(input)

	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2: %v", len(tokens), tokens)
	}
	if tokens[0].Type != TokenIdentifier || tokens[0].Literal != "foo" {
		t.Errorf("tokens[0] = %v, want IDENTIFIER(foo)", tokens[0])
	}
	if tokens[0].Pos.Line != 2 {
		t.Errorf("foo line = %d, want 2", tokens[0].Pos.Line)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"'", "expected identifier after '''"},
		{"$1", "expected identifier after '$'"},
		{"^ x", "expected identifier after '^'"},
		{"@", "unexpected character '@'"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("%q: type = %v, want ERROR", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("%q: message = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerAdjacentTokens(t *testing.T) {
	tokens := Tokenize("(^x)force")
	want := []TokenType{TokenLParen, TokenQuotePush, TokenRParen, TokenIdentifier, TokenEOF}

	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("tokens[%d] = %v, want %v", i, tokens[i].Type, typ)
		}
	}
}
