package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the frospy lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenIdentifier // foo, inc, force

	// Prefixed identifiers
	TokenQuote     // 'foo
	TokenQuotePop  // $foo
	TokenQuotePush // ^foo

	// Delimiters
	TokenLParen // (
	TokenRParen // )
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenIdentifier: "IDENTIFIER",
	TokenQuote:      "QUOTE",
	TokenQuotePop:   "QUOTE_POP",
	TokenQuotePush:  "QUOTE_PUSH",
	TokenLParen:     "(",
	TokenRParen:     ")",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
//
// For prefixed identifiers Literal holds the bare name (without the
// prefix character); the span still covers the prefix.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position // start position
	End     Position // position just past the last character
}

// Span returns the source range covered by the token.
func (t Token) Span() Span {
	return Span{Start: t.Pos, End: t.End}
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Surface keywords recognized by Lower. They are ordinary identifiers to
// the lexer and parser.
const (
	KeywordQuote = "quote"
	KeywordPush  = "push"
	KeywordPop   = "pop"
	KeywordForce = "force"
)
