package compiler

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for frospy syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes frospy source code.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at EOF
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// position returns the position of the current character.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.atEOF():
		return Token{Type: TokenEOF, Pos: pos, End: pos}

	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos, End: l.position()}

	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos, End: l.position()}

	case l.ch == '\'':
		return l.readPrefixed(pos, TokenQuote)

	case l.ch == '$':
		return l.readPrefixed(pos, TokenQuotePop)

	case l.ch == '^':
		return l.readPrefixed(pos, TokenQuotePush)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isIdentStart(l.ch):
		return l.readIdentifier(pos)
	}

	bad := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + quoteRune(bad), Pos: pos, End: l.position()}
}

// skipWhitespaceAndComments skips whitespace and # line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}

		if l.ch == '#' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		break
	}
}

// readPrefixed reads one of 'name, $name or ^name.
func (l *Lexer) readPrefixed(pos Position, typ TokenType) Token {
	prefix := l.ch
	l.readChar()
	if !isIdentStart(l.ch) {
		return Token{
			Type:    TokenError,
			Literal: "expected identifier after " + quoteRune(prefix),
			Pos:     pos,
			End:     l.position(),
		}
	}
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return Token{Type: typ, Literal: l.input[start:l.pos], Pos: pos, End: l.position()}
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos, End: l.position()}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return Token{Type: TokenIdentifier, Literal: l.input[start:l.pos], Pos: pos, End: l.position()}
}

// Helper functions

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}

func quoteRune(r rune) string {
	if r == 0 {
		return "EOF"
	}
	return "'" + string(r) + "'"
}

// Tokenize returns all tokens of input up to and including EOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens
}
