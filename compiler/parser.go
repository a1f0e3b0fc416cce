package compiler

import (
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for frospy syntax
// ---------------------------------------------------------------------------

// Parser parses frospy source code into an expression tree.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    ErrorList
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors.Add(p.curToken.Span(), format, args...)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() ErrorList {
	return p.errors
}

// Parse parses a whole source text. On failure the returned error is an
// ErrorList holding every syntax error found.
func Parse(input string) ([]Expr, error) {
	p := NewParser(input)
	exprs := p.ParseProgram()
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	return exprs, nil
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses expressions until EOF. Stray closing parens are
// reported and skipped so that later errors are still found.
func (p *Parser) ParseProgram() []Expr {
	var exprs []Expr
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenRParen) {
			p.errorf("unmatched ')'")
			p.nextToken()
			continue
		}
		exprs = append(exprs, p.parseExpr()...)
	}
	return exprs
}

// parseExpr parses one token's worth of expressions. Prefix sugar expands
// to more than one expression.
func (p *Parser) parseExpr() []Expr {
	tok := p.curToken
	span := tok.Span()

	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.errors.Add(span, "integer literal out of range: %s", tok.Literal)
			return nil
		}
		return []Expr{&IntLiteral{SpanVal: span, Value: v}}

	case TokenIdentifier:
		p.nextToken()
		return []Expr{&Atom{SpanVal: span, Name: tok.Literal}}

	case TokenQuote:
		p.nextToken()
		return []Expr{
			&Atom{SpanVal: span, Name: KeywordQuote},
			&Atom{SpanVal: span, Name: tok.Literal},
		}

	case TokenQuotePop:
		p.nextToken()
		return []Expr{
			&Atom{SpanVal: span, Name: KeywordQuote},
			&Atom{SpanVal: span, Name: tok.Literal},
			&Atom{SpanVal: span, Name: KeywordPop},
		}

	case TokenQuotePush:
		p.nextToken()
		return []Expr{
			&Atom{SpanVal: span, Name: KeywordQuote},
			&Atom{SpanVal: span, Name: tok.Literal},
			&Atom{SpanVal: span, Name: KeywordPush},
		}

	case TokenLParen:
		return []Expr{p.parseGroup()}

	case TokenError:
		p.errorf("%s", tok.Literal)
		p.nextToken()
		return nil
	}

	p.errorf("unexpected token: %s", tok.Type)
	p.nextToken()
	return nil
}

// parseGroup parses ( expr* ).
func (p *Parser) parseGroup() Expr {
	open := p.curToken
	p.nextToken() // consume (

	var body []Expr
	for !p.curTokenIs(TokenRParen) {
		if p.curTokenIs(TokenEOF) {
			p.errors.Add(open.Span(), "unclosed '('")
			return &Group{SpanVal: Combine(open.Span(), p.curToken.Span()), Body: body}
		}
		body = append(body, p.parseExpr()...)
	}

	rparen := p.curToken
	p.nextToken() // consume )
	return &Group{SpanVal: Combine(open.Span(), rparen.Span()), Body: body}
}
