// Package parser provides SQL parsing for the SELECT subset compiled by flowsql.
//
// # Usage
//
//	stmt, err := parser.Parse("SELECT a, b FROM PCOLLECTION WHERE a > 1")
//	if err != nil {
//	    // *parser.ParseError with line and column
//	}
//
// # Grammar Overview
//
// The parser implements a recursive descent parser with Pratt-style
// expression parsing:
//
//	statement     → select_core (UNION ALL select_core)* [ORDER BY order_list]
//	                [LIMIT expr [OFFSET expr]] [";"]
//	select_core   → SELECT [DISTINCT|ALL] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//
// See each file for detailed grammar rules for that section.
package parser

import (
	"fmt"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// Parser parses SQL into an AST.
type Parser struct {
	lexer  *Lexer
	token  token.Token // current token
	peek   token.Token // lookahead token
	peek2  token.Token // second lookahead token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{
		lexer: NewLexer(sql),
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single SELECT statement and returns the AST.
// The first error encountered is returned.
func Parse(sql string) (*core.SelectStmt, error) {
	p := NewParser(sql)
	stmt := p.parseStatement()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return stmt, nil
}

// Errors returns all errors collected so far.
func (p *Parser) Errors() []error {
	return p.errors
}

// ---------- Token Helpers ----------

// nextToken advances to the next token. ILLEGAL tokens are reported once,
// when they become the current token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
	if p.token.Type == token.ILLEGAL {
		msg := p.token.Literal
		if msg != ErrUnterminatedString && msg != ErrUnterminatedIdentifier {
			msg = fmt.Sprintf(ErrIllegalCharacter, p.token.Literal)
		}
		p.addError(msg)
	}
}

func (p *Parser) check(t token.TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) checkPeek(t token.TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), t))
	return false
}

// addError adds a parse error at the current token.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// describe renders a token for error messages.
func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.IDENT, token.NUMBER:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	case token.STRING:
		return fmt.Sprintf("string %q", tok.Literal)
	default:
		return tok.Type.String()
	}
}

// isClauseKeyword returns true if the token ends a select list or expression
// list and starts a new clause.
func isClauseKeyword(t token.TokenType) bool {
	switch t {
	case token.FROM, token.WHERE, token.GROUP, token.HAVING, token.ORDER,
		token.LIMIT, token.OFFSET, token.UNION,
		token.JOIN, token.LEFT, token.RIGHT, token.INNER, token.FULL,
		token.CROSS, token.ON, token.USING:
		return true
	}
	return false
}
