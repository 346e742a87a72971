package parser

import (
	"fmt"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// Expression precedence parsing using a Pratt parser.
//
// Precedence levels:
//
//	PrecedenceNone       = 0
//	PrecedenceOr         = 1
//	PrecedenceAnd        = 2
//	PrecedenceNot        = 3
//	PrecedenceComparison = 4  (=, !=, <, >, <=, >=, IS, IN, BETWEEN, LIKE)
//	PrecedenceAddition   = 5  (+, -, ||)
//	PrecedenceMultiply   = 6  (*, /, %)
//	PrecedenceUnary      = 7  (-, +)

// Operator precedence levels.
const (
	PrecedenceNone = iota
	PrecedenceOr
	PrecedenceAnd
	PrecedenceNot
	PrecedenceComparison
	PrecedenceAddition
	PrecedenceMultiply
	PrecedenceUnary
)

// Precedence returns the infix precedence of t, or PrecedenceNone if t is
// not an infix operator.
func Precedence(t token.TokenType) int {
	switch t {
	case token.OR:
		return PrecedenceOr
	case token.AND:
		return PrecedenceAnd
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE,
		token.IS, token.IN, token.BETWEEN, token.LIKE:
		return PrecedenceComparison
	case token.NOT:
		// NOT as infix (NOT IN, NOT BETWEEN, NOT LIKE)
		return PrecedenceComparison
	case token.PLUS, token.MINUS, token.DPIPE:
		return PrecedenceAddition
	case token.STAR, token.SLASH, token.PERCENT:
		return PrecedenceMultiply
	default:
		return PrecedenceNone
	}
}

// parseExpression parses an expression using precedence climbing.
func (p *Parser) parseExpression() core.Expr {
	return p.parseExpressionWithPrecedence(PrecedenceNone + 1)
}

// parseExpressionWithPrecedence implements Pratt parsing.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) core.Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for !p.failed() {
		prec := Precedence(p.token.Type)
		if prec == PrecedenceNone || prec < minPrecedence {
			break
		}
		// NOT only continues an expression as NOT IN / NOT BETWEEN / NOT LIKE
		if p.check(token.NOT) && !p.checkPeek(token.IN) && !p.checkPeek(token.BETWEEN) && !p.checkPeek(token.LIKE) {
			break
		}

		left = p.parseInfixExpr(left, prec)
		if left == nil {
			break
		}
	}

	return left
}

// parsePrefixExpr parses prefix expressions (unary operators and primary expressions).
func (p *Parser) parsePrefixExpr() core.Expr {
	pos := p.token.Pos
	switch p.token.Type {
	case token.NOT:
		p.nextToken()
		expr := p.parseExpressionWithPrecedence(PrecedenceNot)
		if expr == nil {
			return nil
		}
		return &core.UnaryExpr{Op: token.NOT, Expr: expr, OpPos: pos}

	case token.MINUS, token.PLUS:
		op := p.token.Type
		p.nextToken()
		expr := p.parseExpressionWithPrecedence(PrecedenceUnary)
		if expr == nil {
			return nil
		}
		return &core.UnaryExpr{Op: op, Expr: expr, OpPos: pos}

	default:
		return p.parsePrimary()
	}
}

// parseInfixExpr parses an infix expression given the left operand and current precedence.
func (p *Parser) parseInfixExpr(left core.Expr, prec int) core.Expr {
	switch p.token.Type {
	case token.NOT:
		return p.parseNotInfixExpr(left)

	case token.IS:
		return p.parseIsExpr(left)

	case token.IN:
		p.nextToken()
		return p.parseInExpr(left, false)

	case token.BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, false)

	case token.LIKE:
		p.nextToken()
		return p.parseLikeExpr(left, false)
	}

	// Standard binary operators
	op := p.token
	p.nextToken()

	// Parse right operand with higher precedence (left-associative)
	right := p.parseExpressionWithPrecedence(prec + 1)
	if right == nil {
		return nil
	}

	return &core.BinaryExpr{Left: left, Op: op.Type, Right: right}
}

// parseNotInfixExpr handles NOT as an infix modifier (NOT IN, NOT BETWEEN, NOT LIKE).
func (p *Parser) parseNotInfixExpr(left core.Expr) core.Expr {
	p.nextToken() // consume NOT

	switch p.token.Type {
	case token.IN:
		p.nextToken()
		return p.parseInExpr(left, true)

	case token.BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, true)

	case token.LIKE:
		p.nextToken()
		return p.parseLikeExpr(left, true)
	}

	p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), "IN, BETWEEN or LIKE after NOT"))
	return nil
}

// parseIsExpr parses IS [NOT] NULL.
func (p *Parser) parseIsExpr(left core.Expr) core.Expr {
	p.nextToken() // consume IS

	not := p.match(token.NOT)

	if !p.expect(token.NULL) {
		return nil
	}
	return &core.IsNullExpr{Expr: left, Not: not}
}

// parseInExpr parses IN (value, ...).
func (p *Parser) parseInExpr(left core.Expr, not bool) core.Expr {
	if !p.expect(token.LPAREN) {
		return nil
	}

	in := &core.InExpr{Expr: left, Not: not}
	if p.check(token.SELECT) {
		p.addError("IN (subquery) is not supported")
		return nil
	}
	in.Values = p.parseExpressionList()

	if !p.expect(token.RPAREN) {
		return nil
	}
	return in
}

// parseBetweenExpr parses BETWEEN low AND high.
func (p *Parser) parseBetweenExpr(left core.Expr, not bool) core.Expr {
	// Bounds bind tighter than AND so the separating AND is not consumed.
	low := p.parseExpressionWithPrecedence(PrecedenceAddition)
	if low == nil {
		return nil
	}
	if !p.expect(token.AND) {
		return nil
	}
	high := p.parseExpressionWithPrecedence(PrecedenceAddition)
	if high == nil {
		return nil
	}
	return &core.BetweenExpr{Expr: left, Not: not, Low: low, High: high}
}

// parseLikeExpr parses LIKE pattern.
func (p *Parser) parseLikeExpr(left core.Expr, not bool) core.Expr {
	pattern := p.parseExpressionWithPrecedence(PrecedenceAddition)
	if pattern == nil {
		return nil
	}
	return &core.LikeExpr{Expr: left, Not: not, Pattern: pattern}
}
