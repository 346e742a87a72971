package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// Primary expression parsing: literals, column references, function calls,
// CASE, CAST and parenthesized expressions.
//
// Grammar:
//
//	primary     → NUMBER | STRING | TRUE | FALSE | NULL
//	            | case_expr | cast_expr
//	            | identifier "(" [DISTINCT] ["*" | expr_list] ")"
//	            | identifier ["." identifier]
//	            | "(" expr ")"
//	case_expr   → CASE [expr] (WHEN expr THEN expr)+ [ELSE expr] END
//	cast_expr   → CAST "(" expr AS type_name ")"

func (p *Parser) parsePrimary() core.Expr {
	pos := p.token.Pos
	switch p.token.Type {
	case token.NUMBER:
		lit := &core.Literal{Type: core.LiteralNumber, Value: p.token.Literal, ValuePos: pos}
		p.nextToken()
		return lit

	case token.STRING:
		lit := &core.Literal{Type: core.LiteralString, Value: p.token.Literal, ValuePos: pos}
		p.nextToken()
		return lit

	case token.TRUE:
		p.nextToken()
		return &core.Literal{Type: core.LiteralBool, Value: "true", ValuePos: pos}

	case token.FALSE:
		p.nextToken()
		return &core.Literal{Type: core.LiteralBool, Value: "false", ValuePos: pos}

	case token.NULL:
		p.nextToken()
		return &core.Literal{Type: core.LiteralNull, Value: "NULL", ValuePos: pos}

	case token.CASE:
		return p.parseCaseExpr()

	case token.CAST:
		return p.parseCastExpr()

	case token.IDENT:
		if p.checkPeek(token.LPAREN) {
			return p.parseFuncCall()
		}
		return p.parseColumnRef()

	case token.LPAREN:
		p.nextToken()
		if p.check(token.SELECT) {
			p.addError("subqueries are not supported")
			return nil
		}
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		return &core.ParenExpr{Expr: expr}
	}

	if !p.failed() {
		p.addError(fmt.Sprintf(ErrExpectedExpression, describe(p.token)))
	}
	return nil
}

// parseColumnRef parses column or table.column.
func (p *Parser) parseColumnRef() core.Expr {
	ref := &core.ColumnRef{Column: p.token.Literal, NamePos: p.token.Pos}
	p.nextToken()

	if p.match(token.DOT) {
		if !p.check(token.IDENT) {
			p.addError(fmt.Sprintf(ErrExpectedIdentifier, describe(p.token)))
			return nil
		}
		ref.Table = ref.Column
		ref.Column = p.token.Literal
		p.nextToken()
	}
	return ref
}

// parseFuncCall parses name(args).
func (p *Parser) parseFuncCall() core.Expr {
	fn := &core.FuncCall{Name: p.token.Literal, NamePos: p.token.Pos}
	p.nextToken() // name
	p.nextToken() // (

	if p.match(token.RPAREN) {
		return fn
	}

	if p.match(token.STAR) {
		fn.Star = true
		if !p.expect(token.RPAREN) {
			return nil
		}
		return fn
	}

	if p.match(token.DISTINCT) {
		fn.Distinct = true
	}

	fn.Args = p.parseExpressionList()
	if !p.expect(token.RPAREN) {
		return nil
	}
	return fn
}

// parseCaseExpr parses CASE [operand] WHEN ... THEN ... [ELSE ...] END.
func (p *Parser) parseCaseExpr() core.Expr {
	c := &core.CaseExpr{CasePos: p.token.Pos}
	p.nextToken() // CASE

	if !p.check(token.WHEN) {
		c.Operand = p.parseExpression()
	}

	for p.match(token.WHEN) {
		cond := p.parseExpression()
		if !p.expect(token.THEN) {
			return nil
		}
		result := p.parseExpression()
		c.Whens = append(c.Whens, &core.WhenClause{Condition: cond, Result: result})
	}

	if len(c.Whens) == 0 {
		p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), "WHEN"))
		return nil
	}

	if p.match(token.ELSE) {
		c.Else = p.parseExpression()
	}

	if !p.expect(token.END) {
		return nil
	}
	return c
}

// parseCastExpr parses CAST(expr AS type).
func (p *Parser) parseCastExpr() core.Expr {
	c := &core.CastExpr{CastPos: p.token.Pos}
	p.nextToken() // CAST

	if !p.expect(token.LPAREN) {
		return nil
	}
	c.Expr = p.parseExpression()
	if !p.expect(token.AS) {
		return nil
	}
	c.TypeName = p.parseTypeName()
	if !p.expect(token.RPAREN) {
		return nil
	}
	return c
}

// parseTypeName parses a type name such as INTEGER, DOUBLE PRECISION or
// VARCHAR(20).
func (p *Parser) parseTypeName() string {
	var parts []string
	for p.check(token.IDENT) {
		parts = append(parts, strings.ToUpper(p.token.Literal))
		p.nextToken()
	}
	if len(parts) == 0 {
		p.addError(fmt.Sprintf(ErrExpectedIdentifier, describe(p.token)))
		return ""
	}
	name := strings.Join(parts, " ")

	if p.match(token.LPAREN) {
		var params []string
		for p.check(token.NUMBER) {
			params = append(params, p.token.Literal)
			p.nextToken()
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RPAREN)
		name += "(" + strings.Join(params, ",") + ")"
	}
	return name
}
