package parser

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// Statement parsing: SELECT cores, UNION ALL, select list, ORDER BY, LIMIT.
//
// Grammar:
//
//	statement     → select_core ("UNION" "ALL" select_core)*
//	                ["ORDER" "BY" order_list] ["LIMIT" expr ["OFFSET" expr]] [";"]
//	select_core   → SELECT [DISTINCT|ALL] select_list
//	                [FROM from_clause] [WHERE expr]
//	                [GROUP BY expr_list] [HAVING expr]
//	select_list   → select_item ("," select_item)*
//	select_item   → "*" | table "." "*" | expr [[AS] identifier]
//	order_list    → order_item ("," order_item)*
//	order_item    → expr [ASC|DESC] [NULLS (FIRST|LAST)]

// parseStatement parses a complete SQL statement.
func (p *Parser) parseStatement() *core.SelectStmt {
	stmt := &core.SelectStmt{}

	if p.check(token.EOF) {
		p.addError(ErrEmptyQuery)
		return stmt
	}

	stmt.Cores = append(stmt.Cores, p.parseSelectCore())
	for !p.failed() && p.check(token.UNION) {
		p.nextToken()
		if !p.match(token.ALL) {
			p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), "ALL (only UNION ALL is supported)"))
			return stmt
		}
		stmt.Cores = append(stmt.Cores, p.parseSelectCore())
	}

	if p.check(token.ORDER) {
		p.nextToken()
		p.expect(token.BY)
		stmt.OrderBy = p.parseOrderByList()
	}

	if p.match(token.LIMIT) {
		stmt.Limit = p.parseExpression()
		if p.match(token.OFFSET) {
			stmt.Offset = p.parseExpression()
		}
	} else if p.match(token.OFFSET) {
		stmt.Offset = p.parseExpression()
	}

	p.match(token.SEMI)
	if !p.failed() && !p.check(token.EOF) {
		p.addError(fmt.Sprintf(ErrUnexpectedInput, describe(p.token)))
	}

	return stmt
}

// parseSelectCore parses SELECT ... [FROM ...] [WHERE ...] [GROUP BY ...] [HAVING ...].
func (p *Parser) parseSelectCore() *core.SelectCore {
	sc := &core.SelectCore{SelectPos: p.token.Pos}
	if !p.expect(token.SELECT) {
		return sc
	}

	if p.match(token.DISTINCT) {
		sc.Distinct = true
	} else {
		p.match(token.ALL)
	}

	sc.Columns = p.parseSelectList()

	if p.match(token.FROM) {
		sc.From = p.parseFromClause()
	}

	if p.match(token.WHERE) {
		sc.Where = p.parseExpression()
	}

	if p.check(token.GROUP) {
		p.nextToken()
		p.expect(token.BY)
		sc.GroupBy = p.parseExpressionList()
	}

	if p.match(token.HAVING) {
		sc.Having = p.parseExpression()
	}

	return sc
}

// parseSelectList parses the comma-separated select list.
func (p *Parser) parseSelectList() []core.SelectItem {
	var items []core.SelectItem
	for {
		items = append(items, p.parseSelectItem())
		if p.failed() || !p.match(token.COMMA) {
			break
		}
	}
	return items
}

// parseSelectItem parses a single select item.
func (p *Parser) parseSelectItem() core.SelectItem {
	item := core.SelectItem{}

	// Check for *
	if p.match(token.STAR) {
		item.Star = true
		return item
	}

	// Check for table.*
	if p.check(token.IDENT) && p.checkPeek(token.DOT) && p.peek2.Type == token.STAR {
		item.TableStar = p.token.Literal
		p.nextToken() // table
		p.nextToken() // .
		p.nextToken() // *
		return item
	}

	item.Expr = p.parseExpression()

	// Optional alias
	if p.match(token.AS) {
		switch {
		case p.check(token.IDENT), p.check(token.STRING):
			item.Alias = p.token.Literal
			p.nextToken()
		default:
			p.addError(fmt.Sprintf(ErrExpectedIdentifier, describe(p.token)))
		}
	} else if p.check(token.IDENT) {
		item.Alias = p.token.Literal
		p.nextToken()
	}

	return item
}

// parseOrderByList parses ORDER BY items.
func (p *Parser) parseOrderByList() []core.OrderByItem {
	var items []core.OrderByItem
	for {
		items = append(items, p.parseOrderByItem())
		if p.failed() || !p.match(token.COMMA) {
			break
		}
	}
	return items
}

// parseOrderByItem parses a single ORDER BY item.
func (p *Parser) parseOrderByItem() core.OrderByItem {
	item := core.OrderByItem{
		Expr: p.parseExpression(),
	}

	if p.match(token.DESC) {
		item.Desc = true
	} else {
		p.match(token.ASC)
	}

	// NULLS FIRST / NULLS LAST (FIRST and LAST are plain identifiers)
	if p.match(token.NULLS) {
		switch {
		case p.check(token.IDENT) && strings.EqualFold(p.token.Literal, "FIRST"):
			first := true
			item.NullsFirst = &first
			p.nextToken()
		case p.check(token.IDENT) && strings.EqualFold(p.token.Literal, "LAST"):
			last := false
			item.NullsFirst = &last
			p.nextToken()
		default:
			p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), "FIRST or LAST"))
		}
	}

	return item
}

// parseExpressionList parses a comma-separated list of expressions.
func (p *Parser) parseExpressionList() []core.Expr {
	var exprs []core.Expr
	for {
		exprs = append(exprs, p.parseExpression())
		if p.failed() || !p.match(token.COMMA) {
			break
		}
	}
	return exprs
}
