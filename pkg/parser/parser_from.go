package parser

import (
	"fmt"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// FROM clause parsing: table references and joins.
//
// Grammar:
//
//	from_clause  → table_ref (join)*
//	table_ref    → identifier [[AS] identifier]
//	join         → "," table_ref
//	             | [INNER | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS] JOIN table_ref
//	               [ON expr | USING "(" column_list ")"]

// parseFromClause parses the FROM clause.
func (p *Parser) parseFromClause() *core.FromClause {
	from := &core.FromClause{}
	from.Source = p.parseTableRef()
	if from.Source == nil {
		return from
	}

	for !p.failed() {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}

	return from
}

// parseTableRef parses a table name with an optional alias.
func (p *Parser) parseTableRef() *core.TableName {
	if p.check(token.LPAREN) {
		p.addError("derived tables are not supported")
		return nil
	}
	if !p.check(token.IDENT) {
		p.addError(fmt.Sprintf(ErrExpectedIdentifier, describe(p.token)))
		return nil
	}

	tbl := &core.TableName{Name: p.token.Literal, NamePos: p.token.Pos}
	p.nextToken()

	if p.match(token.AS) {
		if !p.check(token.IDENT) {
			p.addError(fmt.Sprintf(ErrExpectedIdentifier, describe(p.token)))
			return nil
		}
		tbl.Alias = p.token.Literal
		p.nextToken()
	} else if p.check(token.IDENT) {
		tbl.Alias = p.token.Literal
		p.nextToken()
	}

	return tbl
}

// parseJoin parses a JOIN clause. Returns nil when the current token does not
// start a join.
func (p *Parser) parseJoin() *core.Join {
	join := &core.Join{}

	// Comma join (implicit cross join)
	if p.match(token.COMMA) {
		join.Type = core.JoinCross
		join.Right = p.parseTableRef()
		return join
	}

	switch p.token.Type {
	case token.JOIN:
		join.Type = core.JoinInner
	case token.INNER:
		join.Type = core.JoinInner
		p.nextToken()
	case token.LEFT:
		join.Type = core.JoinLeft
		p.nextToken()
		p.match(token.OUTER)
	case token.RIGHT:
		join.Type = core.JoinRight
		p.nextToken()
		p.match(token.OUTER)
	case token.FULL:
		join.Type = core.JoinFull
		p.nextToken()
		p.match(token.OUTER)
	case token.CROSS:
		join.Type = core.JoinCross
		p.nextToken()
	default:
		return nil
	}

	if !p.expect(token.JOIN) {
		return nil
	}

	join.Right = p.parseTableRef()
	if join.Right == nil {
		return nil
	}

	if join.Type == core.JoinCross {
		return join
	}

	switch {
	case p.match(token.ON):
		join.Condition = p.parseExpression()
	case p.match(token.USING):
		join.Using = p.parseUsingColumns()
	default:
		p.addError(fmt.Sprintf(ErrUnexpectedToken, describe(p.token), "ON or USING"))
		return nil
	}
	return join
}

// parseUsingColumns parses the column list in USING (col1, col2, ...).
func (p *Parser) parseUsingColumns() []string {
	p.expect(token.LPAREN)
	var cols []string
	for {
		if !p.check(token.IDENT) {
			p.addError("expected column name in USING clause")
			break
		}
		cols = append(cols, p.token.Literal)
		p.nextToken()
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)
	return cols
}
