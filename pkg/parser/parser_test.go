package parser_test

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/parser"
	"github.com/leapstack-labs/flowsql/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectList(t *testing.T) {
	stmt, err := parser.Parse("SELECT c1, t.c2 AS x, c3 y, *, t.* FROM PCOLLECTION")
	require.NoError(t, err)
	require.Len(t, stmt.Cores, 1)

	cols := stmt.Cores[0].Columns
	require.Len(t, cols, 5)

	ref, ok := cols[0].Expr.(*core.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "c1", ref.Column)
	assert.Equal(t, token.Position{Line: 1, Column: 8, Offset: 7}, ref.Pos())

	ref, ok = cols[1].Expr.(*core.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "t", ref.Table)
	assert.Equal(t, "c2", ref.Column)
	assert.Equal(t, "x", cols[1].Alias)

	assert.Equal(t, "y", cols[2].Alias)
	assert.True(t, cols[3].Star)
	assert.Equal(t, "t", cols[4].TableStar)

	require.NotNil(t, stmt.Cores[0].From)
	assert.Equal(t, "PCOLLECTION", stmt.Cores[0].From.Source.Name)
}

func TestParseClauses(t *testing.T) {
	sql := `SELECT DISTINCT k, COUNT(*) AS n, SUM(DISTINCT v)
FROM events e
WHERE v > 10 AND k IS NOT NULL
GROUP BY k
HAVING COUNT(*) > 1
ORDER BY n DESC NULLS LAST, k
LIMIT 10 OFFSET 5;`

	stmt, err := parser.Parse(sql)
	require.NoError(t, err)

	sc := stmt.Cores[0]
	assert.True(t, sc.Distinct)
	assert.Equal(t, "e", sc.From.Source.Alias)
	assert.Equal(t, "e", sc.From.Source.EffectiveName())

	count, ok := sc.Columns[1].Expr.(*core.FuncCall)
	require.True(t, ok)
	assert.True(t, count.Star)
	assert.Equal(t, "COUNT", count.Name)

	sum, ok := sc.Columns[2].Expr.(*core.FuncCall)
	require.True(t, ok)
	assert.True(t, sum.Distinct)

	where, ok := sc.Where.(*core.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.AND, where.Op)
	isNull, ok := where.Right.(*core.IsNullExpr)
	require.True(t, ok)
	assert.True(t, isNull.Not)

	require.Len(t, sc.GroupBy, 1)
	require.NotNil(t, sc.Having)

	require.Len(t, stmt.OrderBy, 2)
	assert.True(t, stmt.OrderBy[0].Desc)
	require.NotNil(t, stmt.OrderBy[0].NullsFirst)
	assert.False(t, *stmt.OrderBy[0].NullsFirst)
	assert.False(t, stmt.OrderBy[1].Desc)

	require.NotNil(t, stmt.Limit)
	require.NotNil(t, stmt.Offset)
}

func TestParsePrecedence(t *testing.T) {
	stmt, err := parser.Parse("SELECT 1 + 2 * 3 FROM t")
	require.NoError(t, err)

	add, ok := stmt.Cores[0].Columns[0].Expr.(*core.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.PLUS, add.Op)
	mul, ok := add.Right.(*core.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.STAR, mul.Op)

	stmt, err = parser.Parse("SELECT a FROM t WHERE NOT a = 1 OR b = 2")
	require.NoError(t, err)
	or, ok := stmt.Cores[0].Where.(*core.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.OR, or.Op)
	not, ok := or.Left.(*core.UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.NOT, not.Op)
}

func TestParsePredicates(t *testing.T) {
	tests := []struct {
		name  string
		where string
		check func(t *testing.T, e core.Expr)
	}{
		{
			name:  "between",
			where: "a BETWEEN 1 AND 5 AND b = 2",
			check: func(t *testing.T, e core.Expr) {
				and, ok := e.(*core.BinaryExpr)
				require.True(t, ok)
				between, ok := and.Left.(*core.BetweenExpr)
				require.True(t, ok)
				assert.False(t, between.Not)
			},
		},
		{
			name:  "not in",
			where: "a NOT IN (1, 2, 3)",
			check: func(t *testing.T, e core.Expr) {
				in, ok := e.(*core.InExpr)
				require.True(t, ok)
				assert.True(t, in.Not)
				assert.Len(t, in.Values, 3)
			},
		},
		{
			name:  "like",
			where: "name LIKE 'a%'",
			check: func(t *testing.T, e core.Expr) {
				like, ok := e.(*core.LikeExpr)
				require.True(t, ok)
				lit, ok := like.Pattern.(*core.Literal)
				require.True(t, ok)
				assert.Equal(t, "a%", lit.Value)
			},
		},
		{
			name:  "case",
			where: "CASE WHEN a > 1 THEN true ELSE false END",
			check: func(t *testing.T, e core.Expr) {
				c, ok := e.(*core.CaseExpr)
				require.True(t, ok)
				assert.Nil(t, c.Operand)
				assert.Len(t, c.Whens, 1)
				assert.NotNil(t, c.Else)
			},
		},
		{
			name:  "cast",
			where: "CAST(a AS varchar(10)) = 'x'",
			check: func(t *testing.T, e core.Expr) {
				eq, ok := e.(*core.BinaryExpr)
				require.True(t, ok)
				c, ok := eq.Left.(*core.CastExpr)
				require.True(t, ok)
				assert.Equal(t, "VARCHAR(10)", c.TypeName)
			},
		},
		{
			name:  "escaped string",
			where: "s = 'it''s'",
			check: func(t *testing.T, e core.Expr) {
				eq, ok := e.(*core.BinaryExpr)
				require.True(t, ok)
				lit, ok := eq.Right.(*core.Literal)
				require.True(t, ok)
				assert.Equal(t, "it's", lit.Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := parser.Parse("SELECT a FROM t WHERE " + tt.where)
			require.NoError(t, err)
			tt.check(t, stmt.Cores[0].Where)
		})
	}
}

func TestParseJoins(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		wantType core.JoinType
		using    []string
	}{
		{"inner", "SELECT * FROM a JOIN b ON a.id = b.id", core.JoinInner, nil},
		{"explicit inner", "SELECT * FROM a INNER JOIN b ON a.id = b.id", core.JoinInner, nil},
		{"left outer", "SELECT * FROM a LEFT OUTER JOIN b ON a.id = b.id", core.JoinLeft, nil},
		{"right", "SELECT * FROM a RIGHT JOIN b ON a.id = b.id", core.JoinRight, nil},
		{"cross", "SELECT * FROM a CROSS JOIN b", core.JoinCross, nil},
		{"comma", "SELECT * FROM a, b", core.JoinCross, nil},
		{"using", "SELECT * FROM a JOIN b USING (id, region)", core.JoinInner, []string{"id", "region"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := parser.Parse(tt.sql)
			require.NoError(t, err)
			joins := stmt.Cores[0].From.Joins
			require.Len(t, joins, 1)
			assert.Equal(t, tt.wantType, joins[0].Type)
			assert.Equal(t, "b", joins[0].Right.Name)
			assert.Equal(t, tt.using, joins[0].Using)
		})
	}
}

func TestParseUnionAll(t *testing.T) {
	stmt, err := parser.Parse("SELECT a FROM x UNION ALL SELECT a FROM y ORDER BY a")
	require.NoError(t, err)
	assert.Len(t, stmt.Cores, 2)
	assert.Len(t, stmt.OrderBy, 1)

	_, err = parser.Parse("SELECT a FROM x UNION SELECT a FROM y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNION ALL")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantMsg string
	}{
		{"empty", "   ", "empty query"},
		{"missing from table", "SELECT a FROM", "expected identifier"},
		{"unterminated string", "SELECT 'abc FROM t", "unterminated string literal"},
		{"trailing garbage", "SELECT a FROM t t2 t3", "after end of statement"},
		{"illegal char", "SELECT a ? b FROM t", "illegal character"},
		{"missing then", "SELECT CASE WHEN a 1 END FROM t", "expected THEN"},
		{"join without condition", "SELECT * FROM a JOIN b", "ON or USING"},
		{"subquery", "SELECT * FROM (SELECT 1)", "derived tables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.sql)
			require.Error(t, err)
			var pe *parser.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.True(t, pe.Pos.IsValid())
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := parser.Parse("SELECT a\nFROM t\nWHERE ?")
	require.Error(t, err)
	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Pos.Line)
	assert.Equal(t, 7, pe.Pos.Column)
}

func TestTokenize(t *testing.T) {
	toks := parser.Tokenize("SELECT a1, 1.5e3 -- comment\n/* block */ FROM \"My Table\" WHERE x <> .5")
	var types []token.TokenType
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []token.TokenType{
		token.SELECT, token.IDENT, token.COMMA, token.NUMBER,
		token.FROM, token.IDENT, token.WHERE, token.IDENT, token.NE, token.NUMBER, token.EOF,
	}, types)
	assert.Equal(t, "1.5e3", toks[3].Literal)
	assert.Equal(t, "My Table", toks[5].Literal)
	assert.Equal(t, ".5", toks[9].Literal)
}
