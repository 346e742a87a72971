package core

import "github.com/leapstack-labs/flowsql/pkg/token"

// Node is the base interface for all AST nodes.
type Node interface {
	// Pos returns the position of the first character of the node.
	Pos() token.Position
}

// Expr is a marker interface for expression nodes.
type Expr interface {
	Node
	exprNode()
}

// ---------- Expression Types ----------

// ColumnRef represents a column reference (possibly qualified).
type ColumnRef struct {
	Table   string // optional table/alias qualifier
	Column  string
	NamePos token.Position
}

func (*ColumnRef) exprNode() {}

// Pos implements Node.
func (c *ColumnRef) Pos() token.Position { return c.NamePos }

// Literal represents a literal value.
type Literal struct {
	Type     LiteralType
	Value    string
	ValuePos token.Position
}

func (*Literal) exprNode() {}

// Pos implements Node.
func (l *Literal) Pos() token.Position { return l.ValuePos }

// LiteralType represents the type of a literal.
type LiteralType int

// LiteralType constants for SQL literal value types.
const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// BinaryExpr represents a binary expression.
type BinaryExpr struct {
	Left  Expr
	Op    token.TokenType
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// Pos implements Node.
func (b *BinaryExpr) Pos() token.Position { return b.Left.Pos() }

// UnaryExpr represents a unary expression (NOT, -, +).
type UnaryExpr struct {
	Op    token.TokenType
	Expr  Expr
	OpPos token.Position
}

func (*UnaryExpr) exprNode() {}

// Pos implements Node.
func (u *UnaryExpr) Pos() token.Position { return u.OpPos }

// FuncCall represents a function call.
// Name is kept as written; catalogs normalize it.
type FuncCall struct {
	Name     string
	Distinct bool
	Star     bool // COUNT(*)
	Args     []Expr
	NamePos  token.Position
}

func (*FuncCall) exprNode() {}

// Pos implements Node.
func (f *FuncCall) Pos() token.Position { return f.NamePos }

// CaseExpr represents a CASE expression.
// Operand is nil for searched CASE (CASE WHEN cond THEN ...).
type CaseExpr struct {
	Operand Expr
	Whens   []*WhenClause
	Else    Expr
	CasePos token.Position
}

func (*CaseExpr) exprNode() {}

// Pos implements Node.
func (c *CaseExpr) Pos() token.Position { return c.CasePos }

// WhenClause represents WHEN condition THEN result.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr represents CAST(expr AS type).
type CastExpr struct {
	Expr     Expr
	TypeName string
	CastPos  token.Position
}

func (*CastExpr) exprNode() {}

// Pos implements Node.
func (c *CastExpr) Pos() token.Position { return c.CastPos }

// InExpr represents expr [NOT] IN (values).
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
}

func (*InExpr) exprNode() {}

// Pos implements Node.
func (i *InExpr) Pos() token.Position { return i.Expr.Pos() }

// BetweenExpr represents expr [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

func (*BetweenExpr) exprNode() {}

// Pos implements Node.
func (b *BetweenExpr) Pos() token.Position { return b.Expr.Pos() }

// IsNullExpr represents expr IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) exprNode() {}

// Pos implements Node.
func (i *IsNullExpr) Pos() token.Position { return i.Expr.Pos() }

// LikeExpr represents expr [NOT] LIKE pattern.
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr
}

func (*LikeExpr) exprNode() {}

// Pos implements Node.
func (l *LikeExpr) Pos() token.Position { return l.Expr.Pos() }

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expr
}

func (*ParenExpr) exprNode() {}

// Pos implements Node.
func (p *ParenExpr) Pos() token.Position { return p.Expr.Pos() }

// ---------- Statement Types ----------

// SelectStmt is a complete SELECT statement, possibly a UNION ALL chain.
type SelectStmt struct {
	Cores   []*SelectCore // one entry per UNION ALL branch
	OrderBy []OrderByItem
	Limit   Expr
	Offset  Expr
}

// Pos implements Node.
func (s *SelectStmt) Pos() token.Position {
	if len(s.Cores) == 0 {
		return token.Position{}
	}
	return s.Cores[0].SelectPos
}

// SelectCore is a single SELECT ... FROM ... WHERE ... GROUP BY ... HAVING block.
type SelectCore struct {
	Distinct  bool
	Columns   []SelectItem
	From      *FromClause
	Where     Expr
	GroupBy   []Expr
	Having    Expr
	SelectPos token.Position
}

// SelectItem is one entry in the select list.
type SelectItem struct {
	Star      bool   // SELECT *
	TableStar string // SELECT t.*
	Expr      Expr
	Alias     string
}

// FromClause represents the FROM clause.
type FromClause struct {
	Source *TableName
	Joins  []*Join
}

// JoinType represents the type of join.
type JoinType int

// JoinType constants.
const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	case JoinCross:
		return "CROSS"
	default:
		return "INNER"
	}
}

// Join represents a JOIN clause.
type Join struct {
	Type      JoinType
	Right     *TableName
	Condition Expr     // ON condition
	Using     []string // USING (col, ...)
}

// TableName represents a table reference in FROM.
type TableName struct {
	Name    string
	Alias   string
	NamePos token.Position
}

// Pos implements Node.
func (t *TableName) Pos() token.Position { return t.NamePos }

// EffectiveName returns the alias if present, else the table name.
func (t *TableName) EffectiveName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// OrderByItem represents an ORDER BY item.
type OrderByItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool // nil = default
}
