package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/functions"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// Expr is a bound expression: column references are resolved to row
// positions and functions to catalog entries.
type Expr interface {
	Eval(row core.Row) (any, error)
	Type() core.Type
	String() string
}

// ColumnExpr reads one field of the input row.
type ColumnExpr struct {
	Index int
	Name  string
	Typ   core.Type
}

func (e *ColumnExpr) Eval(row core.Row) (any, error) {
	if e.Index < 0 || e.Index >= len(row) {
		return nil, fmt.Errorf("column %s: index %d out of range for row of %d values", e.Name, e.Index, len(row))
	}
	return row[e.Index], nil
}

func (e *ColumnExpr) Type() core.Type { return e.Typ }
func (e *ColumnExpr) String() string  { return e.Name }

// LiteralExpr is a constant.
type LiteralExpr struct {
	Value any
}

func (e *LiteralExpr) Eval(core.Row) (any, error) { return e.Value, nil }
func (e *LiteralExpr) Type() core.Type             { return core.TypeOf(e.Value) }

func (e *LiteralExpr) String() string {
	switch v := e.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return core.ToString(v)
	}
}

// BinaryExpr applies an arithmetic, comparison, logical or concatenation
// operator.
type BinaryExpr struct {
	Op    token.TokenType
	Left  Expr
	Right Expr
	Typ   core.Type
}

func (e *BinaryExpr) Eval(row core.Row) (any, error) {
	switch e.Op {
	case token.AND, token.OR:
		return e.evalLogical(row)
	}
	l, err := e.Left.Eval(row)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.Eval(row)
	if err != nil {
		return nil, err
	}
	return binaryOp(e.Op, l, r)
}

// evalLogical implements three-valued AND/OR with short-circuiting.
func (e *BinaryExpr) evalLogical(row core.Row) (any, error) {
	l, err := e.Left.Eval(row)
	if err != nil {
		return nil, err
	}
	lb, lnull, err := truth(l)
	if err != nil {
		return nil, err
	}
	if !lnull {
		if e.Op == token.AND && !lb {
			return false, nil
		}
		if e.Op == token.OR && lb {
			return true, nil
		}
	}
	r, err := e.Right.Eval(row)
	if err != nil {
		return nil, err
	}
	rb, rnull, err := truth(r)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Op == token.AND && !rnull && !rb:
		return false, nil
	case e.Op == token.OR && !rnull && rb:
		return true, nil
	case lnull || rnull:
		return nil, nil
	}
	return rb, nil
}

func (e *BinaryExpr) Type() core.Type { return e.Typ }

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// UnaryExpr is NOT or arithmetic negation.
type UnaryExpr struct {
	Op   token.TokenType
	Expr Expr
}

func (e *UnaryExpr) Eval(row core.Row) (any, error) {
	v, err := e.Expr.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	switch e.Op {
	case token.NOT:
		b, _, err := truth(v)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case token.MINUS:
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		if f, ok := core.ToFloat(v); ok {
			return -f, nil
		}
		return nil, fmt.Errorf("cannot negate %s", core.TypeOf(v))
	default:
		return v, nil
	}
}

func (e *UnaryExpr) Type() core.Type {
	if e.Op == token.NOT {
		return core.TypeBool
	}
	return e.Expr.Type()
}

func (e *UnaryExpr) String() string {
	if e.Op == token.NOT {
		return fmt.Sprintf("(NOT %s)", e.Expr)
	}
	return fmt.Sprintf("(%s%s)", e.Op, e.Expr)
}

// CallExpr invokes a scalar function.
type CallExpr struct {
	Fn   *functions.Scalar
	Args []Expr
}

func (e *CallExpr) Eval(row core.Row) (any, error) {
	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Eval(row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return e.Fn.Call(args)
}

func (e *CallExpr) Type() core.Type { return e.Fn.Ref.ReturnType() }

func (e *CallExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Fn.Name, joinExprs(e.Args))
}

// WhenExpr is one WHEN branch of a CaseExpr.
type WhenExpr struct {
	Cond   Expr
	Result Expr
}

// CaseExpr is a searched or simple CASE.
type CaseExpr struct {
	Operand Expr // nil for searched CASE
	Whens   []WhenExpr
	Else    Expr
	Typ     core.Type
}

func (e *CaseExpr) Eval(row core.Row) (any, error) {
	var operand any
	if e.Operand != nil {
		v, err := e.Operand.Eval(row)
		if err != nil {
			return nil, err
		}
		operand = v
	}
	for _, w := range e.Whens {
		c, err := w.Cond.Eval(row)
		if err != nil {
			return nil, err
		}
		var match bool
		if e.Operand != nil {
			eq, err := binaryOp(token.EQ, operand, c)
			if err != nil {
				return nil, err
			}
			match = eq == true
		} else {
			b, null, err := truth(c)
			if err != nil {
				return nil, err
			}
			match = b && !null
		}
		if match {
			return w.Result.Eval(row)
		}
	}
	if e.Else != nil {
		return e.Else.Eval(row)
	}
	return nil, nil
}

func (e *CaseExpr) Type() core.Type { return e.Typ }

func (e *CaseExpr) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	if e.Operand != nil {
		b.WriteString(" " + e.Operand.String())
	}
	for _, w := range e.Whens {
		fmt.Fprintf(&b, " WHEN %s THEN %s", w.Cond, w.Result)
	}
	if e.Else != nil {
		fmt.Fprintf(&b, " ELSE %s", e.Else)
	}
	b.WriteString(" END")
	return b.String()
}

// CastExpr converts a value to a SQL type.
type CastExpr struct {
	Expr Expr
	To   core.Type
}

func (e *CastExpr) Eval(row core.Row) (any, error) {
	v, err := e.Expr.Eval(row)
	if err != nil {
		return nil, err
	}
	return core.Cast(v, e.To)
}

func (e *CastExpr) Type() core.Type { return e.To }

func (e *CastExpr) String() string { return fmt.Sprintf("CAST(%s AS %s)", e.Expr, e.To) }

// InExpr tests membership in a value list.
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
}

func (e *InExpr) Eval(row core.Row) (any, error) {
	v, err := e.Expr.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	sawNull := false
	for _, item := range e.Values {
		c, err := item.Eval(row)
		if err != nil {
			return nil, err
		}
		if c == nil {
			sawNull = true
			continue
		}
		if eq, err := binaryOp(token.EQ, v, c); err != nil {
			return nil, err
		} else if eq == true {
			return !e.Not, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return e.Not, nil
}

func (e *InExpr) Type() core.Type { return core.TypeBool }

func (e *InExpr) String() string {
	op := "IN"
	if e.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("(%s %s (%s))", e.Expr, op, joinExprs(e.Values))
}

// BetweenExpr tests low <= x <= high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

func (e *BetweenExpr) Eval(row core.Row) (any, error) {
	geLow := &BinaryExpr{Op: token.GE, Left: e.Expr, Right: e.Low}
	leHigh := &BinaryExpr{Op: token.LE, Left: e.Expr, Right: e.High}
	v, err := (&BinaryExpr{Op: token.AND, Left: geLow, Right: leHigh}).Eval(row)
	if err != nil || v == nil || !e.Not {
		return v, err
	}
	return !v.(bool), nil
}

func (e *BetweenExpr) Type() core.Type { return core.TypeBool }

func (e *BetweenExpr) String() string {
	op := "BETWEEN"
	if e.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("(%s %s %s AND %s)", e.Expr, op, e.Low, e.High)
}

// IsNullExpr is IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (e *IsNullExpr) Eval(row core.Row) (any, error) {
	v, err := e.Expr.Eval(row)
	if err != nil {
		return nil, err
	}
	return (v == nil) != e.Not, nil
}

func (e *IsNullExpr) Type() core.Type { return core.TypeBool }

func (e *IsNullExpr) String() string {
	if e.Not {
		return fmt.Sprintf("(%s IS NOT NULL)", e.Expr)
	}
	return fmt.Sprintf("(%s IS NULL)", e.Expr)
}

// LikeExpr matches SQL LIKE patterns (% and _ wildcards).
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr

	compiled *regexp.Regexp // set when Pattern is a literal
}

// NewLikeExpr builds a LIKE expression, compiling literal patterns once.
func NewLikeExpr(expr, pattern Expr, not bool) *LikeExpr {
	e := &LikeExpr{Expr: expr, Not: not, Pattern: pattern}
	if lit, ok := pattern.(*LiteralExpr); ok {
		if s, ok := lit.Value.(string); ok {
			e.compiled = likeRegexp(s)
		}
	}
	return e
}

func (e *LikeExpr) Eval(row core.Row) (any, error) {
	v, err := e.Expr.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	re := e.compiled
	if re == nil {
		p, err := e.Pattern.Eval(row)
		if err != nil || p == nil {
			return nil, err
		}
		re = likeRegexp(core.ToString(p))
	}
	return re.MatchString(core.ToString(v)) != e.Not, nil
}

func (e *LikeExpr) Type() core.Type { return core.TypeBool }

func (e *LikeExpr) String() string {
	op := "LIKE"
	if e.Not {
		op = "NOT LIKE"
	}
	return fmt.Sprintf("(%s %s %s)", e.Expr, op, e.Pattern)
}

func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Truth evaluates a predicate result for filtering: only TRUE passes.
func Truth(v any) (bool, error) {
	b, null, err := truth(v)
	return b && !null, err
}

func truth(v any) (b, null bool, err error) {
	if v == nil {
		return false, true, nil
	}
	b, ok := core.ToBool(v)
	if !ok {
		return false, false, fmt.Errorf("cannot use %s value %q as boolean", core.TypeOf(v), core.ToString(v))
	}
	return b, false, nil
}
