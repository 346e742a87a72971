package env

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/plan"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// binder resolves names in a parsed statement and builds the logical plan.
type binder struct {
	env *Environment
}

type column struct {
	qualifier string
	name      string
	typ       core.Type
}

// scope lists the columns visible to an expression, positionally aligned
// with the rows it is evaluated against.
type scope struct {
	cols []column
}

func tableScope(qualifier string, schema core.Schema) *scope {
	s := &scope{cols: make([]column, len(schema.Fields))}
	for i, f := range schema.Fields {
		s.cols[i] = column{qualifier: qualifier, name: f.Name, typ: f.Type}
	}
	return s
}

func (s *scope) concat(o *scope) *scope {
	cols := make([]column, 0, len(s.cols)+len(o.cols))
	cols = append(cols, s.cols...)
	return &scope{cols: append(cols, o.cols...)}
}

// query is a bound SELECT core before projection.
type query struct {
	input    plan.Node
	ctx      *bindCtx
	exprs    []plan.Expr
	names    []string
	distinct bool
}

func (q *query) project() plan.Node {
	var node plan.Node = &plan.Project{Input: q.input, Exprs: q.exprs, Names: q.names}
	if q.distinct {
		node = &plan.Distinct{Input: node}
	}
	return node
}

func (b *binder) bindStatement(stmt *core.SelectStmt) (plan.Node, error) {
	if len(stmt.Cores) == 1 {
		return b.bindSingle(stmt)
	}

	inputs := make([]plan.Node, len(stmt.Cores))
	for i, c := range stmt.Cores {
		q, err := b.bindCore(c, nil)
		if err != nil {
			return nil, err
		}
		inputs[i] = q.project()
		if i > 0 && inputs[i].Schema().Len() != inputs[0].Schema().Len() {
			return nil, &core.ValidationError{Message: fmt.Sprintf(
				"UNION ALL inputs have %d and %d columns", inputs[0].Schema().Len(), inputs[i].Schema().Len())}
		}
	}
	var node plan.Node = &plan.Union{Inputs: inputs}

	if len(stmt.OrderBy) > 0 {
		schema := node.Schema()
		keys := make([]plan.SortKey, len(stmt.OrderBy))
		for i, item := range stmt.OrderBy {
			idx, err := b.outputIndex(item.Expr, schema.Names())
			if err != nil {
				return nil, err
			}
			if idx < 0 {
				return nil, &core.ValidationError{Message: "ORDER BY on UNION ALL must name an output column or position"}
			}
			keys[i] = sortKey(item, idx, schema.Fields[idx])
		}
		node = &plan.Sort{Input: node, Keys: keys}
	}
	return b.bindLimit(stmt, node)
}

func (b *binder) bindSingle(stmt *core.SelectStmt) (plan.Node, error) {
	q, err := b.bindCore(stmt.Cores[0], stmt.OrderBy)
	if err != nil {
		return nil, err
	}

	visible := len(q.exprs)
	var keys []plan.SortKey
	for _, item := range stmt.OrderBy {
		idx, err := b.outputIndex(item.Expr, q.names[:visible])
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			bound, err := b.bindExpr(item.Expr, q.ctx)
			if err != nil {
				return nil, err
			}
			idx = indexOfExpr(q.exprs, bound)
			if idx < 0 {
				if q.distinct {
					return nil, &core.ValidationError{Message: "for SELECT DISTINCT, ORDER BY expressions must appear in select list"}
				}
				q.exprs = append(q.exprs, bound)
				q.names = append(q.names, fmt.Sprintf("$order%d", len(q.exprs)-visible-1))
				idx = len(q.exprs) - 1
			}
		}
		keys = append(keys, sortKey(item, idx, core.Field{Name: q.names[idx], Type: q.exprs[idx].Type()}))
	}

	node := q.project()
	if len(keys) > 0 {
		node = &plan.Sort{Input: node, Keys: keys}
	}
	node, err = b.bindLimit(stmt, node)
	if err != nil {
		return nil, err
	}

	if len(q.exprs) > visible {
		schema := node.Schema()
		exprs := make([]plan.Expr, visible)
		for i := range visible {
			exprs[i] = &plan.ColumnExpr{Index: i, Name: q.names[i], Typ: schema.Fields[i].Type}
		}
		node = &plan.Project{Input: node, Exprs: exprs, Names: q.names[:visible]}
	}
	return node, nil
}

func sortKey(item core.OrderByItem, idx int, f core.Field) plan.SortKey {
	nullsFirst := item.Desc
	if item.NullsFirst != nil {
		nullsFirst = *item.NullsFirst
	}
	return plan.SortKey{
		Expr:       &plan.ColumnExpr{Index: idx, Name: f.Name, Typ: f.Type},
		Desc:       item.Desc,
		NullsFirst: nullsFirst,
	}
}

// outputIndex resolves an ORDER BY or GROUP BY term that names an output
// column by position or by name. It returns -1 when the term is anything else.
func (b *binder) outputIndex(e core.Expr, names []string) (int, error) {
	switch x := unparen(e).(type) {
	case *core.Literal:
		if x.Type != core.LiteralNumber {
			return -1, nil
		}
		n, err := strconv.Atoi(x.Value)
		if err != nil || n < 1 || n > len(names) {
			return 0, &core.ValidationError{Message: fmt.Sprintf("position %s is not in select list", x.Value)}
		}
		return n - 1, nil
	case *core.ColumnRef:
		if x.Table != "" {
			return -1, nil
		}
		match := -1
		for i, name := range names {
			if name == x.Column {
				return i, nil
			}
			if match < 0 && b.env.dialect.SameName(name, x.Column) {
				match = i
			}
		}
		return match, nil
	}
	return -1, nil
}

func (b *binder) bindLimit(stmt *core.SelectStmt, node plan.Node) (plan.Node, error) {
	if stmt.Limit == nil && stmt.Offset == nil {
		return node, nil
	}
	count, offset := int64(-1), int64(0)
	var err error
	if stmt.Limit != nil {
		if count, err = b.constInt(stmt.Limit, "LIMIT"); err != nil {
			return nil, err
		}
	}
	if stmt.Offset != nil {
		if offset, err = b.constInt(stmt.Offset, "OFFSET"); err != nil {
			return nil, err
		}
	}
	return &plan.Limit{Input: node, Count: count, Offset: offset}, nil
}

func (b *binder) constInt(e core.Expr, clause string) (int64, error) {
	bound, err := b.bindExpr(e, &bindCtx{scope: &scope{}, clause: clause})
	if err != nil {
		return 0, err
	}
	v, err := bound.Eval(nil)
	if err != nil {
		return 0, err
	}
	n, ok := core.ToInt(v)
	if !ok || n < 0 {
		return 0, &core.ValidationError{Message: fmt.Sprintf("%s must be a non-negative integer, got %s", clause, bound)}
	}
	return n, nil
}

func (b *binder) bindCore(c *core.SelectCore, orderBy []core.OrderByItem) (*query, error) {
	var (
		input plan.Node
		sc    *scope
		err   error
	)
	if c.From == nil {
		input, sc = &plan.Values{Rows: []core.Row{{}}}, &scope{}
	} else if input, sc, err = b.bindFrom(c.From); err != nil {
		return nil, err
	}

	if c.Where != nil {
		pred, err := b.bindExpr(c.Where, &bindCtx{scope: sc, clause: "WHERE"})
		if err != nil {
			return nil, err
		}
		input = &plan.Filter{Input: input, Predicate: pred}
	}

	q := &query{distinct: c.Distinct}
	if !b.aggregating(c, orderBy) {
		q.input, q.ctx = input, &bindCtx{scope: sc, clause: "SELECT"}
		q.exprs, q.names, err = b.bindSelectList(c.Columns, q.ctx)
		return q, err
	}

	st := &aggState{input: sc, callIndex: make(map[string]int)}
	for _, g := range c.GroupBy {
		ast := b.groupTerm(g, c.Columns, sc)
		bound, err := b.bindExpr(ast, &bindCtx{scope: sc, clause: "GROUP BY"})
		if err != nil {
			return nil, err
		}
		name := bound.String()
		if col, ok := bound.(*plan.ColumnExpr); ok {
			name = sc.cols[col.Index].name
		}
		st.groups = append(st.groups, bound)
		st.groupNames = append(st.groupNames, name)
	}

	var asts []core.Expr
	for _, item := range c.Columns {
		if item.Expr != nil {
			asts = append(asts, item.Expr)
		}
	}
	if c.Having != nil {
		asts = append(asts, c.Having)
	}
	for _, item := range orderBy {
		asts = append(asts, item.Expr)
	}
	for _, e := range asts {
		if err := b.collectAggregates(e, st); err != nil {
			return nil, err
		}
	}

	agg := &plan.Aggregate{Input: input, GroupBy: st.groups, GroupNames: st.groupNames, Aggs: st.calls}
	ctx := &bindCtx{scope: tableScope("", agg.Schema()), agg: st, clause: "SELECT"}
	input = agg

	if c.Having != nil {
		pred, err := b.bindExpr(c.Having, &bindCtx{scope: ctx.scope, agg: st, clause: "HAVING"})
		if err != nil {
			return nil, err
		}
		input = &plan.Filter{Input: input, Predicate: pred}
	}

	q.input, q.ctx = input, ctx
	q.exprs, q.names, err = b.bindSelectList(c.Columns, ctx)
	return q, err
}

// aggregating reports whether the core groups rows.
func (b *binder) aggregating(c *core.SelectCore, orderBy []core.OrderByItem) bool {
	if len(c.GroupBy) > 0 || c.Having != nil {
		return true
	}
	for _, item := range c.Columns {
		if item.Expr != nil && b.containsAggregate(item.Expr) {
			return true
		}
	}
	for _, item := range orderBy {
		if b.containsAggregate(item.Expr) {
			return true
		}
	}
	return false
}

// groupTerm maps GROUP BY positions and select aliases to their expressions.
func (b *binder) groupTerm(g core.Expr, items []core.SelectItem, sc *scope) core.Expr {
	switch x := unparen(g).(type) {
	case *core.Literal:
		if n, err := strconv.Atoi(x.Value); err == nil && x.Type == core.LiteralNumber && n >= 1 && n <= len(items) && items[n-1].Expr != nil {
			return items[n-1].Expr
		}
	case *core.ColumnRef:
		if x.Table != "" {
			return g
		}
		if _, err := b.resolveColumn(sc, "", x.Column); err == nil {
			return g
		}
		for _, item := range items {
			if item.Alias != "" && b.env.dialect.SameName(item.Alias, x.Column) {
				return item.Expr
			}
		}
	}
	return g
}

func (b *binder) bindSelectList(items []core.SelectItem, ctx *bindCtx) ([]plan.Expr, []string, error) {
	var (
		exprs []plan.Expr
		names []string
	)
	for i, item := range items {
		switch {
		case item.Star || item.TableStar != "":
			if ctx.agg != nil {
				return nil, nil, &core.ValidationError{Message: "SELECT * is not allowed in an aggregate query"}
			}
			matched := false
			for idx, col := range ctx.scope.cols {
				if item.TableStar != "" && !b.env.dialect.SameName(col.qualifier, item.TableStar) {
					continue
				}
				matched = true
				exprs = append(exprs, &plan.ColumnExpr{Index: idx, Name: col.name, Typ: col.typ})
				names = append(names, col.name)
			}
			if item.TableStar != "" && !matched {
				return nil, nil, &core.UnresolvedReferenceError{Kind: core.RefTable, Name: item.TableStar}
			}
		default:
			bound, err := b.bindExpr(item.Expr, ctx)
			if err != nil {
				return nil, nil, err
			}
			exprs = append(exprs, bound)
			names = append(names, outputName(item, i))
		}
	}
	return exprs, names, nil
}

// outputName follows the common convention: alias, else column name, else
// EXPR$<position>.
func outputName(item core.SelectItem, pos int) string {
	if item.Alias != "" {
		return item.Alias
	}
	if ref, ok := unparen(item.Expr).(*core.ColumnRef); ok {
		return ref.Column
	}
	return fmt.Sprintf("EXPR$%d", pos)
}

func (b *binder) bindFrom(from *core.FromClause) (plan.Node, *scope, error) {
	left, sc, err := b.bindTableRef(from.Source)
	if err != nil {
		return nil, nil, err
	}
	for _, j := range from.Joins {
		right, rsc, err := b.bindTableRef(j.Right)
		if err != nil {
			return nil, nil, err
		}
		combined := sc.concat(rsc)
		join := &plan.Join{Left: left, Right: right, Kind: j.Type}

		switch {
		case len(j.Using) > 0:
			for _, name := range j.Using {
				li, err := b.resolveColumn(sc, "", name)
				if err != nil {
					return nil, nil, err
				}
				ri, err := b.resolveColumn(rsc, "", name)
				if err != nil {
					return nil, nil, err
				}
				join.LeftKeys = append(join.LeftKeys, columnExpr(sc, li))
				join.RightKeys = append(join.RightKeys, columnExpr(rsc, ri))
			}
		case j.Condition != nil:
			if err := b.bindJoinCondition(join, j.Condition, sc, rsc, combined); err != nil {
				return nil, nil, err
			}
		}
		left, sc = join, combined
	}
	return left, sc, nil
}

// bindJoinCondition splits an ON condition into equi-join keys and a
// residual predicate.
func (b *binder) bindJoinCondition(join *plan.Join, cond core.Expr, left, right, combined *scope) error {
	ctx := &bindCtx{scope: combined, clause: "JOIN condition"}
	if _, err := b.bindExpr(cond, ctx); err != nil {
		return err
	}

	var residual []plan.Expr
	for _, conj := range conjuncts(cond) {
		if eq, ok := conj.(*core.BinaryExpr); ok && eq.Op == token.EQ {
			if lk, rk, ok := b.keyPair(eq.Left, eq.Right, left, right); ok {
				join.LeftKeys, join.RightKeys = append(join.LeftKeys, lk), append(join.RightKeys, rk)
				continue
			}
			if lk, rk, ok := b.keyPair(eq.Right, eq.Left, left, right); ok {
				join.LeftKeys, join.RightKeys = append(join.LeftKeys, lk), append(join.RightKeys, rk)
				continue
			}
		}
		bound, err := b.bindExpr(conj, ctx)
		if err != nil {
			return err
		}
		residual = append(residual, bound)
	}
	join.Residual = andAll(residual)
	return nil
}

func (b *binder) keyPair(l, r core.Expr, left, right *scope) (plan.Expr, plan.Expr, bool) {
	lk, err := b.bindExpr(l, &bindCtx{scope: left, clause: "JOIN condition"})
	if err != nil {
		return nil, nil, false
	}
	rk, err := b.bindExpr(r, &bindCtx{scope: right, clause: "JOIN condition"})
	if err != nil {
		return nil, nil, false
	}
	return lk, rk, true
}

func (b *binder) bindTableRef(tn *core.TableName) (plan.Node, *scope, error) {
	t, err := b.env.lookupTable(tn.Name)
	if err != nil {
		return nil, nil, err
	}
	qualifier := tn.EffectiveName()
	scan := &plan.Scan{Table: t.Name(), Alias: qualifier, Output: t.Schema()}
	return scan, tableScope(qualifier, t.Schema()), nil
}

// resolveColumn finds a column by exact name first, then by dialect-folded
// name. More than one candidate is an ambiguity error.
func (b *binder) resolveColumn(sc *scope, qualifier, name string) (int, error) {
	d := b.env.dialect
	var candidates []int
	for _, exact := range []bool{true, false} {
		for i, col := range sc.cols {
			if qualifier != "" && !d.SameName(col.qualifier, qualifier) {
				continue
			}
			if (exact && col.name == name) || (!exact && d.SameName(col.name, name)) {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) > 0 {
			break
		}
	}

	display := name
	if qualifier != "" {
		display = qualifier + "." + name
	}
	switch len(candidates) {
	case 0:
		return -1, &core.UnresolvedReferenceError{Kind: core.RefColumn, Name: display}
	case 1:
		return candidates[0], nil
	default:
		return -1, &core.ValidationError{Message: fmt.Sprintf("column reference %q is ambiguous", display)}
	}
}

func columnExpr(sc *scope, idx int) *plan.ColumnExpr {
	col := sc.cols[idx]
	name := col.name
	if col.qualifier != "" {
		name = col.qualifier + "." + col.name
	}
	return &plan.ColumnExpr{Index: idx, Name: name, Typ: col.typ}
}

func indexOfExpr(exprs []plan.Expr, e plan.Expr) int {
	s := e.String()
	for i, x := range exprs {
		if x.String() == s {
			return i
		}
	}
	return -1
}

func unparen(e core.Expr) core.Expr {
	for {
		p, ok := e.(*core.ParenExpr)
		if !ok {
			return e
		}
		e = p.Expr
	}
}

func conjuncts(e core.Expr) []core.Expr {
	e = unparen(e)
	if bin, ok := e.(*core.BinaryExpr); ok && bin.Op == token.AND {
		return append(conjuncts(bin.Left), conjuncts(bin.Right)...)
	}
	return []core.Expr{e}
}

func andAll(exprs []plan.Expr) plan.Expr {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &plan.BinaryExpr{Op: token.AND, Left: out, Right: e, Typ: core.TypeBool}
	}
	return out
}

func qualifiedName(ref *core.ColumnRef) string {
	if ref.Table == "" {
		return ref.Column
	}
	return ref.Table + "." + ref.Column
}
