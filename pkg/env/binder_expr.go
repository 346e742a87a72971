package env

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/functions"
	"github.com/leapstack-labs/flowsql/pkg/plan"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// bindCtx is where an expression is being bound.
type bindCtx struct {
	scope *scope
	// agg is set after GROUP BY: expressions may only reference group keys
	// and aggregate calls.
	agg    *aggState
	clause string
}

// aggState tracks the group keys and aggregate calls of one SELECT core.
type aggState struct {
	input      *scope
	groups     []plan.Expr
	groupNames []string
	calls      []*plan.AggregateCall
	callIndex  map[string]int
}

func (b *binder) isAggregate(name string) bool {
	return b.env.catalog.IsAggregate(name)
}

// containsAggregate reports whether e calls an aggregate outside of a nested
// aggregate's arguments.
func (b *binder) containsAggregate(e core.Expr) bool {
	found := false
	walkExpr(e, func(x core.Expr) bool {
		if fc, ok := x.(*core.FuncCall); ok && b.isAggregate(fc.Name) {
			found = true
			return false
		}
		return !found
	})
	return found
}

// collectAggregates binds every aggregate call in e and records it once.
func (b *binder) collectAggregates(e core.Expr, st *aggState) error {
	var err error
	walkExpr(e, func(x core.Expr) bool {
		if err != nil {
			return false
		}
		fc, ok := x.(*core.FuncCall)
		if !ok || !b.isAggregate(fc.Name) {
			return true
		}
		var call *plan.AggregateCall
		if call, err = b.bindAggregateCall(fc, st.input); err != nil {
			return false
		}
		if _, seen := st.callIndex[call.String()]; !seen {
			st.callIndex[call.String()] = len(st.calls)
			st.calls = append(st.calls, call)
		}
		return false
	})
	return err
}

func (b *binder) bindAggregateCall(fc *core.FuncCall, input *scope) (*plan.AggregateCall, error) {
	fn, _ := b.env.catalog.LookupAggregate(fc.Name)
	ctx := &bindCtx{scope: input, clause: "aggregate arguments"}
	args := make([]plan.Expr, len(fc.Args))
	types := make([]core.Type, len(fc.Args))
	for i, a := range fc.Args {
		bound, err := b.bindExpr(a, ctx)
		if err != nil {
			return nil, err
		}
		args[i], types[i] = bound, bound.Type()
	}
	if !fc.Star && len(args) == 0 {
		return nil, &core.ValidationError{Message: fmt.Sprintf("aggregate %s requires an argument", fc.Name)}
	}
	call := &plan.AggregateCall{
		Fn:       fn,
		Args:     args,
		Distinct: fc.Distinct,
		Star:     fc.Star,
		Typ:      functions.OutputType(fn.Fn, types),
	}
	call.Name = call.String()
	return call, nil
}

// bindExpr resolves an AST expression against ctx.
func (b *binder) bindExpr(e core.Expr, ctx *bindCtx) (plan.Expr, error) {
	if ctx.agg != nil {
		if bound, ok, err := b.bindGrouped(e, ctx.agg); ok || err != nil {
			return bound, err
		}
	}

	switch x := e.(type) {
	case *core.ParenExpr:
		return b.bindExpr(x.Expr, ctx)

	case *core.Literal:
		return bindLiteral(x)

	case *core.ColumnRef:
		if ctx.agg != nil {
			if _, err := b.resolveColumn(ctx.agg.input, x.Table, x.Column); err != nil {
				return nil, err
			}
			return nil, &core.ValidationError{Message: fmt.Sprintf(
				"column %s must appear in the GROUP BY clause or be used in an aggregate function", qualifiedName(x))}
		}
		idx, err := b.resolveColumn(ctx.scope, x.Table, x.Column)
		if err != nil {
			return nil, err
		}
		return columnExpr(ctx.scope, idx), nil

	case *core.BinaryExpr:
		l, err := b.bindExpr(x.Left, ctx)
		if err != nil {
			return nil, err
		}
		r, err := b.bindExpr(x.Right, ctx)
		if err != nil {
			return nil, err
		}
		typ := core.TypeBool
		switch x.Op {
		case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT, token.DPIPE:
			typ = plan.ArithmeticType(x.Op, l.Type(), r.Type())
		}
		return &plan.BinaryExpr{Op: x.Op, Left: l, Right: r, Typ: typ}, nil

	case *core.UnaryExpr:
		inner, err := b.bindExpr(x.Expr, ctx)
		if err != nil || x.Op == token.PLUS {
			return inner, err
		}
		return &plan.UnaryExpr{Op: x.Op, Expr: inner}, nil

	case *core.FuncCall:
		return b.bindCall(x, ctx)

	case *core.CaseExpr:
		return b.bindCase(x, ctx)

	case *core.CastExpr:
		inner, err := b.bindExpr(x.Expr, ctx)
		if err != nil {
			return nil, err
		}
		typ, ok := core.ParseTypeName(x.TypeName)
		if !ok {
			return nil, &core.ValidationError{Message: fmt.Sprintf("unknown type %s in CAST", x.TypeName)}
		}
		return &plan.CastExpr{Expr: inner, To: typ}, nil

	case *core.InExpr:
		inner, err := b.bindExpr(x.Expr, ctx)
		if err != nil {
			return nil, err
		}
		values, err := b.bindExprs(x.Values, ctx)
		if err != nil {
			return nil, err
		}
		return &plan.InExpr{Expr: inner, Not: x.Not, Values: values}, nil

	case *core.BetweenExpr:
		bound, err := b.bindExprs([]core.Expr{x.Expr, x.Low, x.High}, ctx)
		if err != nil {
			return nil, err
		}
		return &plan.BetweenExpr{Expr: bound[0], Not: x.Not, Low: bound[1], High: bound[2]}, nil

	case *core.IsNullExpr:
		inner, err := b.bindExpr(x.Expr, ctx)
		if err != nil {
			return nil, err
		}
		return &plan.IsNullExpr{Expr: inner, Not: x.Not}, nil

	case *core.LikeExpr:
		bound, err := b.bindExprs([]core.Expr{x.Expr, x.Pattern}, ctx)
		if err != nil {
			return nil, err
		}
		return plan.NewLikeExpr(bound[0], bound[1], x.Not), nil
	}
	return nil, &core.ValidationError{Message: fmt.Sprintf("unsupported expression %T", e)}
}

// bindGrouped maps an expression after GROUP BY onto the aggregate output:
// aggregate calls and group keys become column references.
func (b *binder) bindGrouped(e core.Expr, st *aggState) (plan.Expr, bool, error) {
	if fc, ok := unparen(e).(*core.FuncCall); ok && b.isAggregate(fc.Name) {
		call, err := b.bindAggregateCall(fc, st.input)
		if err != nil {
			return nil, false, err
		}
		idx, ok := st.callIndex[call.String()]
		if !ok {
			return nil, false, &core.ValidationError{Message: fmt.Sprintf("aggregate %s is not allowed here", call)}
		}
		return &plan.ColumnExpr{Index: len(st.groups) + idx, Name: call.Name, Typ: call.Typ}, true, nil
	}

	if _, ok := unparen(e).(*core.Literal); ok {
		return nil, false, nil
	}
	if b.containsAggregate(e) {
		return nil, false, nil
	}
	bound, err := b.bindExpr(e, &bindCtx{scope: st.input, clause: "GROUP BY"})
	if err != nil {
		return nil, false, nil
	}
	if i := indexOfExpr(st.groups, bound); i >= 0 {
		return &plan.ColumnExpr{Index: i, Name: st.groupNames[i], Typ: bound.Type()}, true, nil
	}
	return nil, false, nil
}

func (b *binder) bindCall(fc *core.FuncCall, ctx *bindCtx) (plan.Expr, error) {
	if b.isAggregate(fc.Name) {
		// Only reachable outside an aggregate context.
		return nil, &core.ValidationError{Message: fmt.Sprintf("aggregate function %s is not allowed in %s", fc.Name, ctx.clause)}
	}
	fn, ok := b.env.catalog.LookupScalar(fc.Name)
	if !ok {
		return nil, &core.UnresolvedReferenceError{Kind: core.RefFunction, Name: fc.Name}
	}
	if fc.Star || fc.Distinct {
		return nil, &core.ValidationError{Message: fmt.Sprintf("%s is not an aggregate function", fc.Name)}
	}
	n, variadic := fn.Ref.Arity()
	if len(fc.Args) < n || (!variadic && len(fc.Args) > n) {
		want := strconv.Itoa(n)
		if variadic {
			want = "at least " + want
		}
		return nil, &core.ValidationError{Message: fmt.Sprintf(
			"function %s expects %s arguments, got %d", fc.Name, want, len(fc.Args))}
	}
	args, err := b.bindExprs(fc.Args, ctx)
	if err != nil {
		return nil, err
	}
	return &plan.CallExpr{Fn: fn, Args: args}, nil
}

func (b *binder) bindCase(x *core.CaseExpr, ctx *bindCtx) (plan.Expr, error) {
	out := &plan.CaseExpr{Typ: core.TypeNull}
	if x.Operand != nil {
		op, err := b.bindExpr(x.Operand, ctx)
		if err != nil {
			return nil, err
		}
		out.Operand = op
	}
	results := make([]plan.Expr, 0, len(x.Whens)+1)
	for _, w := range x.Whens {
		cond, err := b.bindExpr(w.Condition, ctx)
		if err != nil {
			return nil, err
		}
		res, err := b.bindExpr(w.Result, ctx)
		if err != nil {
			return nil, err
		}
		out.Whens = append(out.Whens, plan.WhenExpr{Cond: cond, Result: res})
		results = append(results, res)
	}
	if x.Else != nil {
		els, err := b.bindExpr(x.Else, ctx)
		if err != nil {
			return nil, err
		}
		out.Else = els
		results = append(results, els)
	}
	for _, r := range results {
		if t := r.Type(); t != core.TypeNull {
			out.Typ = t
			break
		}
	}
	return out, nil
}

func (b *binder) bindExprs(exprs []core.Expr, ctx *bindCtx) ([]plan.Expr, error) {
	out := make([]plan.Expr, len(exprs))
	for i, e := range exprs {
		bound, err := b.bindExpr(e, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = bound
	}
	return out, nil
}

func bindLiteral(l *core.Literal) (plan.Expr, error) {
	switch l.Type {
	case core.LiteralNull:
		return &plan.LiteralExpr{Value: nil}, nil
	case core.LiteralBool:
		return &plan.LiteralExpr{Value: l.Value == "true"}, nil
	case core.LiteralString:
		return &plan.LiteralExpr{Value: l.Value}, nil
	}
	if i, err := strconv.ParseInt(l.Value, 10, 64); err == nil {
		return &plan.LiteralExpr{Value: i}, nil
	}
	f, err := strconv.ParseFloat(l.Value, 64)
	if err != nil {
		return nil, &core.ValidationError{Message: fmt.Sprintf("invalid number %s", l.Value)}
	}
	return &plan.LiteralExpr{Value: f}, nil
}

// walkExpr visits e depth-first. Returning false from fn skips the children
// of the visited expression.
func walkExpr(e core.Expr, fn func(core.Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *core.ParenExpr:
		walkExpr(x.Expr, fn)
	case *core.BinaryExpr:
		walkExpr(x.Left, fn)
		walkExpr(x.Right, fn)
	case *core.UnaryExpr:
		walkExpr(x.Expr, fn)
	case *core.FuncCall:
		for _, a := range x.Args {
			walkExpr(a, fn)
		}
	case *core.CaseExpr:
		walkExpr(x.Operand, fn)
		for _, w := range x.Whens {
			walkExpr(w.Condition, fn)
			walkExpr(w.Result, fn)
		}
		walkExpr(x.Else, fn)
	case *core.CastExpr:
		walkExpr(x.Expr, fn)
	case *core.InExpr:
		walkExpr(x.Expr, fn)
		for _, v := range x.Values {
			walkExpr(v, fn)
		}
	case *core.BetweenExpr:
		walkExpr(x.Expr, fn)
		walkExpr(x.Low, fn)
		walkExpr(x.High, fn)
	case *core.IsNullExpr:
		walkExpr(x.Expr, fn)
	case *core.LikeExpr:
		walkExpr(x.Expr, fn)
		walkExpr(x.Pattern, fn)
	}
}
