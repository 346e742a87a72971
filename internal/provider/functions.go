package provider

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	starlarkx "github.com/leapstack-labs/flowsql/internal/starlark"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/functions"
)

// scalarRef calls a Starlark function per row. NULL arguments arrive as
// None. A declared result type casts the returned value.
type scalarRef struct {
	name   string
	fn     starlark.Callable
	output core.Type
	pool   *starlarkx.ThreadPool
}

var _ functions.Ref = (*scalarRef)(nil)

func newScalarRef(name string, fn starlark.Callable, output core.Type, pool *starlarkx.ThreadPool) *scalarRef {
	return &scalarRef{name: name, fn: fn, output: output, pool: pool}
}

func (r *scalarRef) Invoke(args []any) (any, error) {
	sargs, err := starlarkx.ToStarlarkTuple(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	v, err := r.pool.Call(r.name, r.fn, sargs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	out, err := starlarkx.ToGo(v)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", r.name, err)
	}
	if out == nil || r.output == core.TypeAny {
		return out, nil
	}
	return core.Cast(out, r.output)
}

func (r *scalarRef) Arity() (int, bool) { return arity(r.fn) }

func (r *scalarRef) ReturnType() core.Type { return r.output }

func (r *scalarRef) String() string {
	return fmt.Sprintf("%s(%s) -> %s", r.name, params(r.fn), r.output)
}

// arity returns the number of required positional parameters and whether
// more may be passed.
func arity(c starlark.Callable) (int, bool) {
	f, ok := c.(*starlark.Function)
	if !ok {
		return 0, true
	}
	n := positional(f)
	required := n
	for i := 0; i < n; i++ {
		if f.ParamDefault(i) != nil {
			required = i
			break
		}
	}
	return required, f.HasVarargs() || required < n
}

func positional(f *starlark.Function) int {
	n := f.NumParams() - f.NumKwonlyParams()
	if f.HasVarargs() {
		n--
	}
	if f.HasKwargs() {
		n--
	}
	return n
}

func params(c starlark.Callable) string {
	f, ok := c.(*starlark.Function)
	if !ok {
		return "..."
	}
	n := positional(f)
	names := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		name, _ := f.Param(i)
		names = append(names, name)
	}
	if f.HasVarargs() {
		name, _ := f.Param(n)
		names = append(names, "*"+name)
	}
	return strings.Join(names, ", ")
}

// aggregateAcc carries a Starlark accumulator. The first failure sticks and
// is reported by ExtractOutput.
type aggregateAcc struct {
	val starlark.Value
	err error
}

// aggregateFn runs a script aggregate as a functions.CombineFn.
type aggregateFn struct {
	name string
	agg  *starlarkx.Aggregate
	pool *starlarkx.ThreadPool
}

var (
	_ functions.CombineFn = (*aggregateFn)(nil)
	_ functions.Typed     = (*aggregateFn)(nil)
)

func newAggregateFn(name string, agg *starlarkx.Aggregate, pool *starlarkx.ThreadPool) *aggregateFn {
	return &aggregateFn{name: name, agg: agg, pool: pool}
}

func (a *aggregateFn) call(step string, fn starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	v, err := a.pool.Call(a.name, fn, args)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.name, step, err)
	}
	return v, nil
}

func (a *aggregateFn) CreateAccumulator() any {
	v, err := a.call("create", a.agg.Create, nil)
	return &aggregateAcc{val: v, err: err}
}

func (a *aggregateFn) AddInput(acc any, in ...any) any {
	s := acc.(*aggregateAcc)
	if s.err != nil {
		return s
	}
	args, err := starlarkx.ToStarlarkTuple(in)
	if err != nil {
		s.err = fmt.Errorf("%s add: %w", a.name, err)
		return s
	}
	s.val, s.err = a.call("add", a.agg.Add, append(starlark.Tuple{s.val}, args...))
	return s
}

func (a *aggregateFn) MergeAccumulators(accs ...any) any {
	out := accs[0].(*aggregateAcc)
	for _, acc := range accs[1:] {
		next := acc.(*aggregateAcc)
		switch {
		case out.err != nil:
			return out
		case next.err != nil:
			return next
		}
		out.val, out.err = a.call("merge", a.agg.Merge, starlark.Tuple{out.val, next.val})
	}
	return out
}

// ExtractOutput returns the result, or the error that stopped the
// aggregate.
func (a *aggregateFn) ExtractOutput(acc any) any {
	s := acc.(*aggregateAcc)
	if s.err != nil {
		return s.err
	}
	v := s.val
	if a.agg.Extract != nil {
		var err error
		if v, err = a.call("extract", a.agg.Extract, starlark.Tuple{v}); err != nil {
			return err
		}
	}
	out, err := starlarkx.ToGo(v)
	if err != nil {
		return fmt.Errorf("%s result: %w", a.name, err)
	}
	if out == nil || a.agg.Output == core.TypeAny {
		return out
	}
	if out, err = core.Cast(out, a.agg.Output); err != nil {
		return fmt.Errorf("%s result: %w", a.name, err)
	}
	return out
}

func (a *aggregateFn) OutputType([]core.Type) core.Type { return a.agg.Output }

func (a *aggregateFn) String() string {
	return fmt.Sprintf("%s(%s) -> %s", a.name, params(a.agg.Add), a.agg.Output)
}
