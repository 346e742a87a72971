package starlark

import (
	"fmt"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// Predeclared returns the globals visible to function scripts: the json,
// math and time modules, struct, and the scalar and aggregate constructors.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"json":      starlarkjson.Module,
		"math":      starlarkmath.Module,
		"time":      starlarktime.Module,
		"struct":    starlark.NewBuiltin("struct", starlarkstruct.Make),
		"scalar":    starlark.NewBuiltin("scalar", makeScalar),
		"aggregate": starlark.NewBuiltin("aggregate", makeAggregate),
	}
}

// Scalar is a script function with a declared SQL result type, created by
// scalar(fn, returns="BIGINT").
type Scalar struct {
	Fn     starlark.Callable
	Output core.Type
}

var _ starlark.Value = (*Scalar)(nil)

func (s *Scalar) String() string        { return fmt.Sprintf("<scalar %s %s>", s.Fn.Name(), s.Output) }
func (s *Scalar) Type() string          { return "scalar" }
func (s *Scalar) Freeze()               { s.Fn.Freeze() }
func (s *Scalar) Truth() starlark.Bool  { return starlark.True }
func (s *Scalar) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: scalar") }

// Aggregate is a reducer built from script functions, created by
// aggregate(create, add, merge, extract=None, returns="").
//
// create() returns a fresh accumulator; add(acc, *values) and merge(a, b)
// return the updated accumulator; extract(acc) returns the result and
// defaults to the accumulator itself.
type Aggregate struct {
	Create  starlark.Callable
	Add     starlark.Callable
	Merge   starlark.Callable
	Extract starlark.Callable // may be nil
	Output  core.Type
}

var _ starlark.Value = (*Aggregate)(nil)

func (a *Aggregate) String() string        { return "<aggregate>" }
func (a *Aggregate) Type() string          { return "aggregate" }
func (a *Aggregate) Truth() starlark.Bool  { return starlark.True }
func (a *Aggregate) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: aggregate") }

func (a *Aggregate) Freeze() {
	a.Create.Freeze()
	a.Add.Freeze()
	a.Merge.Freeze()
	if a.Extract != nil {
		a.Extract.Freeze()
	}
}

func makeScalar(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		fn      starlark.Callable
		returns string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn, "returns?", &returns); err != nil {
		return nil, err
	}
	out, err := parseReturns(b.Name(), returns)
	if err != nil {
		return nil, err
	}
	return &Scalar{Fn: fn, Output: out}, nil
}

func makeAggregate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		agg     Aggregate
		returns string
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"create", &agg.Create,
		"add", &agg.Add,
		"merge", &agg.Merge,
		"extract?", &agg.Extract,
		"returns?", &returns,
	); err != nil {
		return nil, err
	}
	out, err := parseReturns(b.Name(), returns)
	if err != nil {
		return nil, err
	}
	agg.Output = out
	return &agg, nil
}

func parseReturns(fn, name string) (core.Type, error) {
	t, ok := core.ParseTypeName(name)
	if !ok {
		return core.TypeAny, fmt.Errorf("%s: unknown SQL type %q", fn, name)
	}
	return t, nil
}
