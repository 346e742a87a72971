// Package sqlflow compiles a SQL query over one or more record streams into
// dataflow transforms.
//
// A Transform is an immutable query specification: the query text plus the
// scalar and aggregate functions it may call. Every With/Register method
// returns a new Transform, so one base specification can be specialized and
// shared between goroutines without locking.
//
//	t, err := sqlflow.Query("SELECT DOUBLE(c1) FROM PCOLLECTION")
//	t, err = t.RegisterScalarFunction("DOUBLE", Doubler{}, "")
//	out, err := t.Expand(p, input)
package sqlflow

import (
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/functions"
)

// ScalarRegistration binds a scalar function name to its implementation.
type ScalarRegistration struct {
	Name string
	Ref  functions.Ref
}

// AggregateRegistration binds an aggregate function name to its reducer.
type AggregateRegistration struct {
	Name string
	Fn   functions.CombineFn
}

// Transform is an immutable SQL query specification.
type Transform struct {
	query      string
	scalars    []ScalarRegistration
	aggregates []AggregateRegistration
	autoLoad   bool
}

// Query creates a specification for query with no registered functions and
// auto-load disabled. Blank query text is a *core.ConfigError.
func Query(query string) (*Transform, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &core.ConfigError{Op: "create query", Message: "query text is empty"}
	}
	return &Transform{query: query}, nil
}

// MustQuery is like Query but panics on error.
func MustQuery(query string) *Transform {
	t, err := Query(query)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Transform) clone() *Transform {
	return &Transform{
		query:      t.query,
		scalars:    append([]ScalarRegistration(nil), t.scalars...),
		aggregates: append([]AggregateRegistration(nil), t.aggregates...),
		autoLoad:   t.autoLoad,
	}
}

// QueryString returns the query text.
func (t *Transform) QueryString() string { return t.query }

// AutoFunctionLoad reports whether registered function providers are loaded
// at compile time.
func (t *Transform) AutoFunctionLoad() bool { return t.autoLoad }

// ScalarFunctions returns the scalar registrations in registration order.
func (t *Transform) ScalarFunctions() []ScalarRegistration {
	return append([]ScalarRegistration(nil), t.scalars...)
}

// AggregateFunctions returns the aggregate registrations in registration order.
func (t *Transform) AggregateFunctions() []AggregateRegistration {
	return append([]AggregateRegistration(nil), t.aggregates...)
}

// WithAutoFunctionLoad returns a copy with the auto-load flag set to enabled.
func (t *Transform) WithAutoFunctionLoad(enabled bool) *Transform {
	next := t.clone()
	next.autoLoad = enabled
	return next
}

// RegisterScalarFunction returns a copy with a scalar function implemented by
// method on the type of typ. An empty method selects Eval. The method is
// resolved now; the receiver is instantiated on every call.
func (t *Transform) RegisterScalarFunction(name string, typ any, method string) (*Transform, error) {
	const op = "register scalar function"
	if name == "" {
		return nil, &core.ConfigError{Op: op, Message: "function name is empty"}
	}
	ref, err := functions.NewMethodRef(typ, method)
	if err != nil {
		return nil, err
	}
	return t.withScalar(name, ref), nil
}

// RegisterScalarFunc returns a copy with a scalar function backed by the Apply
// method of fn's type. Only the type of fn is kept: each call runs Apply on
// a new zero value, so fn must not rely on captured state.
func (t *Transform) RegisterScalarFunc(name string, fn functions.Callable) (*Transform, error) {
	const op = "register scalar function"
	if name == "" {
		return nil, &core.ConfigError{Op: op, Message: "function name is empty"}
	}
	ref, err := functions.NewCallableRef(fn)
	if err != nil {
		return nil, err
	}
	return t.withScalar(name, ref), nil
}

// RegisterScalarRef returns a copy with a scalar function backed by an
// already resolved reference, such as a functions.FuncRef.
func (t *Transform) RegisterScalarRef(name string, ref functions.Ref) (*Transform, error) {
	const op = "register scalar function"
	switch {
	case name == "":
		return nil, &core.ConfigError{Op: op, Message: "function name is empty"}
	case ref == nil:
		return nil, &core.ConfigError{Op: op, Message: "function " + name + " has no implementation"}
	}
	return t.withScalar(name, ref), nil
}

func (t *Transform) withScalar(name string, ref functions.Ref) *Transform {
	next := t.clone()
	next.scalars = append(next.scalars, ScalarRegistration{Name: name, Ref: ref})
	return next
}

// RegisterAggregateFunction returns a copy with an aggregate function.
func (t *Transform) RegisterAggregateFunction(name string, fn functions.CombineFn) (*Transform, error) {
	const op = "register aggregate function"
	switch {
	case name == "":
		return nil, &core.ConfigError{Op: op, Message: "function name is empty"}
	case fn == nil:
		return nil, &core.ConfigError{Op: op, Message: "function " + name + " has no reducer"}
	}
	next := t.clone()
	next.aggregates = append(next.aggregates, AggregateRegistration{Name: name, Fn: fn})
	return next, nil
}

// Expand compiles t against input into p. See Compile.
func (t *Transform) Expand(p *dataflow.Pipeline, input Input, opts ...Option) (*dataflow.Stream, error) {
	return Compile(p, t, input, opts...)
}
