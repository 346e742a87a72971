package functions

import (
	"github.com/leapstack-labs/flowsql/pkg/core"
)

// CombineFn is an associative reducer used for aggregate functions.
// Accumulators are opaque to the runtime; AddInput and MergeAccumulators may
// mutate and return the accumulator they are given.
type CombineFn interface {
	CreateAccumulator() any
	// AddInput folds one row. For COUNT(*) in is empty.
	AddInput(acc any, in ...any) any
	MergeAccumulators(accs ...any) any
	ExtractOutput(acc any) any
}

// Typed is optionally implemented by reducers that know their result type.
type Typed interface {
	OutputType(in []core.Type) core.Type
}

// Reducer adapts plain functions to a CombineFn with a typed accumulator.
type Reducer[A any] struct {
	Create  func() A
	Add     func(acc A, in ...any) A
	Merge   func(accs ...A) A
	Extract func(acc A) any
	// Output is the result type; zero means TypeAny.
	Output core.Type
}

// CreateAccumulator implements CombineFn.
func (r Reducer[A]) CreateAccumulator() any { return r.Create() }

// AddInput implements CombineFn.
func (r Reducer[A]) AddInput(acc any, in ...any) any { return r.Add(acc.(A), in...) }

// MergeAccumulators implements CombineFn.
func (r Reducer[A]) MergeAccumulators(accs ...any) any {
	typed := make([]A, len(accs))
	for i, a := range accs {
		typed[i] = a.(A)
	}
	return r.Merge(typed...)
}

// ExtractOutput implements CombineFn.
func (r Reducer[A]) ExtractOutput(acc any) any { return r.Extract(acc.(A)) }

// OutputType implements Typed.
func (r Reducer[A]) OutputType([]core.Type) core.Type { return r.Output }

// OutputType returns the result type of fn for the given input types.
func OutputType(fn CombineFn, in []core.Type) core.Type {
	if t, ok := fn.(Typed); ok {
		return t.OutputType(in)
	}
	return core.TypeAny
}

// ---------- DISTINCT ----------

type distinctAcc struct {
	seen   map[string]struct{}
	values [][]any
}

type distinctFn struct {
	inner CombineFn
}

// Distinct wraps fn so that each distinct input tuple is folded once.
func Distinct(fn CombineFn) CombineFn {
	return distinctFn{inner: fn}
}

func (d distinctFn) CreateAccumulator() any {
	return &distinctAcc{seen: make(map[string]struct{})}
}

func (d distinctFn) AddInput(acc any, in ...any) any {
	a := acc.(*distinctAcc)
	key := core.RowKey(in)
	if _, ok := a.seen[key]; ok {
		return a
	}
	a.seen[key] = struct{}{}
	a.values = append(a.values, append([]any(nil), in...))
	return a
}

func (d distinctFn) MergeAccumulators(accs ...any) any {
	out := d.CreateAccumulator().(*distinctAcc)
	for _, acc := range accs {
		for _, v := range acc.(*distinctAcc).values {
			d.AddInput(out, v...)
		}
	}
	return out
}

func (d distinctFn) ExtractOutput(acc any) any {
	inner := d.inner.CreateAccumulator()
	for _, v := range acc.(*distinctAcc).values {
		inner = d.inner.AddInput(inner, v...)
	}
	return d.inner.ExtractOutput(inner)
}

func (d distinctFn) OutputType(in []core.Type) core.Type {
	return OutputType(d.inner, in)
}

// ---------- builtin aggregates ----------

// Count counts rows (no input) or non-NULL values.
var Count CombineFn = Reducer[int64]{
	Create: func() int64 { return 0 },
	Add: func(n int64, in ...any) int64 {
		if len(in) == 0 || in[0] != nil {
			n++
		}
		return n
	},
	Merge: func(ns ...int64) int64 {
		var total int64
		for _, n := range ns {
			total += n
		}
		return total
	},
	Extract: func(n int64) any { return n },
	Output:  core.TypeInt,
}

type sumAcc struct {
	ints    int64
	floats  float64
	isFloat bool
	seen    bool
}

func (a sumAcc) add(v any) sumAcc {
	switch x := v.(type) {
	case int64:
		a.ints += x
		a.seen = true
	case float64:
		a.floats += x
		a.isFloat, a.seen = true, true
	default:
		if f, ok := core.ToFloat(x); ok && x != nil {
			a.floats += f
			a.isFloat, a.seen = true, true
		}
	}
	return a
}

func (a sumAcc) merge(b sumAcc) sumAcc {
	a.ints += b.ints
	a.floats += b.floats
	a.isFloat = a.isFloat || b.isFloat
	a.seen = a.seen || b.seen
	return a
}

func (a sumAcc) value() any {
	switch {
	case !a.seen:
		return nil
	case a.isFloat:
		return a.floats + float64(a.ints)
	default:
		return a.ints
	}
}

type sumFn struct{}

// Sum adds numeric values. The result stays BIGINT until a DOUBLE is seen;
// an all-NULL input yields NULL.
var Sum CombineFn = sumFn{}

func (sumFn) CreateAccumulator() any { return sumAcc{} }

func (sumFn) AddInput(acc any, in ...any) any {
	if len(in) == 0 {
		return acc
	}
	return acc.(sumAcc).add(in[0])
}

func (sumFn) MergeAccumulators(accs ...any) any {
	var out sumAcc
	for _, a := range accs {
		out = out.merge(a.(sumAcc))
	}
	return out
}

func (sumFn) ExtractOutput(acc any) any { return acc.(sumAcc).value() }

func (sumFn) OutputType(in []core.Type) core.Type {
	if len(in) == 1 && in[0] == core.TypeInt {
		return core.TypeInt
	}
	if len(in) == 1 && in[0] == core.TypeFloat {
		return core.TypeFloat
	}
	return core.TypeAny
}

type avgAcc struct {
	sum   float64
	count int64
}

// Avg averages numeric values as DOUBLE; all-NULL input yields NULL.
var Avg CombineFn = Reducer[avgAcc]{
	Create: func() avgAcc { return avgAcc{} },
	Add: func(a avgAcc, in ...any) avgAcc {
		if len(in) == 0 || in[0] == nil {
			return a
		}
		if f, ok := core.ToFloat(in[0]); ok {
			a.sum += f
			a.count++
		}
		return a
	},
	Merge: func(accs ...avgAcc) avgAcc {
		var out avgAcc
		for _, a := range accs {
			out.sum += a.sum
			out.count += a.count
		}
		return out
	},
	Extract: func(a avgAcc) any {
		if a.count == 0 {
			return nil
		}
		return a.sum / float64(a.count)
	},
	Output: core.TypeFloat,
}

type extremumFn struct {
	// keep reports whether candidate replaces current given their comparison.
	keep func(cmp int) bool
}

// Min returns the smallest non-NULL value.
var Min CombineFn = extremumFn{keep: func(c int) bool { return c < 0 }}

// Max returns the largest non-NULL value.
var Max CombineFn = extremumFn{keep: func(c int) bool { return c > 0 }}

type extremumAcc struct {
	value any
}

func (e extremumFn) CreateAccumulator() any { return &extremumAcc{} }

func (e extremumFn) AddInput(acc any, in ...any) any {
	a := acc.(*extremumAcc)
	if len(in) == 0 || in[0] == nil {
		return a
	}
	if a.value == nil || e.keep(core.CompareNullsLast(in[0], a.value)) {
		a.value = in[0]
	}
	return a
}

func (e extremumFn) MergeAccumulators(accs ...any) any {
	out := &extremumAcc{}
	for _, acc := range accs {
		e.AddInput(out, acc.(*extremumAcc).value)
	}
	return out
}

func (e extremumFn) ExtractOutput(acc any) any { return acc.(*extremumAcc).value }

func (e extremumFn) OutputType(in []core.Type) core.Type {
	if len(in) == 1 {
		return in[0]
	}
	return core.TypeAny
}
