package dataflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/testutil"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/functions"
)

var numbers = core.NewSchema(
	core.Field{Name: "k", Type: core.TypeString},
	core.Field{Name: "v", Type: core.TypeInt},
)

func newPipeline(t *testing.T, opts ...dataflow.PipelineOption) *dataflow.Pipeline {
	t.Helper()
	return dataflow.NewPipeline(append([]dataflow.PipelineOption{dataflow.WithLogger(testutil.NewTestLogger(t))}, opts...)...)
}

func create(t *testing.T, p *dataflow.Pipeline, rows ...core.Row) *dataflow.Stream {
	t.Helper()
	s, err := dataflow.Create(p, "input", numbers, rows)
	require.NoError(t, err)
	return s
}

func run(t *testing.T, p *dataflow.Pipeline) {
	t.Helper()
	require.NoError(t, p.Run(context.Background()))
}

func TestCreateNormalizesAndChecksArity(t *testing.T) {
	p := newPipeline(t)
	_, err := dataflow.Create(p, "bad", numbers, []core.Row{{"a"}})
	require.Error(t, err)

	s := create(t, p, core.Row{"a", 1}, core.Row{"b", int32(2)})
	out := dataflow.Collect(s)
	run(t, p)

	assert.Equal(t, []core.Row{{"a", int64(1)}, {"b", int64(2)}}, out.Rows())
	assert.Equal(t, []map[string]any{{"k": "a", "v": int64(1)}, {"k": "b", "v": int64(2)}}, out.Maps())
}

func TestRunOnce(t *testing.T) {
	p := newPipeline(t)
	dataflow.Collect(create(t, p, core.Row{"a", 1}))
	run(t, p)
	assert.True(t, p.Ran())
	assert.ErrorIs(t, p.Run(context.Background()), dataflow.ErrAlreadyRun)
}

func TestSingleInputOperatorsPreserveOrder(t *testing.T) {
	p := newPipeline(t, dataflow.WithBufferSize(0))
	s := create(t, p,
		core.Row{"a", 1}, core.Row{"b", 2}, core.Row{"a", 3}, core.Row{"c", 4}, core.Row{"b", 2})

	mapped := dataflow.Map(s, "double", numbers, func(r core.Row) (core.Row, error) {
		return core.Row{r[0], r[1].(int64) * 2}, nil
	})
	filtered := dataflow.Filter(mapped, "big", func(r core.Row) (bool, error) {
		return r[1].(int64) > 2, nil
	})
	limited := dataflow.Limit(filtered, "", 2, 1)
	distinct := dataflow.Distinct(s, "")
	exploded := dataflow.ParDo(s, "twice", numbers, func(_ context.Context, r core.Row, emit dataflow.Emitter) error {
		if err := emit(r); err != nil {
			return err
		}
		return emit(r)
	})

	fOut := dataflow.Collect(filtered)
	lOut := dataflow.Collect(limited)
	dOut := dataflow.Collect(distinct)
	eOut := dataflow.Collect(exploded)
	run(t, p)

	assert.Equal(t, []core.Row{{"b", int64(4)}, {"a", int64(6)}, {"c", int64(8)}, {"b", int64(4)}}, fOut.Rows())
	assert.Equal(t, []core.Row{{"a", int64(6)}, {"c", int64(8)}}, lOut.Rows())
	assert.Equal(t, []core.Row{{"a", int64(1)}, {"b", int64(2)}, {"a", int64(3)}, {"c", int64(4)}}, dOut.Rows())
	assert.Len(t, eOut.Rows(), 10)
}

func TestSortIsStable(t *testing.T) {
	p := newPipeline(t)
	s := create(t, p, core.Row{"b", 1}, core.Row{"a", 2}, core.Row{"b", 0}, core.Row{"a", 1})
	sorted := dataflow.Sort(s, "", func(r core.Row) ([]any, error) { return []any{r[0]}, nil },
		func(a, b []any) int { return core.CompareNullsLast(a[0], b[0]) })
	out := dataflow.Collect(sorted)
	run(t, p)

	assert.Equal(t, []core.Row{{"a", int64(2)}, {"a", int64(1)}, {"b", int64(1)}, {"b", int64(0)}}, out.Rows())
}

func TestCombinePerKey(t *testing.T) {
	for _, bundle := range []int{1, 2, 1024} {
		p := newPipeline(t, dataflow.WithBundleSize(bundle))
		s := create(t, p, core.Row{"b", 1}, core.Row{"a", 2}, core.Row{"b", 3}, core.Row{"a", nil}, core.Row{"b", 5})

		value := func(r core.Row) ([]any, error) { return []any{r[1]}, nil }
		schema := core.NewSchema(
			core.Field{Name: "k", Type: core.TypeString},
			core.Field{Name: "total", Type: core.TypeInt},
			core.Field{Name: "n", Type: core.TypeInt},
		)
		grouped := dataflow.CombinePerKey(s, "", schema,
			func(r core.Row) ([]any, error) { return []any{r[0]}, nil },
			[]dataflow.Combiner{{Fn: functions.Sum, Args: value}, {Fn: functions.Count}})
		out := dataflow.Collect(grouped)
		run(t, p)

		assert.Equal(t, []core.Row{{"b", int64(9), int64(3)}, {"a", int64(2), int64(2)}}, out.Rows(), "bundle %d", bundle)
	}
}

func TestCombineGloballyOnEmptyInput(t *testing.T) {
	p := newPipeline(t)
	s := create(t, p)
	schema := core.NewSchema(core.Field{Name: "n", Type: core.TypeInt}, core.Field{Name: "s", Type: core.TypeInt})
	global := dataflow.CombinePerKey(s, "", schema, nil, []dataflow.Combiner{
		{Fn: functions.Count},
		{Fn: functions.Sum, Args: func(r core.Row) ([]any, error) { return []any{r[1]}, nil }},
	})
	out := dataflow.Collect(global)
	run(t, p)

	assert.Equal(t, []core.Row{{int64(0), nil}}, out.Rows())
}

func TestCombineFailsOnExtractError(t *testing.T) {
	p := newPipeline(t)
	s := create(t, p, core.Row{"a", 1})
	failing := functions.Reducer[int]{
		Create:  func() int { return 0 },
		Add:     func(acc int, _ ...any) int { return acc + 1 },
		Merge:   func(accs ...int) int { return accs[0] + accs[1] },
		Extract: func(int) any { return errors.New("boom") },
	}
	dataflow.Collect(dataflow.CombinePerKey(s, "agg", core.NewSchema(core.Field{Name: "x"}), nil,
		[]dataflow.Combiner{{Fn: failing}}))

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to combine agg: boom")
}

func TestHashJoin(t *testing.T) {
	names := core.NewSchema(core.Field{Name: "id", Type: core.TypeInt}, core.Field{Name: "name", Type: core.TypeString})
	key0 := func(r core.Row) ([]any, error) { return []any{r[0]}, nil }

	t.Run("inner and left", func(t *testing.T) {
		p := newPipeline(t)
		left, err := dataflow.Create(p, "l", names, []core.Row{{1, "a"}, {2, "b"}, {nil, "c"}})
		require.NoError(t, err)
		right, err := dataflow.Create(p, "r", names, []core.Row{{1, "x"}, {1, "y"}, {nil, "z"}})
		require.NoError(t, err)

		inner := dataflow.Collect(dataflow.HashJoin(left, right, "", dataflow.JoinSpec{LeftKey: key0, RightKey: key0}))
		outer := dataflow.Collect(dataflow.HashJoin(left, right, "", dataflow.JoinSpec{LeftKey: key0, RightKey: key0, Outer: true}))
		run(t, p)

		assert.Equal(t, []core.Row{{int64(1), "a", int64(1), "x"}, {int64(1), "a", int64(1), "y"}}, inner.Rows())
		assert.Equal(t, []core.Row{
			{int64(1), "a", int64(1), "x"},
			{int64(1), "a", int64(1), "y"},
			{int64(2), "b", nil, nil},
			{nil, "c", nil, nil},
		}, outer.Rows())
	})

	t.Run("self join with residual", func(t *testing.T) {
		p := newPipeline(t, dataflow.WithBufferSize(0))
		s, err := dataflow.Create(p, "s", names, []core.Row{{1, "a"}, {2, "b"}, {3, "c"}})
		require.NoError(t, err)

		cross := dataflow.HashJoin(s, s, "", dataflow.JoinSpec{
			Residual: func(r core.Row) (bool, error) { return r[0].(int64) < r[2].(int64), nil },
		})
		out := dataflow.Collect(cross)
		run(t, p)

		assert.Equal(t, 4, out.Schema().Len())
		assert.Len(t, out.Rows(), 3)
	})
}

func TestFlatten(t *testing.T) {
	p := newPipeline(t, dataflow.WithBufferSize(0))
	a := create(t, p, core.Row{"a", 1})
	b := create(t, p, core.Row{"b", 2}, core.Row{"b", 3})

	flat, err := dataflow.Flatten(p, "", a, b, a)
	require.NoError(t, err)
	out := dataflow.Collect(flat)
	run(t, p)

	assert.Equal(t, []core.Row{{"a", int64(1)}, {"b", int64(2)}, {"b", int64(3)}, {"a", int64(1)}}, out.Rows())

	narrow := core.NewSchema(core.Field{Name: "x", Type: core.TypeInt})
	p2 := newPipeline(t)
	c, err := dataflow.Create(p2, "", narrow, nil)
	require.NoError(t, err)
	_, err = dataflow.Flatten(p2, "", create(t, p2), c)
	assert.Error(t, err)
}

func TestSourceErrorCancelsPipeline(t *testing.T) {
	p := newPipeline(t)
	boom := errors.New("boom")
	s := dataflow.FromSource(p, "failing", numbers, func(ctx context.Context, emit dataflow.Emitter) error {
		if err := emit(core.Row{"a", 1}); err != nil {
			return err
		}
		return boom
	})
	dataflow.Collect(dataflow.Limit(s, "", 10, 0))

	err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `Source "failing"`)
}

func TestPanickingOperatorFailsRun(t *testing.T) {
	p := newPipeline(t)
	s := dataflow.FromSource(p, "panicky", numbers, func(ctx context.Context, emit dataflow.Emitter) error {
		if err := emit(core.Row{"a", 1}); err != nil {
			return err
		}
		var rows []core.Row
		return emit(rows[3])
	})
	dataflow.Collect(s)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Source "panicky": panic: runtime error: index out of range`)
}

func TestLimitStopsEarlyWithoutDeadlock(t *testing.T) {
	p := newPipeline(t, dataflow.WithBufferSize(0))
	s := dataflow.FromSource(p, "counter", numbers, func(ctx context.Context, emit dataflow.Emitter) error {
		for i := range 1000 {
			if err := emit(core.Row{"n", i}); err != nil {
				return err
			}
		}
		return nil
	})
	out := dataflow.Collect(dataflow.Limit(s, "", 3, 0))
	run(t, p)
	assert.Len(t, out.Rows(), 3)
}

func TestTaggedIsImmutable(t *testing.T) {
	p := newPipeline(t)
	a := create(t, p)
	base := dataflow.NewTagged().With("A", a)
	extended := base.With("B", a)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
	assert.Equal(t, "B", extended.Entries()[1].Tag)
}

func TestNodesAndPipelineMixing(t *testing.T) {
	p := newPipeline(t)
	s := create(t, p)
	dataflow.Collect(dataflow.Distinct(s, "dedupe"))

	nodes := p.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "Create", nodes[0].Kind)
	assert.Equal(t, "dedupe", nodes[1].Name)
	assert.Equal(t, nodes[0].ID, nodes[1].Inputs[0])
	assert.NotEqual(t, p.ID(), newPipeline(t).ID())

	other := newPipeline(t)
	o := create(t, other)
	assert.Panics(t, func() { dataflow.HashJoin(s, o, "", dataflow.JoinSpec{}) })
}
