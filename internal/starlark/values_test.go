package starlark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/flowsql/internal/testutil"
	"github.com/leapstack-labs/flowsql/pkg/core"
)

func TestToStarlark(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "None"},
		{"string", "hi", `"hi"`},
		{"int", 3, "3"},
		{"int64", int64(-7), "-7"},
		{"float", 1.5, "1.5"},
		{"bool", true, "True"},
		{"time", ts, "2024-05-01 12:00:00 +0000 UTC"},
		{"strings", []string{"a"}, `["a"]`},
		{"list", []any{int64(1), nil}, "[1, None]"},
		{"map", map[string]any{"k": "v"}, `{"k": "v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ToStarlark(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}

	_, err := ToStarlark(struct{}{})
	assert.EqualError(t, err, "unsupported type: struct {}")

	_, err = ToStarlarkTuple([]any{int64(1), make(chan int)})
	assert.EqualError(t, err, "argument 2: unsupported type: chan int")
}

func TestToGo(t *testing.T) {
	big := starlark.MakeInt(1).Lsh(70)

	tests := []struct {
		name    string
		in      starlark.Value
		want    any
		wantErr string
	}{
		{name: "none", in: starlark.None, want: nil},
		{name: "string", in: starlark.String("x"), want: "x"},
		{name: "int", in: starlark.MakeInt(42), want: int64(42)},
		{name: "float", in: starlark.Float(2.5), want: 2.5},
		{name: "bool", in: starlark.False, want: false},
		{name: "tuple", in: starlark.Tuple{starlark.MakeInt(1), starlark.String("a")}, want: []any{int64(1), "a"}},
		{name: "list", in: starlark.NewList([]starlark.Value{starlark.None}), want: []any{nil}},
		{name: "overflow", in: big, wantErr: "overflows BIGINT"},
		{name: "set", in: starlark.NewSet(0), wantErr: "cannot convert set to a SQL value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGo(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	dict := starlark.NewDict(1)
	require.NoError(t, dict.SetKey(starlark.MakeInt(1), starlark.None))
	_, err := ToGo(dict)
	assert.EqualError(t, err, "dict key must be string, got int")
}

func TestRoundTripTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	v, err := ToStarlark(ts)
	require.NoError(t, err)
	back, err := ToGo(v)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back.(time.Time)))
}

func exec(t *testing.T, src string) starlark.StringDict {
	t.Helper()
	thread := &starlark.Thread{Name: t.Name()}
	globals, err := starlark.ExecFile(thread, "test.star", src, Predeclared()) //nolint:staticcheck // SA1019: ExecFileOptions is not needed here
	require.NoError(t, err)
	return globals
}

func TestPredeclared(t *testing.T) {
	globals := exec(t, `
def _add(acc, x):
    return acc + x

total = aggregate(lambda: 0, _add, lambda a, b: a + b, returns = "BIGINT")
upper = scalar(lambda s: s.upper(), returns = "VARCHAR")
pt = struct(x = 1)
root = math.sqrt(16)
encoded = json.encode({"a": 1})
`)

	agg, ok := globals["total"].(*Aggregate)
	require.True(t, ok)
	assert.Equal(t, core.TypeInt, agg.Output)
	assert.Nil(t, agg.Extract)

	sc, ok := globals["upper"].(*Scalar)
	require.True(t, ok)
	assert.Equal(t, core.TypeString, sc.Output)

	assert.Equal(t, starlark.Float(4), globals["root"])
	assert.Equal(t, starlark.String(`{"a":1}`), globals["encoded"])
}

func TestPredeclared_UnknownType(t *testing.T) {
	thread := &starlark.Thread{Name: t.Name()}
	_, err := starlark.ExecFile(thread, "bad.star", `x = scalar(len, returns = "BLOB")`, Predeclared()) //nolint:staticcheck // see above
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scalar: unknown SQL type "BLOB"`)
}

func TestThreadPool(t *testing.T) {
	pool := NewThreadPool(testutil.NewTestLogger(t), WithMaxIdle(1))
	globals := exec(t, "def twice(x):\n    print('twice', x)\n    return x * 2\n")
	twice := globals["twice"].(starlark.Callable)

	for i := range 3 {
		v, err := pool.Call("twice", twice, starlark.Tuple{starlark.MakeInt(i)})
		require.NoError(t, err)
		assert.Equal(t, starlark.MakeInt(i*2), v)
	}
	assert.Equal(t, 1, pool.Idle())

	a, b := pool.acquire("a"), pool.acquire("b")
	assert.NotSame(t, a, b)
	pool.release(a, nil)
	pool.release(b, nil)
	assert.Equal(t, 1, pool.Idle(), "pool keeps at most maxIdle threads")
}

func TestThreadPool_StepLimit(t *testing.T) {
	pool := NewThreadPool(testutil.NewTestLogger(t), WithStepLimit(10_000))
	globals := exec(t, "def spin(n):\n    t = 0\n    for i in range(n):\n        t += i\n    return t\n")
	spin := globals["spin"].(starlark.Callable)

	// Each call gets its own budget.
	for range 5 {
		v, err := pool.Call("spin", spin, starlark.Tuple{starlark.MakeInt(50)})
		require.NoError(t, err)
		assert.Equal(t, starlark.MakeInt(1225), v)
	}

	idle := pool.Idle()
	_, err := pool.Call("spin", spin, starlark.Tuple{starlark.MakeInt(1_000_000)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
	assert.Equal(t, idle-1, pool.Idle(), "cancelled thread is not reused")

	unbounded := NewThreadPool(nil, WithStepLimit(0))
	_, err = unbounded.Call("spin", spin, starlark.Tuple{starlark.MakeInt(100_000)})
	assert.NoError(t, err)
}

func TestThreadPool_Exec(t *testing.T) {
	pool := NewThreadPool(testutil.NewTestLogger(t))
	globals, err := pool.Exec("fns.star", []byte("def inc(x):\n    return x + 1\n"), Predeclared())
	require.NoError(t, err)
	assert.Contains(t, globals.Keys(), "inc")
	assert.Equal(t, 1, pool.Idle())

	_, err = pool.Exec("bad.star", []byte("x = "), Predeclared())
	require.Error(t, err)
	assert.Equal(t, 1, pool.Idle())
}
