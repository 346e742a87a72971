package env

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/testutil"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/dialects/duckdb"
	"github.com/leapstack-labs/flowsql/pkg/functions"
	"github.com/leapstack-labs/flowsql/pkg/plan"
)

func newTable(t *testing.T, p *dataflow.Pipeline, name string, fields ...core.Field) *Table {
	t.Helper()
	s, err := dataflow.Create(p, name, core.NewSchema(fields...), nil)
	require.NoError(t, err)
	return NewTable(name, s)
}

func testEnv(t *testing.T, opts Options) *Environment {
	t.Helper()
	p := dataflow.NewPipeline()
	orders := newTable(t, p, "orders",
		core.Field{Name: "id", Type: core.TypeInt},
		core.Field{Name: "customer_id", Type: core.TypeInt},
		core.Field{Name: "amount", Type: core.TypeFloat},
	)
	customers := newTable(t, p, "customers",
		core.Field{Name: "id", Type: core.TypeInt},
		core.Field{Name: "name", Type: core.TypeString},
	)
	if opts.Logger == nil {
		opts.Logger = testutil.NewTestLogger(t)
	}
	if opts.Providers == nil {
		opts.SkipRegistry = true
	}
	return CreateEnvironment("orders", map[string]*Table{
		"orders":    orders,
		"customers": customers,
	}, opts)
}

func TestParse_Schemas(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
		types []core.Type
	}{
		{
			name:  "star",
			query: "SELECT * FROM orders",
			want:  []string{"id", "customer_id", "amount"},
			types: []core.Type{core.TypeInt, core.TypeInt, core.TypeFloat},
		},
		{
			name:  "alias and expression names",
			query: "SELECT id AS order_id, amount * 2, UPPER('x') FROM orders",
			want:  []string{"order_id", "EXPR$1", "EXPR$2"},
			types: []core.Type{core.TypeInt, core.TypeFloat, core.TypeString},
		},
		{
			name:  "case folded identifiers",
			query: "SELECT ID, Amount FROM ORDERS",
			want:  []string{"ID", "Amount"},
			types: []core.Type{core.TypeInt, core.TypeFloat},
		},
		{
			name:  "group by",
			query: "SELECT customer_id, COUNT(*) AS n, SUM(amount) FROM orders GROUP BY customer_id",
			want:  []string{"customer_id", "n", "EXPR$2"},
			types: []core.Type{core.TypeInt, core.TypeInt, core.TypeFloat},
		},
		{
			name:  "global aggregate",
			query: "SELECT AVG(amount) AS avg_amount FROM orders",
			want:  []string{"avg_amount"},
			types: []core.Type{core.TypeFloat},
		},
		{
			name:  "join",
			query: "SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id",
			want:  []string{"id", "name"},
			types: []core.Type{core.TypeInt, core.TypeString},
		},
		{
			name:  "table star",
			query: "SELECT c.* FROM orders o JOIN customers c ON o.customer_id = c.id",
			want:  []string{"id", "name"},
			types: []core.Type{core.TypeInt, core.TypeString},
		},
		{
			name:  "no from",
			query: "SELECT 1 + 2 AS three",
			want:  []string{"three"},
			types: []core.Type{core.TypeInt},
		},
		{
			name:  "union all",
			query: "SELECT id FROM orders UNION ALL SELECT id FROM customers",
			want:  []string{"id"},
			types: []core.Type{core.TypeInt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnv(t, Options{})
			node, err := e.Parse(tt.query)
			require.NoError(t, err)
			schema := node.Schema()
			assert.Equal(t, tt.want, schema.Names())
			for i, typ := range tt.types {
				assert.Equal(t, typ, schema.Fields[i].Type, "field %s", tt.want[i])
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		unresolved string
		contains   string
	}{
		{name: "unknown table", query: "SELECT * FROM missing", unresolved: core.RefTable},
		{name: "unknown column", query: "SELECT nope FROM orders", unresolved: core.RefColumn},
		{name: "unknown qualifier", query: "SELECT x.id FROM orders", unresolved: core.RefColumn},
		{name: "unknown function", query: "SELECT DOUBLE(amount) FROM orders", unresolved: core.RefFunction},
		{name: "ambiguous column", query: "SELECT id FROM orders JOIN customers ON customer_id = customers.id", contains: "ambiguous"},
		{name: "ungrouped column", query: "SELECT id, COUNT(*) FROM orders", contains: "GROUP BY"},
		{name: "aggregate in where", query: "SELECT id FROM orders WHERE SUM(amount) > 1", contains: "not allowed in WHERE"},
		{name: "nested aggregate", query: "SELECT SUM(COUNT(*)) FROM orders", contains: "not allowed"},
		{name: "scalar arity", query: "SELECT UPPER(name, name) FROM customers", contains: "expects 1 arguments"},
		{name: "distinct on scalar", query: "SELECT UPPER(DISTINCT name) FROM customers", contains: "not an aggregate"},
		{name: "star in aggregate", query: "SELECT * FROM orders GROUP BY id", contains: "SELECT *"},
		{name: "union arity", query: "SELECT id, amount FROM orders UNION ALL SELECT id FROM customers", contains: "UNION ALL"},
		{name: "order position", query: "SELECT id FROM orders ORDER BY 3", contains: "not in select list"},
		{name: "distinct order by", query: "SELECT DISTINCT customer_id FROM orders ORDER BY amount", contains: "DISTINCT"},
		{name: "negative limit", query: "SELECT id FROM orders LIMIT -1", contains: "LIMIT"},
		{name: "unknown cast type", query: "SELECT CAST(id AS BLOB) FROM orders", contains: "unknown type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnv(t, Options{})
			_, err := e.Parse(tt.query)
			require.Error(t, err)
			if tt.unresolved != "" {
				var ure *core.UnresolvedReferenceError
				require.ErrorAs(t, err, &ure)
				assert.Equal(t, tt.unresolved, ure.Kind)
				return
			}
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	e := testEnv(t, Options{})
	_, err := e.Parse("SELECT FROM WHERE")
	require.Error(t, err)
	var ve *core.ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestParse_OrderByHiddenColumn(t *testing.T) {
	e := testEnv(t, Options{})
	node, err := e.Parse("SELECT id FROM orders ORDER BY amount DESC LIMIT 2")
	require.NoError(t, err)

	assert.Equal(t, []string{"id"}, node.Schema().Names())
	proj, ok := node.(*plan.Project)
	require.True(t, ok, "hidden sort columns are stripped by a final projection")
	limit, ok := proj.Input.(*plan.Limit)
	require.True(t, ok)
	assert.Equal(t, int64(2), limit.Count)
	sort, ok := limit.Input.(*plan.Sort)
	require.True(t, ok)
	require.Len(t, sort.Keys, 1)
	assert.True(t, sort.Keys[0].Desc)
	assert.True(t, sort.Keys[0].NullsFirst)
	assert.Equal(t, []string{"id", "$order0"}, sort.Schema().Names())
}

func TestParse_OrderByOutputColumn(t *testing.T) {
	e := testEnv(t, Options{})
	node, err := e.Parse("SELECT id, amount AS a FROM orders ORDER BY a, 1 NULLS FIRST")
	require.NoError(t, err)

	sort, ok := node.(*plan.Sort)
	require.True(t, ok)
	require.Len(t, sort.Keys, 2)
	assert.Equal(t, 1, sort.Keys[0].Expr.(*plan.ColumnExpr).Index)
	assert.False(t, sort.Keys[0].NullsFirst)
	assert.Equal(t, 0, sort.Keys[1].Expr.(*plan.ColumnExpr).Index)
	assert.True(t, sort.Keys[1].NullsFirst)
}

func TestParse_JoinKeys(t *testing.T) {
	e := testEnv(t, Options{})
	node, err := e.Parse(`SELECT o.id FROM orders o
		JOIN customers c ON c.id = o.customer_id AND o.amount > 10`)
	require.NoError(t, err)

	var join *plan.Join
	plan.Walk(node, func(n plan.Node) bool {
		if j, ok := n.(*plan.Join); ok {
			join = j
		}
		return true
	})
	require.NotNil(t, join)
	require.Len(t, join.LeftKeys, 1)
	assert.Equal(t, "o.customer_id", join.LeftKeys[0].String())
	assert.Equal(t, "c.id", join.RightKeys[0].String())
	require.NotNil(t, join.Residual)
	assert.Contains(t, join.Residual.String(), "o.amount")
}

func TestParse_JoinUsing(t *testing.T) {
	e := testEnv(t, Options{})
	node, err := e.Parse("SELECT * FROM orders JOIN customers USING (id)")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer_id", "amount", "id", "name"}, node.Schema().Names())
}

func TestParse_GroupByAliasAndPosition(t *testing.T) {
	e := testEnv(t, Options{})
	for _, q := range []string{
		"SELECT customer_id AS c, COUNT(*) FROM orders GROUP BY c",
		"SELECT customer_id AS c, COUNT(*) FROM orders GROUP BY 1",
		"SELECT customer_id + 1, COUNT(*) FROM orders GROUP BY customer_id + 1",
		"SELECT customer_id + 1, MAX(amount) FROM orders GROUP BY customer_id HAVING COUNT(*) > 1",
	} {
		_, err := e.Parse(q)
		assert.NoError(t, err, q)
	}
}

func TestParse_AggregateDeduplicated(t *testing.T) {
	e := testEnv(t, Options{})
	node, err := e.Parse("SELECT SUM(amount), SUM(amount) / COUNT(*) FROM orders HAVING SUM(amount) > 0")
	require.NoError(t, err)

	var agg *plan.Aggregate
	plan.Walk(node, func(n plan.Node) bool {
		if a, ok := n.(*plan.Aggregate); ok {
			agg = a
		}
		return true
	})
	require.NotNil(t, agg)
	assert.Len(t, agg.Aggs, 2)
	assert.Empty(t, agg.GroupBy)
}

func TestLookupTable_Ambiguous(t *testing.T) {
	p := dataflow.NewPipeline()
	a := newTable(t, p, "Items", core.Field{Name: "x", Type: core.TypeInt})
	b := newTable(t, p, "ITEMS", core.Field{Name: "x", Type: core.TypeInt})
	e := CreateEnvironment("Items", map[string]*Table{"Items": a, "ITEMS": b}, Options{SkipRegistry: true})

	_, err := e.Parse("SELECT x FROM Items")
	require.NoError(t, err, "exact match wins")

	_, err = e.Parse("SELECT x FROM items")
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestEnvironment_Dialect(t *testing.T) {
	e := testEnv(t, Options{Dialect: duckdb.DuckDB})
	node, err := e.Parse("SELECT Name FROM Customers")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, node.Schema().Names())
	assert.Same(t, duckdb.DuckDB, e.Catalog().Dialect())
}

func TestEnvironment_Tables(t *testing.T) {
	e := testEnv(t, Options{})
	assert.Equal(t, []string{"customers", "orders"}, e.Tables())
	assert.Equal(t, "orders", e.DefaultTableName())
}

func TestEnvironment_ExplicitRegistration(t *testing.T) {
	e := testEnv(t, Options{})
	e.RegisterScalarFunction("DOUBLE", functions.MustFuncRef(func(x int64) int64 { return x * 2 }))
	e.RegisterAggregateFunction("TOTAL", functions.Sum)

	node, err := e.Parse("SELECT DOUBLE(id), TOTAL(amount) FROM orders GROUP BY DOUBLE(id)")
	require.NoError(t, err)
	assert.Equal(t, core.TypeInt, node.Schema().Fields[0].Type)
}

func TestLoadFunctionsFromProviders(t *testing.T) {
	first := ProviderFunc{ProviderName: "first", LoadFunc: func() (Definitions, error) {
		return Definitions{Scalars: []ScalarDef{
			{Name: "DOUBLE", Ref: functions.MustFuncRef(func(x int64) int64 { return x * 2 })},
			{Name: "TRIPLE", Ref: functions.MustFuncRef(func(x int64) int64 { return x * 3 })},
		}}, nil
	}}
	second := ProviderFunc{ProviderName: "second", LoadFunc: func() (Definitions, error) {
		return Definitions{
			Scalars:    []ScalarDef{{Name: "TRIPLE", Ref: functions.MustFuncRef(func(x int64) string { return "shadowed" })}},
			Aggregates: []AggregateDef{{Name: "TOTAL", Fn: functions.Sum}},
		}, nil
	}}

	e := testEnv(t, Options{Providers: []FunctionProvider{first, second}, SkipRegistry: true})
	e.RegisterScalarFunction("DOUBLE", functions.MustFuncRef(func(x int64) string { return "explicit" }))
	require.NoError(t, e.LoadFunctionsFromProviders())

	double, ok := e.Catalog().LookupScalar("DOUBLE")
	require.True(t, ok)
	assert.Equal(t, functions.SourceExplicit, double.Source, "explicit registrations win")

	triple, ok := e.Catalog().LookupScalar("TRIPLE")
	require.True(t, ok)
	assert.Equal(t, "first", triple.Origin, "first provider keeps the name")

	_, ok = e.Catalog().LookupAggregate("TOTAL")
	assert.True(t, ok)
	assert.Equal(t, 2, e.Catalog().Count(functions.SourceProvider))

	// Second call is a no-op.
	require.NoError(t, e.LoadFunctionsFromProviders())
	assert.Equal(t, 2, e.Catalog().Count(functions.SourceProvider))
}

func TestLoadFunctionsFromProviders_Error(t *testing.T) {
	boom := errors.New("boom")
	bad := ProviderFunc{ProviderName: "bad", LoadFunc: func() (Definitions, error) { return Definitions{}, boom }}
	e := testEnv(t, Options{Providers: []FunctionProvider{bad}, SkipRegistry: true})

	err := e.LoadFunctionsFromProviders()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "provider bad")
}

func TestProviderRegistry(t *testing.T) {
	RegisterProvider("zz-test", func() (FunctionProvider, error) {
		return ProviderFunc{ProviderName: "zz-test", LoadFunc: func() (Definitions, error) {
			return Definitions{Scalars: []ScalarDef{
				{Name: "ZZ_ONE", Ref: functions.MustFuncRef(func() int64 { return 1 })},
			}}, nil
		}}, nil
	})
	t.Cleanup(func() { UnregisterProvider("zz-test") })

	assert.Contains(t, ListProviders(), "zz-test")
	_, err := NewProvider("missing")
	var upe *UnknownProviderError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "missing", upe.Name)

	p := dataflow.NewPipeline()
	tbl := newTable(t, p, "t", core.Field{Name: "x", Type: core.TypeInt})
	e := CreateEnvironment("t", map[string]*Table{"t": tbl}, Options{})
	require.NoError(t, e.LoadFunctionsFromProviders())
	_, err = e.Parse("SELECT ZZ_ONE() FROM t")
	assert.NoError(t, err)
}

func TestLoadFunctionsFromProviders_RegistrySnapshot(t *testing.T) {
	constant := func(name, fn string) ProviderFactory {
		return func() (FunctionProvider, error) {
			return ProviderFunc{ProviderName: name, LoadFunc: func() (Definitions, error) {
				return Definitions{Scalars: []ScalarDef{
					{Name: fn, Ref: functions.MustFuncRef(func() int64 { return 1 })},
				}}, nil
			}}, nil
		}
	}
	// The first factory drops the second from the registry mid-load.
	RegisterProvider("snap-a", func() (FunctionProvider, error) {
		UnregisterProvider("snap-b")
		return constant("snap-a", "SNAP_A")()
	})
	RegisterProvider("snap-b", constant("snap-b", "SNAP_B"))
	t.Cleanup(func() {
		UnregisterProvider("snap-a")
		UnregisterProvider("snap-b")
	})

	p := dataflow.NewPipeline()
	tbl := newTable(t, p, "t", core.Field{Name: "x", Type: core.TypeInt})
	e := CreateEnvironment("t", map[string]*Table{"t": tbl}, Options{})
	require.NoError(t, e.LoadFunctionsFromProviders())

	for _, name := range []string{"SNAP_A", "SNAP_B"} {
		_, ok := e.Catalog().LookupScalar(name)
		assert.True(t, ok, name)
	}
	assert.NotContains(t, ListProviders(), "snap-b")
}
