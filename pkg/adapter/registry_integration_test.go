package adapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/testutil"
	"github.com/leapstack-labs/flowsql/pkg/adapter"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/sqlflow"

	_ "github.com/leapstack-labs/flowsql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/flowsql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/flowsql/pkg/adapters/sqlite"
)

func TestRegisteredAdapters(t *testing.T) {
	assert.Subset(t, adapter.ListAdapters(), []string{"duckdb", "postgres", "sqlite"})

	tests := []struct {
		name     string
		expected bool
	}{
		{"duckdb", true},
		{"postgres", true},
		{"sqlite", true},
		{"unknown_db", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.IsRegistered(tt.name))
			_, ok := adapter.Get(tt.name)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestDialectFor(t *testing.T) {
	d, ok := adapter.DialectFor("SQLite")
	require.True(t, ok)
	assert.Equal(t, "sqlite", d.Name)

	d, ok = adapter.DialectFor("postgres")
	require.True(t, ok)
	assert.Equal(t, "postgres", d.Name)

	_, ok = adapter.DialectFor("unknown_adapter")
	assert.False(t, ok)
}

func TestNewAdapter_Errors(t *testing.T) {
	_, err := adapter.NewAdapter(adapter.Config{}, nil)
	assert.EqualError(t, err, "adapter type not specified")

	_, err = adapter.NewAdapter(adapter.Config{Type: "unknown_adapter"}, nil)
	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "unknown_adapter", unknownErr.Type)
	assert.Contains(t, unknownErr.Available, "sqlite")
}

// TestQueryAcrossTables compiles a join over two SQLite tables read through
// the registry.
func TestQueryAcrossTables(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	adp, err := adapter.NewAdapter(adapter.Config{Type: "sqlite"}, logger)
	require.NoError(t, err)
	require.NoError(t, adp.Connect(ctx, adapter.Config{Type: "sqlite"}))
	t.Cleanup(func() { _ = adp.Close() })

	for _, stmt := range []string{
		`CREATE TABLE customers (id INTEGER NOT NULL, name TEXT)`,
		`CREATE TABLE orders (id INTEGER NOT NULL, customer_id INTEGER, amount REAL)`,
		`INSERT INTO customers VALUES (1, 'ann'), (2, 'bob'), (3, 'cy')`,
		`INSERT INTO orders VALUES (10, 1, 5.0), (11, 1, 7.5), (12, 2, 1.0), (13, 4, 9.0)`,
	} {
		require.NoError(t, adp.Exec(ctx, stmt))
	}

	p := dataflow.NewPipeline(dataflow.WithLogger(logger))
	inputs := dataflow.NewTagged()
	for _, table := range []string{"customers", "orders"} {
		s, err := adapter.TableStream(ctx, p, adp, table)
		require.NoError(t, err)
		inputs = inputs.With(table, s)
	}

	q := sqlflow.MustQuery(`
		SELECT c.name, COUNT(*) AS n, SUM(o.amount) AS total
		FROM orders o JOIN customers c ON o.customer_id = c.id
		GROUP BY c.name
		ORDER BY total DESC`)
	out, err := sqlflow.Compile(p, q, inputs, sqlflow.WithDialect(adp.Dialect()), sqlflow.WithLogger(logger))
	require.NoError(t, err)

	c := dataflow.Collect(out)
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []string{"name", "n", "total"}, c.Schema().Names())
	assert.Equal(t, []core.Row{{"ann", int64(2), 12.5}, {"bob", int64(1), 1.0}}, c.Rows())
}
