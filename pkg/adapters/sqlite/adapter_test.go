package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/testutil"
	"github.com/leapstack-labs/flowsql/pkg/adapter"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

func seeded(t *testing.T, cfg adapter.Config) *Adapter {
	t.Helper()
	ctx := context.Background()
	adp := New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(ctx, cfg))
	t.Cleanup(func() { _ = adp.Close() })

	require.NoError(t, adp.Exec(ctx, `CREATE TABLE items (id INTEGER NOT NULL, label TEXT, price REAL, raw BLOB)`))
	require.NoError(t, adp.Exec(ctx, `INSERT INTO items VALUES (1, 'pen', 1.5, x'6869'), (2, NULL, 3.0, NULL)`))
	return adp
}

func TestAdapter_GetTableMetadata(t *testing.T) {
	ctx := context.Background()
	adp := seeded(t, adapter.Config{})

	md, err := adp.GetTableMetadata(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, "main", md.Schema)
	assert.Equal(t, "items", md.Name)
	require.Len(t, md.Columns, 4)
	assert.Equal(t, adapter.Column{Name: "id", Type: "INTEGER", Nullable: false, Position: 1}, md.Columns[0])
	assert.True(t, md.Columns[1].Nullable)

	schema := md.CoreSchema()
	assert.Equal(t, []core.Type{core.TypeInt, core.TypeString, core.TypeFloat, core.TypeAny},
		[]core.Type{schema.Fields[0].Type, schema.Fields[1].Type, schema.Fields[2].Type, schema.Fields[3].Type})

	_, err = adp.GetTableMetadata(ctx, "main.items")
	require.NoError(t, err)

	_, err = adp.GetTableMetadata(ctx, "missing")
	assert.EqualError(t, err, "table missing not found")
}

func TestAdapter_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	seeded(t, adapter.Config{Path: path})

	reopened := New(nil)
	require.NoError(t, reopened.Connect(context.Background(), adapter.Config{Path: path}))
	defer func() { _ = reopened.Close() }()
	_, err := reopened.GetTableMetadata(context.Background(), "items")
	assert.NoError(t, err)
}

func TestAdapter_TableStream(t *testing.T) {
	ctx := context.Background()
	adp := seeded(t, adapter.Config{})

	p := dataflow.NewPipeline(dataflow.WithLogger(testutil.NewTestLogger(t)))
	s, err := adapter.TableStream(ctx, p, adp, "items")
	require.NoError(t, err)
	c := dataflow.Collect(s)
	require.NoError(t, p.Run(ctx))

	assert.Equal(t, []core.Row{
		{int64(1), "pen", 1.5, "hi"},
		{int64(2), nil, 3.0, nil},
	}, c.Rows())
}

func TestAdapter_NotConnected(t *testing.T) {
	_, err := New(nil).GetTableMetadata(context.Background(), "items")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
}
