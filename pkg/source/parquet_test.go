package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

type parquetOrder struct {
	Amount float64 `parquet:"amount"`
	ID     int64   `parquet:"id"`
	Note   *string `parquet:"note,optional"`
	Paid   bool    `parquet:"paid"`
	Qty    int32   `parquet:"qty"`
}

func writeParquet(t *testing.T, rows []parquetOrder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[parquetOrder](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParquet(t *testing.T) {
	first := "first"
	path := writeParquet(t, []parquetOrder{
		{Amount: 5, ID: 1, Note: &first, Paid: true, Qty: 2},
		{Amount: 7.5, ID: 2, Qty: 1},
	})

	schema, rows, err := run(t, func(p *dataflow.Pipeline) (*dataflow.Stream, error) {
		return Open(p, "orders", path)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "id", "note", "paid", "qty"}, schema.Names())
	assert.Equal(t, []core.Type{core.TypeFloat, core.TypeInt, core.TypeString, core.TypeBool, core.TypeInt}, types(schema))
	assert.True(t, schema.Fields[2].Nullable)
	assert.False(t, schema.Fields[1].Nullable)
	assert.Equal(t, []core.Row{
		{5.0, int64(1), "first", true, int64(2)},
		{7.5, int64(2), nil, false, int64(1)},
	}, rows)
}

func TestParquet_WithSchema(t *testing.T) {
	path := writeParquet(t, []parquetOrder{{Amount: 3, ID: 9, Qty: 4}})

	override := core.NewSchema(
		core.Field{Name: "amount", Type: core.TypeFloat},
		core.Field{Name: "id", Type: core.TypeString},
		core.Field{Name: "note", Type: core.TypeString, Nullable: true},
		core.Field{Name: "paid", Type: core.TypeBool},
		core.Field{Name: "qty", Type: core.TypeFloat},
	)
	_, rows, err := run(t, func(p *dataflow.Pipeline) (*dataflow.Stream, error) {
		return Parquet(p, "orders", path, WithSchema(override))
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{3.0, "9", nil, false, 4.0}}, rows)

	p := dataflow.NewPipeline()
	_, err = Parquet(p, "orders", path, WithSchema(core.NewSchema(core.Field{Name: "id", Type: core.TypeInt})))
	assert.ErrorContains(t, err, "has 5 columns, schema has 1")
}

func TestParquet_Errors(t *testing.T) {
	p := dataflow.NewPipeline()
	_, err := Parquet(p, "x", filepath.Join(t.TempDir(), "missing.parquet"))
	assert.ErrorContains(t, err, "failed to open")

	notParquet := writeFile(t, "bad.parquet", "id,name\n1,a\n")
	_, err = Parquet(p, "x", notParquet)
	assert.ErrorContains(t, err, "failed to read parquet footer")
}
