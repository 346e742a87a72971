package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// parquetBatch is the number of rows read from a row group at a time.
const parquetBatch = 256

// Parquet returns a stream over the rows of a Parquet file. The schema
// comes from the file footer; only flat schemas of primitive columns are
// supported. Integers read as BIGINT, floating point as DOUBLE, byte
// arrays as VARCHAR and timestamp columns as TIMESTAMP.
func Parquet(p *dataflow.Pipeline, name, path string, opts ...Option) (*dataflow.Stream, error) {
	o := newOptions(opts)

	fileSchema, err := parquetSchema(path)
	if err != nil {
		return nil, err
	}
	schema := fileSchema
	if o.schema != nil {
		if o.schema.Len() != fileSchema.Len() {
			return nil, fmt.Errorf("%s has %d columns, schema has %d", path, fileSchema.Len(), o.schema.Len())
		}
		schema = *o.schema
	}

	return dataflow.FromSource(p, name, schema, func(ctx context.Context, emit dataflow.Emitter) error {
		return readParquet(ctx, path, func(vals []any) error {
			row := make(core.Row, len(vals))
			for i, v := range vals {
				var err error
				if row[i], err = castValue(v, schema.Fields[i]); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return emit(row)
		})
	}), nil
}

func openParquet(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to read parquet footer of %s: %w", path, err)
	}
	return f, pf, nil
}

func parquetSchema(path string) (core.Schema, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return core.Schema{}, err
	}
	defer func() { _ = f.Close() }()

	fields := pf.Schema().Fields()
	out := make([]core.Field, len(fields))
	for i, field := range fields {
		if !field.Leaf() || field.Repeated() {
			return core.Schema{}, fmt.Errorf("%s: nested column %s is not supported", path, field.Name())
		}
		out[i] = core.Field{Name: field.Name(), Type: parquetType(field.Type()), Nullable: field.Optional()}
	}
	return core.NewSchema(out...), nil
}

func parquetType(t parquet.Type) core.Type {
	if lt := t.LogicalType(); lt != nil && lt.Timestamp != nil {
		return core.TypeTimestamp
	}
	switch t.Kind() {
	case parquet.Boolean:
		return core.TypeBool
	case parquet.Int32, parquet.Int64:
		return core.TypeInt
	case parquet.Float, parquet.Double:
		return core.TypeFloat
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return core.TypeString
	}
	return core.TypeAny
}

// readParquet passes the values of every row of path to fn, in file order.
func readParquet(ctx context.Context, path string, fn func([]any) error) error {
	f, pf, err := openParquet(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	fields := pf.Schema().Fields()
	buf := make([]parquet.Row, parquetBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(ctx, rg, fields, buf, fn); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func readRowGroup(ctx context.Context, rg parquet.RowGroup, fields []parquet.Field, buf []parquet.Row, fn func([]any) error) error {
	rows := rg.Rows()
	defer func() { _ = rows.Close() }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rows.ReadRows(buf)
		for _, r := range buf[:n] {
			vals := make([]any, len(fields))
			for _, v := range r {
				col := v.Column()
				if col < 0 || col >= len(fields) || v.IsNull() {
					continue
				}
				vals[col] = parquetValue(v, fields[col].Type())
			}
			if err := fn(vals); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func parquetValue(v parquet.Value, t parquet.Type) any {
	if lt := t.LogicalType(); lt != nil && lt.Timestamp != nil {
		n := v.Int64()
		switch unit := lt.Timestamp.Unit; {
		case unit.Millis != nil:
			return time.UnixMilli(n).UTC()
		case unit.Micros != nil:
			return time.UnixMicro(n).UTC()
		default:
			return time.Unix(0, n).UTC()
		}
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}
