package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// record is one decoded object with its keys in file order.
type record struct {
	keys []string
	vals map[string]any
}

func newRecord() record {
	return record{vals: make(map[string]any)}
}

func (r *record) set(key string, v any) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// row aligns r with schema. Missing keys read as NULL; keys outside the
// schema are an error.
func (r record) row(schema core.Schema) (core.Row, error) {
	for _, k := range r.keys {
		if schema.Index(k) < 0 {
			return nil, fmt.Errorf("field %q is not in schema %s", k, schema)
		}
	}
	row := make(core.Row, schema.Len())
	for i, f := range schema.Fields {
		v, ok := r.vals[f.Name]
		if !ok {
			for _, k := range r.keys {
				if schema.Index(k) == i {
					v = r.vals[k]
					break
				}
			}
		}
		var err error
		if row[i], err = castValue(v, f); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// recordReader decodes the records of a file in order, passing each to fn
// and stopping at the first error fn returns.
type recordReader func(r io.Reader, fn func(record) error) error

var errSampled = errors.New("sample complete")

// openRecords builds a stream over a file decoded by read.
func openRecords(p *dataflow.Pipeline, name, path string, read recordReader, o options) (*dataflow.Stream, error) {
	var schema core.Schema
	if o.schema != nil {
		schema = *o.schema
	} else {
		var err error
		if schema, err = inferRecordSchema(path, read, o.sample); err != nil {
			return nil, err
		}
	}

	return dataflow.FromSource(p, name, schema, func(ctx context.Context, emit dataflow.Emitter) error {
		f, err := os.Open(path) //nolint:gosec // path is chosen by the caller
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()

		n := 0
		return read(f, func(rec record) error {
			n++
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := rec.row(schema)
			if err != nil {
				return fmt.Errorf("%s: record %d: %w", path, n, err)
			}
			return emit(row)
		})
	}), nil
}

func inferRecordSchema(path string, read recordReader, sample int) (core.Schema, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return core.Schema{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var (
		names    []string
		types    = make(map[string]core.Type)
		nullable = make(map[string]bool)
		seen     int
	)
	err = read(f, func(rec record) error {
		if seen == sample {
			return errSampled
		}
		for _, k := range rec.keys {
			t, ok := types[k]
			if !ok {
				names = append(names, k)
				t = core.TypeNull
				// Records before this one lacked the key.
				nullable[k] = seen > 0
			}
			v := rec.vals[k]
			if v == nil {
				nullable[k] = true
			}
			types[k] = mergeType(t, core.TypeOf(v))
		}
		for _, k := range names {
			if _, ok := rec.vals[k]; !ok {
				nullable[k] = true
			}
		}
		seen++
		return nil
	})
	if err != nil && !errors.Is(err, errSampled) {
		return core.Schema{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(names) == 0 {
		return core.Schema{}, fmt.Errorf("%s has no records to infer a schema from", path)
	}

	fields := make([]core.Field, len(names))
	for i, k := range names {
		t := types[k]
		if t == core.TypeNull {
			t = core.TypeAny
		}
		fields[i] = core.Field{Name: k, Type: t, Nullable: nullable[k]}
	}
	return core.NewSchema(fields...), nil
}
