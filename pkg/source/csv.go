package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// CSV returns a stream over a CSV file with a header row. Empty cells are
// NULL. Inferred columns are BOOLEAN, BIGINT, DOUBLE, TIMESTAMP or VARCHAR.
func CSV(p *dataflow.Pipeline, name, path string, opts ...Option) (*dataflow.Stream, error) {
	o := newOptions(opts)

	schema, err := csvSchema(path, o)
	if err != nil {
		return nil, err
	}

	return dataflow.FromSource(p, name, schema, func(ctx context.Context, emit dataflow.Emitter) error {
		f, err := os.Open(path) //nolint:gosec // path is chosen by the caller
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()

		r := newCSVReader(f, o)
		if _, err := r.Read(); err != nil {
			return fmt.Errorf("failed to read header of %s: %w", path, err)
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			line, _ := r.FieldPos(0)
			row := make(core.Row, len(rec))
			for i, cell := range rec {
				if row[i], err = castValue(csvCell(cell, o), schema.Fields[i]); err != nil {
					return fmt.Errorf("%s:%d: %w", path, line, err)
				}
			}
			if err := emit(row); err != nil {
				return err
			}
		}
	}), nil
}

func newCSVReader(r io.Reader, o options) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = o.delimiter
	cr.ReuseRecord = true
	return cr
}

// csvCell returns nil for NULL cells and the text otherwise.
func csvCell(cell string, o options) any {
	if cell == "" || (o.null != "" && cell == o.null) {
		return nil
	}
	return cell
}

func csvSchema(path string, o options) (core.Schema, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the caller
	if err != nil {
		return core.Schema{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := newCSVReader(f, o)
	header, err := r.Read()
	if err != nil {
		return core.Schema{}, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header = append([]string(nil), header...)

	if o.schema != nil {
		if o.schema.Len() != len(header) {
			return core.Schema{}, fmt.Errorf("%s has %d columns, schema has %d", path, len(header), o.schema.Len())
		}
		return *o.schema, nil
	}

	types := make([]core.Type, len(header))
	nullable := make([]bool, len(header))
	for i := range types {
		types[i] = core.TypeNull
	}
	for n := 0; n < o.sample; n++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.Schema{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for i, cell := range rec {
			v := csvCell(cell, o)
			if v == nil {
				nullable[i] = true
				continue
			}
			types[i] = mergeType(types[i], cellType(cell))
		}
	}

	fields := make([]core.Field, len(header))
	for i, h := range header {
		t := types[i]
		if t == core.TypeNull || t == core.TypeAny {
			t = core.TypeString
		}
		fields[i] = core.Field{Name: strings.TrimSpace(h), Type: t, Nullable: nullable[i]}
	}
	return core.NewSchema(fields...), nil
}

// cellType guesses the narrowest type that parses cell.
func cellType(cell string) core.Type {
	s := strings.TrimSpace(cell)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return core.TypeInt
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return core.TypeFloat
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return core.TypeBool
	}
	if _, err := core.Cast(s, core.TypeTimestamp); err == nil {
		return core.TypeTimestamp
	}
	return core.TypeString
}
