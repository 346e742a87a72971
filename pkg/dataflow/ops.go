package dataflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// SourceFunc produces rows for FromSource.
type SourceFunc func(ctx context.Context, emit Emitter) error

// DoFn processes one row, emitting zero or more rows.
type DoFn func(ctx context.Context, row core.Row, emit Emitter) error

// Create returns a stream over in-memory rows. Rows are normalized and
// checked against the schema arity.
func Create(p *Pipeline, name string, schema core.Schema, rows []core.Row) (*Stream, error) {
	data := make([]core.Row, len(rows))
	for i, r := range rows {
		if len(r) != schema.Len() {
			return nil, fmt.Errorf("row %d has %d values, schema %s has %d", i, len(r), schema, schema.Len())
		}
		row := make(core.Row, len(r))
		for j, v := range r {
			row[j] = core.NormalizeValue(v)
		}
		data[i] = row
	}
	n := p.addNode("Create", name, &schema, nil, func(_ context.Context, _ []<-chan core.Row, emit Emitter) error {
		for _, r := range data {
			if err := emit(r); err != nil {
				return err
			}
		}
		return nil
	})
	return n.out, nil
}

// FromSource returns a stream whose rows are produced by fn at run time.
// Values are normalized before they are emitted.
func FromSource(p *Pipeline, name string, schema core.Schema, fn SourceFunc) *Stream {
	n := p.addNode("Source", name, &schema, nil, func(ctx context.Context, _ []<-chan core.Row, emit Emitter) error {
		return fn(ctx, func(row core.Row) error {
			if len(row) != schema.Len() {
				return fmt.Errorf("source row has %d values, schema has %d", len(row), schema.Len())
			}
			for i, v := range row {
				row[i] = core.NormalizeValue(v)
			}
			return emit(row)
		})
	})
	return n.out
}

// ParDo applies fn to every row of s.
func ParDo(s *Stream, name string, schema core.Schema, fn DoFn) *Stream {
	n := s.p.addNode("ParDo", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		return forEach(ctx, in[0], func(row core.Row) error {
			return fn(ctx, row, emit)
		})
	})
	return n.out
}

// Map transforms every row of s one to one, preserving order.
func Map(s *Stream, name string, schema core.Schema, fn func(core.Row) (core.Row, error)) *Stream {
	n := s.p.addNode("Map", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		return forEach(ctx, in[0], func(row core.Row) error {
			out, err := fn(row)
			if err != nil {
				return err
			}
			return emit(out)
		})
	})
	return n.out
}

// Filter keeps rows for which keep returns true, preserving order.
func Filter(s *Stream, name string, keep func(core.Row) (bool, error)) *Stream {
	schema := s.schema
	n := s.p.addNode("Filter", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		return forEach(ctx, in[0], func(row core.Row) error {
			ok, err := keep(row)
			if err != nil || !ok {
				return err
			}
			return emit(row)
		})
	})
	return n.out
}

// Limit skips offset rows and emits at most count rows. count < 0 means no
// limit.
func Limit(s *Stream, name string, count, offset int64) *Stream {
	schema := s.schema
	n := s.p.addNode("Limit", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		var seen, emitted int64
		for count < 0 || emitted < count {
			row, ok, err := recv(ctx, in[0])
			if err != nil || !ok {
				return err
			}
			seen++
			if seen <= offset {
				continue
			}
			if err := emit(row); err != nil {
				return err
			}
			emitted++
		}
		return nil
	})
	return n.out
}

// Distinct drops rows equal to an earlier row, keeping first occurrences in
// order.
func Distinct(s *Stream, name string) *Stream {
	schema := s.schema
	n := s.p.addNode("Distinct", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		seen := make(map[string]struct{})
		return forEach(ctx, in[0], func(row core.Row) error {
			key := core.RowKey(row)
			if _, dup := seen[key]; dup {
				return nil
			}
			seen[key] = struct{}{}
			return emit(row)
		})
	})
	return n.out
}

// Sort orders s by the keys extracted with keys using cmp. The sort is
// stable.
func Sort(s *Stream, name string, keys KeyFunc, cmp func(a, b []any) int) *Stream {
	schema := s.schema
	n := s.p.addNode("Sort", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		type keyed struct {
			key []any
			row core.Row
		}
		var rows []keyed
		err := forEach(ctx, in[0], func(row core.Row) error {
			k, err := keys(row)
			if err != nil {
				return err
			}
			rows = append(rows, keyed{key: k, row: row})
			return nil
		})
		if err != nil {
			return err
		}
		slices.SortStableFunc(rows, func(a, b keyed) int { return cmp(a.key, b.key) })
		for _, r := range rows {
			if err := emit(r.row); err != nil {
				return err
			}
		}
		return nil
	})
	return n.out
}

// Flatten concatenates streams: all rows of the first input, then the
// second, and so on. Every input must have the same arity; the output uses
// the first input's schema.
func Flatten(p *Pipeline, name string, streams ...*Stream) (*Stream, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("flatten requires at least one stream")
	}
	schema := streams[0].schema
	for i, s := range streams[1:] {
		if s.schema.Len() != schema.Len() {
			return nil, fmt.Errorf("flatten input %d has %d columns, expected %d", i+2, s.schema.Len(), schema.Len())
		}
	}
	n := p.addNode("Flatten", name, &schema, streams, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		// Buffer later inputs while streaming the first so shared
		// producers never block.
		rest, errc := bufferRest(ctx, in[1:])
		if err := forEach(ctx, in[0], emit); err != nil {
			return err
		}
		if err := <-errc; err != nil {
			return err
		}
		for _, rows := range rest {
			for _, r := range rows {
				if err := emit(r); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return n.out, nil
}

func bufferRest(ctx context.Context, ins []<-chan core.Row) ([][]core.Row, <-chan error) {
	errc := make(chan error, 1)
	out := make([][]core.Row, len(ins))
	go func() {
		rows, err := readAllConcurrently(ctx, ins)
		copy(out, rows)
		errc <- err
	}()
	return out, errc
}
