package dataflow

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// CombineFn is an associative reducer. It has the same method set as
// functions.CombineFn so reducers from the function catalog plug in directly.
type CombineFn interface {
	CreateAccumulator() any
	AddInput(acc any, in ...any) any
	MergeAccumulators(accs ...any) any
	ExtractOutput(acc any) any
}

// Combiner pairs a reducer with the extraction of its inputs from a row.
type Combiner struct {
	Fn CombineFn
	// Args extracts the reducer inputs. nil means no inputs (COUNT(*)).
	Args func(core.Row) ([]any, error)
}

// KeyFunc extracts the grouping, join or ordering values of a row.
type KeyFunc func(core.Row) ([]any, error)

type group struct {
	key     []any
	total   []any // merged accumulators
	partial []any // accumulators for the current bundle
	pending int
}

// CombinePerKey groups s by key and folds each combiner per group. Output
// rows are the key values followed by one extracted output per combiner, in
// first-seen key order. A nil key makes the whole input one group, which is
// emitted even when the input is empty.
//
// Rows are folded into per-bundle accumulators that are merged into the group
// total every bundle, so reducers must implement MergeAccumulators. A reducer
// reports failure by returning an error from ExtractOutput, which fails the
// pipeline.
func CombinePerKey(s *Stream, name string, schema core.Schema, key KeyFunc, combiners []Combiner) *Stream {
	bundle := s.p.bundleSize
	n := s.p.addNode("CombinePerKey", name, &schema, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		groups := make(map[string]*group)
		var order []*group

		newGroup := func(k []any) *group {
			g := &group{key: k, total: make([]any, len(combiners)), partial: make([]any, len(combiners))}
			for i, c := range combiners {
				g.total[i] = c.Fn.CreateAccumulator()
				g.partial[i] = c.Fn.CreateAccumulator()
			}
			order = append(order, g)
			return g
		}
		flush := func(g *group) {
			for i, c := range combiners {
				g.total[i] = c.Fn.MergeAccumulators(g.total[i], g.partial[i])
				g.partial[i] = c.Fn.CreateAccumulator()
			}
			g.pending = 0
		}

		if key == nil {
			groups[""] = newGroup(nil)
		}

		err := forEach(ctx, in[0], func(row core.Row) error {
			var k []any
			if key != nil {
				var err error
				if k, err = key(row); err != nil {
					return err
				}
			}
			gk := core.RowKey(k)
			g, ok := groups[gk]
			if !ok {
				g = newGroup(k)
				groups[gk] = g
			}
			for i, c := range combiners {
				var args []any
				if c.Args != nil {
					var err error
					if args, err = c.Args(row); err != nil {
						return err
					}
				}
				g.partial[i] = c.Fn.AddInput(g.partial[i], args...)
			}
			if g.pending++; g.pending >= bundle {
				flush(g)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, g := range order {
			flush(g)
			out := make(core.Row, 0, len(g.key)+len(combiners))
			out = append(out, g.key...)
			for i, c := range combiners {
				v := c.Fn.ExtractOutput(g.total[i])
				if err, ok := v.(error); ok {
					return fmt.Errorf("failed to combine %s: %w", name, err)
				}
				out = append(out, core.NormalizeValue(v))
			}
			if err := emit(out); err != nil {
				return err
			}
		}
		return nil
	})
	return n.out
}
