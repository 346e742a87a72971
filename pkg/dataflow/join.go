package dataflow

import (
	"context"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// JoinSpec configures HashJoin.
type JoinSpec struct {
	// LeftKey and RightKey extract equi-join keys. Both nil means every left
	// row pairs with every right row.
	LeftKey  KeyFunc
	RightKey KeyFunc
	// Residual is evaluated on the joined row; nil accepts every pair.
	Residual func(core.Row) (bool, error)
	// Outer keeps unmatched left rows, padded with NULLs.
	Outer bool
}

// HashJoin joins left with right. Output rows are the left values followed
// by the right values, in left order and then right order. Keys containing
// NULL never match.
func HashJoin(left, right *Stream, name string, spec JoinSpec) *Stream {
	fields := make([]core.Field, 0, left.schema.Len()+right.schema.Len())
	fields = append(fields, left.schema.Fields...)
	for _, f := range right.schema.Fields {
		if spec.Outer {
			f.Nullable = true
		}
		fields = append(fields, f)
	}
	schema := core.NewSchema(fields...)
	rightWidth := right.schema.Len()

	n := left.p.addNode("HashJoin", name, &schema, []*Stream{left, right}, func(ctx context.Context, in []<-chan core.Row, emit Emitter) error {
		// Both sides are read together; a self-join shares one producer.
		sides, err := readAllConcurrently(ctx, in)
		if err != nil {
			return err
		}
		lrows, rrows := sides[0], sides[1]

		var table map[string][]core.Row
		if spec.RightKey != nil {
			table = make(map[string][]core.Row)
			for _, r := range rrows {
				k, err := spec.RightKey(r)
				if err != nil {
					return err
				}
				if hasNull(k) {
					continue
				}
				kk := core.RowKey(k)
				table[kk] = append(table[kk], r)
			}
		}

		for _, l := range lrows {
			candidates := rrows
			if spec.LeftKey != nil {
				k, err := spec.LeftKey(l)
				if err != nil {
					return err
				}
				candidates = nil
				if !hasNull(k) {
					candidates = table[core.RowKey(k)]
				}
			}

			matched := false
			for _, r := range candidates {
				joined := make(core.Row, 0, len(l)+len(r))
				joined = append(append(joined, l...), r...)
				if spec.Residual != nil {
					ok, err := spec.Residual(joined)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				matched = true
				if err := emit(joined); err != nil {
					return err
				}
			}
			if !matched && spec.Outer {
				joined := make(core.Row, len(l)+rightWidth)
				copy(joined, l)
				if err := emit(joined); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return n.out
}

func hasNull(vals []any) bool {
	for _, v := range vals {
		if v == nil {
			return true
		}
	}
	return false
}
