// Package translate turns a bound logical plan into dataflow transforms.
package translate

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/plan"
)

// Translator appends the transforms for plan nodes to one pipeline.
type Translator struct {
	p      *dataflow.Pipeline
	tables map[string]*dataflow.Stream
	logger *slog.Logger
	seq    int
}

// New returns a translator that resolves scans against tables.
func New(p *dataflow.Pipeline, tables map[string]*dataflow.Stream, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Translator{p: p, tables: tables, logger: logger}
}

// Translate appends node and its children to the pipeline, bottom-up, and
// returns the stream of its output rows.
func (t *Translator) Translate(node plan.Node) (*dataflow.Stream, error) {
	out, err := t.translate(node)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("translated plan",
		slog.String("output", out.Name()),
		slog.Int("transforms", len(t.p.Nodes())))
	return out, nil
}

func (t *Translator) name(kind string) string {
	t.seq++
	return fmt.Sprintf("%s_%d", kind, t.seq)
}

func (t *Translator) translate(node plan.Node) (*dataflow.Stream, error) {
	switch n := node.(type) {
	case *plan.Scan:
		s, ok := t.tables[n.Table]
		if !ok {
			return nil, &core.TranslationError{Construct: "scan", Message: fmt.Sprintf("no stream for table %q", n.Table)}
		}
		return s, nil

	case *plan.Values:
		return dataflow.Create(t.p, t.name("Values"), n.Schema(), n.Rows)

	case *plan.Filter:
		in, err := t.translate(n.Input)
		if err != nil {
			return nil, err
		}
		return dataflow.Filter(in, t.name("Filter"), predicate(n.Predicate)), nil

	case *plan.Project:
		in, err := t.translate(n.Input)
		if err != nil {
			return nil, err
		}
		exprs := n.Exprs
		return dataflow.Map(in, t.name("Project"), n.Schema(), func(row core.Row) (core.Row, error) {
			return evalAll(exprs, row)
		}), nil

	case *plan.Aggregate:
		return t.aggregate(n)

	case *plan.Join:
		return t.join(n)

	case *plan.Sort:
		in, err := t.translate(n.Input)
		if err != nil {
			return nil, err
		}
		keys := make([]plan.Expr, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = k.Expr
		}
		return dataflow.Sort(in, t.name("Sort"), keyFunc(keys), comparator(n.Keys)), nil

	case *plan.Limit:
		in, err := t.translate(n.Input)
		if err != nil {
			return nil, err
		}
		return dataflow.Limit(in, t.name("Limit"), n.Count, n.Offset), nil

	case *plan.Distinct:
		in, err := t.translate(n.Input)
		if err != nil {
			return nil, err
		}
		return dataflow.Distinct(in, t.name("Distinct")), nil

	case *plan.Union:
		inputs := make([]*dataflow.Stream, len(n.Inputs))
		for i, child := range n.Inputs {
			s, err := t.translate(child)
			if err != nil {
				return nil, err
			}
			inputs[i] = s
		}
		return dataflow.Flatten(t.p, t.name("Union"), inputs...)
	}
	return nil, &core.TranslationError{Construct: fmt.Sprintf("%T", node)}
}

func (t *Translator) aggregate(n *plan.Aggregate) (*dataflow.Stream, error) {
	in, err := t.translate(n.Input)
	if err != nil {
		return nil, err
	}
	var key dataflow.KeyFunc
	if len(n.GroupBy) > 0 {
		key = keyFunc(n.GroupBy)
	}
	combiners := make([]dataflow.Combiner, len(n.Aggs))
	for i, a := range n.Aggs {
		c := dataflow.Combiner{Fn: a.Reducer()}
		if !a.Star {
			c.Args = keyFunc(a.Args)
		}
		combiners[i] = c
	}
	return dataflow.CombinePerKey(in, t.name("Aggregate"), n.Schema(), key, combiners), nil
}

func (t *Translator) join(n *plan.Join) (*dataflow.Stream, error) {
	switch n.Kind {
	case core.JoinInner, core.JoinLeft, core.JoinCross:
	default:
		return nil, &core.TranslationError{Construct: n.Kind.String() + " JOIN", Message: "only INNER, LEFT and CROSS joins can be streamed"}
	}
	left, err := t.translate(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := t.translate(n.Right)
	if err != nil {
		return nil, err
	}
	spec := dataflow.JoinSpec{Outer: n.Kind == core.JoinLeft}
	if len(n.LeftKeys) > 0 {
		spec.LeftKey, spec.RightKey = keyFunc(n.LeftKeys), keyFunc(n.RightKeys)
	}
	if n.Residual != nil {
		spec.Residual = predicate(n.Residual)
	}
	return dataflow.HashJoin(left, right, t.name("Join"), spec), nil
}

func evalAll(exprs []plan.Expr, row core.Row) (core.Row, error) {
	out := make(core.Row, len(exprs))
	for i, e := range exprs {
		v, err := e.Eval(row)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", e, err)
		}
		out[i] = v
	}
	return out, nil
}

func keyFunc(exprs []plan.Expr) dataflow.KeyFunc {
	return func(row core.Row) ([]any, error) {
		return evalAll(exprs, row)
	}
}

func predicate(e plan.Expr) func(core.Row) (bool, error) {
	return func(row core.Row) (bool, error) {
		v, err := e.Eval(row)
		if err != nil {
			return false, fmt.Errorf("evaluate %s: %w", e, err)
		}
		return plan.Truth(v)
	}
}

// comparator orders sort keys. NULL placement follows NullsFirst regardless
// of direction.
func comparator(keys []plan.SortKey) func(a, b []any) int {
	return func(a, b []any) int {
		for i, k := range keys {
			x, y := a[i], b[i]
			var c int
			switch {
			case x == nil && y == nil:
				continue
			case x == nil:
				c = 1
				if k.NullsFirst {
					c = -1
				}
				return c
			case y == nil:
				c = -1
				if k.NullsFirst {
					c = 1
				}
				return c
			}
			c = core.CompareNullsLast(x, y)
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}
