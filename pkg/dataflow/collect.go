package dataflow

import (
	"context"
	"sync"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// Collector gathers the rows of a stream during Run.
type Collector struct {
	schema core.Schema

	mu   sync.Mutex
	rows []core.Row
}

// Collect attaches a sink to s. Rows are available after Run returns.
func Collect(s *Stream) *Collector {
	c := &Collector{schema: s.schema}
	s.p.addNode("Collect", "collect:"+s.node.name, nil, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, _ Emitter) error {
		return forEach(ctx, in[0], func(row core.Row) error {
			c.mu.Lock()
			c.rows = append(c.rows, row)
			c.mu.Unlock()
			return nil
		})
	})
	return c
}

// Schema returns the collected stream's schema.
func (c *Collector) Schema() core.Schema { return c.schema }

// Rows returns a copy of the collected rows.
func (c *Collector) Rows() []core.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Row, len(c.rows))
	copy(out, c.rows)
	return out
}

// Maps returns the collected rows as column name to value maps.
func (c *Collector) Maps() []map[string]any {
	rows := c.Rows()
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.Map(c.schema)
	}
	return out
}

// Sink calls fn for every row of s during Run.
func Sink(s *Stream, name string, fn func(ctx context.Context, row core.Row) error) {
	s.p.addNode("Sink", name, nil, []*Stream{s}, func(ctx context.Context, in []<-chan core.Row, _ Emitter) error {
		return forEach(ctx, in[0], func(row core.Row) error {
			return fn(ctx, row)
		})
	})
}
