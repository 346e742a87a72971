// Package dataflow is a small in-process execution substrate for compiled
// queries.
//
// A Pipeline is a graph of nodes. Each node produces one Stream of rows that
// share a schema. Building the graph is lazy; Run starts one goroutine per
// node, connects them with channels and waits for completion under an
// errgroup, so the first failing node cancels the rest.
package dataflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// ErrAlreadyRun is returned by Run on a pipeline that has already been run.
var ErrAlreadyRun = errors.New("pipeline has already been run")

// DefaultBufferSize is the channel capacity between nodes.
const DefaultBufferSize = 64

// Emitter sends a row downstream. It fails when the pipeline is cancelled.
type Emitter func(row core.Row) error

type runFunc func(ctx context.Context, in []<-chan core.Row, emit Emitter) error

type node struct {
	id     uuid.UUID
	kind   string
	name   string
	inputs []*Stream
	out    *Stream
	run    runFunc

	// wired at Run time
	ins  []chan core.Row
	outs []chan core.Row
}

// NodeInfo describes a pipeline node for inspection.
type NodeInfo struct {
	ID     uuid.UUID
	Kind   string
	Name   string
	Inputs []uuid.UUID
	Schema core.Schema
}

// Pipeline owns a graph of streams.
type Pipeline struct {
	id         uuid.UUID
	logger     *slog.Logger
	bufferSize int
	bundleSize int

	mu    sync.Mutex
	nodes []*node
	ran   bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger for run diagnostics.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBufferSize sets the channel capacity between nodes.
func WithBufferSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.bufferSize = n
		}
	}
}

// WithBundleSize sets how many rows CombinePerKey folds into a partial
// accumulator before merging it into the group total.
func WithBundleSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.bundleSize = n
		}
	}
}

// NewPipeline creates an empty pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		id:         uuid.New(),
		logger:     slog.New(slog.DiscardHandler),
		bufferSize: DefaultBufferSize,
		bundleSize: 1024,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// Ran reports whether Run has been called.
func (p *Pipeline) Ran() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ran
}

// Nodes lists the graph in creation order, which is a topological order.
func (p *Pipeline) Nodes() []NodeInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]NodeInfo, len(p.nodes))
	for i, n := range p.nodes {
		info := NodeInfo{ID: n.id, Kind: n.kind, Name: n.name}
		if n.out != nil {
			info.Schema = n.out.schema
		}
		for _, in := range n.inputs {
			info.Inputs = append(info.Inputs, in.node.id)
		}
		out[i] = info
	}
	return out
}

// addNode registers a node. Operators panic when mixing pipelines or adding
// to a pipeline that already ran; both are programming errors.
func (p *Pipeline) addNode(kind, name string, schema *core.Schema, inputs []*Stream, run runFunc) *node {
	for _, in := range inputs {
		if in == nil {
			panic(fmt.Sprintf("dataflow: nil input to %s %q", kind, name))
		}
		if in.p != p {
			panic(fmt.Sprintf("dataflow: %s %q mixes streams from different pipelines", kind, name))
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ran {
		panic(fmt.Sprintf("dataflow: cannot add %s %q to a pipeline that already ran", kind, name))
	}
	if name == "" {
		name = fmt.Sprintf("%s%d", kind, len(p.nodes)+1)
	}
	n := &node{id: uuid.New(), kind: kind, name: name, inputs: inputs, run: run}
	if schema != nil {
		n.out = &Stream{p: p, node: n, schema: *schema}
	}
	p.nodes = append(p.nodes, n)
	return n
}

// Run executes the pipeline to completion. It can be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return ErrAlreadyRun
	}
	p.ran = true
	nodes := p.nodes
	p.mu.Unlock()

	// One channel per consumer edge; producers broadcast to all of them.
	for _, n := range nodes {
		for _, in := range n.inputs {
			ch := make(chan core.Row, p.bufferSize)
			n.ins = append(n.ins, ch)
			in.node.outs = append(in.node.outs, ch)
		}
	}

	start := time.Now()
	p.logger.Debug("pipeline starting",
		slog.String("pipeline", p.id.String()),
		slog.Int("nodes", len(nodes)))

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		g.Go(func() error { return p.runNode(gctx, n) })
	}
	if err := g.Wait(); err != nil {
		p.logger.Debug("pipeline failed",
			slog.String("pipeline", p.id.String()),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Debug("pipeline finished",
		slog.String("pipeline", p.id.String()),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (p *Pipeline) runNode(ctx context.Context, n *node) error {
	ins := make([]<-chan core.Row, len(n.ins))
	for i, ch := range n.ins {
		ins[i] = ch
	}

	defer func() {
		for _, ch := range n.outs {
			close(ch)
		}
	}()

	var rows int64
	emit := func(row core.Row) error {
		for _, ch := range n.outs {
			select {
			case ch <- row:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		rows++
		return nil
	}

	err := n.safeRun(ctx, ins, emit)

	// Operators such as Limit stop reading early; drain so producers finish.
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range in {
			}
		}()
	}
	wg.Wait()

	if err != nil {
		return fmt.Errorf("%s %q: %w", n.kind, n.name, err)
	}
	p.logger.Debug("node finished",
		slog.String("node", n.name),
		slog.String("kind", n.kind),
		slog.Int64("rows", rows))
	return nil
}

// safeRun runs the operator body, reporting a panic as an error.
func (n *node) safeRun(ctx context.Context, ins []<-chan core.Row, emit Emitter) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return n.run(ctx, ins, emit)
}

// recv reads the next row, honouring cancellation.
func recv(ctx context.Context, in <-chan core.Row) (core.Row, bool, error) {
	select {
	case row, ok := <-in:
		return row, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// forEach applies fn to every row of in until it is closed.
func forEach(ctx context.Context, in <-chan core.Row, fn func(core.Row) error) error {
	for {
		row, ok, err := recv(ctx, in)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// readAll buffers every row of in.
func readAll(ctx context.Context, in <-chan core.Row) ([]core.Row, error) {
	var rows []core.Row
	err := forEach(ctx, in, func(r core.Row) error {
		rows = append(rows, r)
		return nil
	})
	return rows, err
}

// readAllConcurrently buffers several inputs at once. Inputs fed by the same
// producer must be consumed together or the broadcast would block.
func readAllConcurrently(ctx context.Context, ins []<-chan core.Row) ([][]core.Row, error) {
	out := make([][]core.Row, len(ins))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range ins {
		g.Go(func() error {
			rows, err := readAll(gctx, in)
			out[i] = rows
			return err
		})
	}
	return out, g.Wait()
}
