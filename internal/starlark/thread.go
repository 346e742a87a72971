package starlark

import (
	"log/slog"
	"sync"

	"go.starlark.net/starlark"
)

// Pool defaults.
const (
	DefaultMaxIdle   = 10
	DefaultStepLimit = 10_000_000
)

// ThreadPool hands out Starlark threads so frozen functions can be called
// from concurrent pipeline stages. Every call or script execution runs
// under a step budget; a thread whose run failed is dropped rather than
// reused.
type ThreadPool struct {
	mu        sync.Mutex
	idle      []*starlark.Thread
	maxIdle   int
	stepLimit uint64
	logger    *slog.Logger
}

// PoolOption configures a ThreadPool.
type PoolOption func(*ThreadPool)

// WithMaxIdle sets how many idle threads are kept for reuse.
func WithMaxIdle(n int) PoolOption {
	return func(p *ThreadPool) {
		if n > 0 {
			p.maxIdle = n
		}
	}
}

// WithStepLimit bounds the Starlark computation steps of one call. Zero
// removes the bound.
func WithStepLimit(steps uint64) PoolOption {
	return func(p *ThreadPool) { p.stepLimit = steps }
}

// NewThreadPool returns a pool whose threads log print() output at debug
// level to logger.
func NewThreadPool(logger *slog.Logger, opts ...PoolOption) *ThreadPool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &ThreadPool{maxIdle: DefaultMaxIdle, stepLimit: DefaultStepLimit, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ThreadPool) acquire(name string) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.idle); n > 0 {
		thread = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		thread = &starlark.Thread{
			Print: func(t *starlark.Thread, msg string) {
				p.logger.Debug("starlark print", slog.String("thread", t.Name), slog.String("msg", msg))
			},
		}
	}
	thread.Name = name
	if p.stepLimit > 0 {
		thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.stepLimit)
	}
	return thread
}

func (p *ThreadPool) release(thread *starlark.Thread, err error) {
	if err != nil {
		// The thread may have been cancelled by the step limit.
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) < p.maxIdle {
		thread.Name = ""
		p.idle = append(p.idle, thread)
	}
}

// Idle returns the number of threads waiting for reuse.
func (p *ThreadPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Call invokes fn on a pooled thread named name.
func (p *ThreadPool) Call(name string, fn starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	thread := p.acquire(name)
	v, err := starlark.Call(thread, fn, args, nil)
	p.release(thread, err)
	return v, err
}

// Exec runs the script src, read from filename, with the given predeclared
// names and returns its frozen globals.
func (p *ThreadPool) Exec(filename string, src []byte, predeclared starlark.StringDict) (starlark.StringDict, error) {
	thread := p.acquire("load:" + filename)
	globals, err := starlark.ExecFile(thread, filename, src, predeclared) //nolint:staticcheck // SA1019: ExecFileOptions adds nothing here
	p.release(thread, err)
	return globals, err
}
