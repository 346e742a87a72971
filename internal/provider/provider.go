// Package provider discovers user-defined SQL functions in Starlark scripts.
//
// Every *.star file in the functions directory is executed once and cached
// until it changes on disk. Exported globals become functions:
//
//	def slugify(s):            # scalar, result type ANY
//	    return s.lower().replace(" ", "-")
//
//	clamp = scalar(_clamp, returns = "BIGINT")
//	product = aggregate(lambda: 1, lambda acc, x: acc * x, lambda a, b: a * b)
//
// Names starting with an underscore are private to the script.
package provider

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.starlark.net/starlark"

	starlarkx "github.com/leapstack-labs/flowsql/internal/starlark"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/env"
)

// RegistryName is the name Register uses in the global provider registry.
const RegistryName = "starlark"

// Module is one loaded script.
type Module struct {
	Path       string
	ModTime    time.Time
	Size       int64
	Scalars    []env.ScalarDef
	Aggregates []env.AggregateDef
}

// LoadError reports a script that could not be read or executed.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", filepath.Base(e.File), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Provider loads functions from the *.star files of one directory. It is
// safe for concurrent use and implements env.FunctionProvider.
type Provider struct {
	dir    string
	logger *slog.Logger
	pool   *starlarkx.ThreadPool

	modules   map[string]*Module
	modulesMu sync.RWMutex
}

var _ env.FunctionProvider = (*Provider)(nil)

// New creates a provider for dir. A missing directory provides nothing.
func New(dir string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		dir:     dir,
		logger:  logger,
		pool:    starlarkx.NewThreadPool(logger),
		modules: make(map[string]*Module),
	}
}

// Register adds a provider for dir to the global registry under
// RegistryName. Every auto-load shares the same provider and its cache.
func Register(dir string, logger *slog.Logger) *Provider {
	p := New(dir, logger)
	env.RegisterProvider(RegistryName, func() (env.FunctionProvider, error) { return p, nil })
	return p
}

// Name implements env.FunctionProvider.
func (p *Provider) Name() string { return RegistryName + ":" + p.dir }

// Dir returns the scanned directory.
func (p *Provider) Dir() string { return p.dir }

// Load implements env.FunctionProvider. Files are visited in name order.
func (p *Provider) Load() (env.Definitions, error) {
	files, err := p.scripts()
	if err != nil {
		return env.Definitions{}, err
	}

	var defs env.Definitions
	present := make(map[string]bool, len(files))
	for _, path := range files {
		present[path] = true
		m, err := p.GetOrLoad(path)
		if err != nil {
			return env.Definitions{}, err
		}
		defs.Scalars = append(defs.Scalars, m.Scalars...)
		defs.Aggregates = append(defs.Aggregates, m.Aggregates...)
	}
	p.prune(present)

	p.logger.Debug("loaded starlark functions",
		slog.String("dir", p.dir),
		slog.Int("files", len(files)),
		slog.Int("scalars", len(defs.Scalars)),
		slog.Int("aggregates", len(defs.Aggregates)))
	return defs, nil
}

func (p *Provider) scripts() ([]string, error) {
	info, err := os.Stat(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access functions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("functions path is not a directory: %s", p.dir)
	}
	files, err := filepath.Glob(filepath.Join(p.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan functions directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// GetOrLoad returns the cached module for path, executing the script again
// if it changed since it was loaded.
func (p *Provider) GetOrLoad(path string) (*Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	p.modulesMu.RLock()
	m, ok := p.modules[path]
	p.modulesMu.RUnlock()
	if ok && fresh(m, info) {
		return m, nil
	}

	p.modulesMu.Lock()
	defer p.modulesMu.Unlock()

	if m, ok := p.modules[path]; ok && fresh(m, info) {
		return m, nil
	}

	m, err = p.loadModule(path, info)
	if err != nil {
		return nil, err
	}
	p.modules[path] = m
	return m, nil
}

func fresh(m *Module, info os.FileInfo) bool {
	return m.ModTime.Equal(info.ModTime()) && m.Size == info.Size()
}

// Invalidate drops the cached module for path.
func (p *Provider) Invalidate(path string) {
	p.modulesMu.Lock()
	defer p.modulesMu.Unlock()
	delete(p.modules, path)
}

// InvalidateAll clears the module cache.
func (p *Provider) InvalidateAll() {
	p.modulesMu.Lock()
	defer p.modulesMu.Unlock()
	p.modules = make(map[string]*Module)
}

func (p *Provider) prune(present map[string]bool) {
	p.modulesMu.Lock()
	defer p.modulesMu.Unlock()
	for path := range p.modules {
		if !present[path] {
			delete(p.modules, path)
		}
	}
}

func (p *Provider) loadModule(path string, info os.FileInfo) (*Module, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path comes from a glob of the functions directory
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	globals, err := p.pool.Exec(path, content, starlarkx.Predeclared())
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	m := &Module{Path: path, ModTime: info.ModTime(), Size: info.Size()}
	for _, name := range globals.Keys() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		switch v := globals[name].(type) {
		case *starlark.Function:
			m.Scalars = append(m.Scalars, env.ScalarDef{Name: name, Ref: newScalarRef(name, v, core.TypeAny, p.pool)})
		case *starlarkx.Scalar:
			m.Scalars = append(m.Scalars, env.ScalarDef{Name: name, Ref: newScalarRef(name, v.Fn, v.Output, p.pool)})
		case *starlarkx.Aggregate:
			m.Aggregates = append(m.Aggregates, env.AggregateDef{Name: name, Fn: newAggregateFn(name, v, p.pool)})
		}
	}

	p.logger.Debug("loaded starlark script",
		slog.String("path", path),
		slog.Int("scalars", len(m.Scalars)),
		slog.Int("aggregates", len(m.Aggregates)))
	return m, nil
}
