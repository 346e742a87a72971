package sqlflow

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/env"
	"github.com/leapstack-labs/flowsql/pkg/plan"
	"github.com/leapstack-labs/flowsql/pkg/translate"
)

type compileOptions struct {
	logger       *slog.Logger
	dialect      *dialect.Dialect
	providers    []env.FunctionProvider
	skipRegistry bool
}

// Option configures Compile.
type Option func(*compileOptions)

// WithLogger sets the logger for compilation and translation.
func WithLogger(logger *slog.Logger) Option {
	return func(o *compileOptions) { o.logger = logger }
}

// WithDialect selects identifier folding and builtin functions. The default
// is ANSI.
func WithDialect(d *dialect.Dialect) Option {
	return func(o *compileOptions) { o.dialect = d }
}

// WithProviders adds function providers that auto-load consults before the
// global provider registry.
func WithProviders(providers ...env.FunctionProvider) Option {
	return func(o *compileOptions) { o.providers = append(o.providers, providers...) }
}

// WithoutProviderRegistry makes auto-load ignore globally registered
// providers.
func WithoutProviderRegistry() Option {
	return func(o *compileOptions) { o.skipRegistry = true }
}

func newOptions(opts []Option) compileOptions {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Compile builds the transforms for t over input in p and returns the output
// stream. The namespace and environment live only for this call.
//
// Explicit registrations are added in order, scalars before aggregates, so
// the last registration under a name wins. With auto-load enabled, providers
// are loaded afterwards and never replace an explicit function.
func Compile(p *dataflow.Pipeline, t *Transform, input Input, opts ...Option) (*dataflow.Stream, error) {
	const op = "compile query"
	if p == nil {
		return nil, &core.ConfigError{Op: op, Message: "pipeline is nil"}
	}
	if p.Ran() {
		return nil, fmt.Errorf("failed to compile query: %w", dataflow.ErrAlreadyRun)
	}

	o := newOptions(opts)
	node, environment, err := prepare(t, input, o)
	if err != nil {
		return nil, err
	}

	streams := make(map[string]*dataflow.Stream)
	for _, name := range environment.Tables() {
		s := environment.Table(name).Stream()
		if s.Pipeline() != p {
			return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("input %q belongs to a different pipeline", name)}
		}
		streams[name] = s
	}
	return translate.New(p, streams, o.logger).Translate(node)
}

// Plan parses and binds t against input without adding transforms to a
// pipeline. The returned environment exposes the catalog the query was bound
// against.
func Plan(t *Transform, input Input, opts ...Option) (plan.Node, *env.Environment, error) {
	return prepare(t, input, newOptions(opts))
}

func prepare(t *Transform, input Input, o compileOptions) (plan.Node, *env.Environment, error) {
	if t == nil {
		return nil, nil, &core.ConfigError{Op: "compile query", Message: "query specification is nil"}
	}
	tables, err := ResolveNamespace(input)
	if err != nil {
		return nil, nil, err
	}

	environment := env.CreateEnvironment(DefaultTableName, tables, env.Options{
		Dialect:      o.dialect,
		Logger:       o.logger,
		Providers:    o.providers,
		SkipRegistry: o.skipRegistry,
	})
	for _, s := range t.scalars {
		environment.RegisterScalarFunction(s.Name, s.Ref)
	}
	for _, a := range t.aggregates {
		environment.RegisterAggregateFunction(a.Name, a.Fn)
	}
	if t.autoLoad {
		if err := environment.LoadFunctionsFromProviders(); err != nil {
			return nil, nil, err
		}
	}
	o.logger.Debug("query environment ready",
		slog.Int("tables", len(tables)),
		slog.Int("functions", environment.Catalog().Len()),
		slog.Bool("auto_load", t.autoLoad))

	node, err := environment.Parse(t.query)
	if err != nil {
		return nil, nil, err
	}
	o.logger.Debug("query planned", slog.String("plan", plan.Explain(node)))
	return node, environment, nil
}
