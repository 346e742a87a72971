// Package env holds the query environment a compilation runs in: the table
// namespace, the function catalog and the binder that turns parsed SQL into
// a validated logical plan.
package env

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/dialects/ansi"
	"github.com/leapstack-labs/flowsql/pkg/functions"
	"github.com/leapstack-labs/flowsql/pkg/parser"
	"github.com/leapstack-labs/flowsql/pkg/plan"
)

// Options configures an Environment.
type Options struct {
	// Dialect controls identifier folding for tables and functions. nil
	// selects ANSI.
	Dialect *dialect.Dialect
	Logger  *slog.Logger
	// Providers are loaded before the globally registered providers.
	Providers []FunctionProvider
	// SkipRegistry ignores globally registered providers during auto-load.
	SkipRegistry bool
}

// Environment is a read-only table namespace plus a mutable function catalog.
type Environment struct {
	defaultName string
	tables      map[string]*Table
	catalog     *functions.Catalog
	dialect     *dialect.Dialect
	logger      *slog.Logger
	opts        Options
	loaded      bool
}

// CreateEnvironment builds an environment over tables. The map is copied;
// defaultName names the table a single anonymous input is visible under.
func CreateEnvironment(defaultName string, tables map[string]*Table, opts Options) *Environment {
	d := opts.Dialect
	if d == nil {
		d = ansi.ANSI
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	copied := make(map[string]*Table, len(tables))
	for name, t := range tables {
		copied[name] = t
	}
	return &Environment{
		defaultName: defaultName,
		tables:      copied,
		catalog:     functions.NewCatalog(d, logger),
		dialect:     d,
		logger:      logger,
		opts:        opts,
	}
}

// DefaultTableName returns the name of the default table.
func (e *Environment) DefaultTableName() string { return e.defaultName }

// Catalog returns the function catalog.
func (e *Environment) Catalog() *functions.Catalog { return e.catalog }

// Tables returns the visible table names, sorted.
func (e *Environment) Tables() []string {
	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the table registered under exactly name, or nil.
func (e *Environment) Table(name string) *Table { return e.tables[name] }

// RegisterScalarFunction adds an explicit scalar function. A later
// registration under the same name replaces an earlier one.
func (e *Environment) RegisterScalarFunction(name string, ref functions.Ref) {
	e.catalog.AddScalar(name, ref, functions.SourceExplicit, "")
}

// RegisterAggregateFunction adds an explicit aggregate function. A later
// registration under the same name replaces an earlier one.
func (e *Environment) RegisterAggregateFunction(name string, fn functions.CombineFn) {
	e.catalog.AddAggregate(name, fn, functions.SourceExplicit, "")
}

// LoadFunctionsFromProviders adds the functions of Options.Providers and
// then of every registered provider, in name order. Provider functions never
// replace explicit registrations, and the first provider to define a name
// keeps it. Calling it again is a no-op.
func (e *Environment) LoadFunctionsFromProviders() error {
	if e.loaded {
		return nil
	}
	e.loaded = true

	all := append([]FunctionProvider(nil), e.opts.Providers...)
	if !e.opts.SkipRegistry {
		for _, f := range registeredFactories() {
			p, err := f.factory()
			if err != nil {
				return fmt.Errorf("failed to create function provider %s: %w", f.name, err)
			}
			all = append(all, p)
		}
	}

	for _, p := range all {
		defs, err := p.Load()
		if err != nil {
			return fmt.Errorf("failed to load functions from provider %s: %w", p.Name(), err)
		}
		var added int
		for _, s := range defs.Scalars {
			if e.catalog.AddScalar(s.Name, s.Ref, functions.SourceProvider, p.Name()) {
				added++
			}
		}
		for _, a := range defs.Aggregates {
			if e.catalog.AddAggregate(a.Name, a.Fn, functions.SourceProvider, p.Name()) {
				added++
			}
		}
		e.logger.Debug("loaded provider functions",
			slog.String("provider", p.Name()),
			slog.Int("offered", len(defs.Scalars)+len(defs.Aggregates)),
			slog.Int("added", added))
	}
	return nil
}

// Parse parses query and binds it against the namespace and catalog.
func (e *Environment) Parse(query string) (plan.Node, error) {
	stmt, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	b := &binder{env: e}
	node, err := b.bindStatement(stmt)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("bound query",
		slog.Any("tables", plan.Tables(node)),
		slog.String("schema", node.Schema().String()))
	return node, nil
}

// lookupTable finds a table by exact name, then by dialect-folded name when
// exactly one table matches.
func (e *Environment) lookupTable(name string) (*Table, error) {
	if t, ok := e.tables[name]; ok {
		return t, nil
	}
	var found []*Table
	for tname, t := range e.tables {
		if e.dialect.SameName(tname, name) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, &core.UnresolvedReferenceError{Kind: core.RefTable, Name: name}
	case 1:
		return found[0], nil
	default:
		return nil, &core.ValidationError{Message: fmt.Sprintf("table reference %q is ambiguous", name)}
	}
}
