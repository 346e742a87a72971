package functions

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/dialects/ansi"
)

// Source records where a catalog entry came from.
type Source int

// Entry sources, in increasing precedence for explicit registrations.
const (
	SourceBuiltin Source = iota
	SourceProvider
	SourceExplicit
)

func (s Source) String() string {
	switch s {
	case SourceProvider:
		return "provider"
	case SourceExplicit:
		return "explicit"
	default:
		return "builtin"
	}
}

// Scalar is a named scalar function in a catalog.
type Scalar struct {
	Name   string
	Ref    Ref
	Source Source
	Origin string // provider name or file, empty for explicit and builtin entries
}

// Call invokes the function and attributes construction failures to it.
func (s *Scalar) Call(args []any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("function %s: panic: %v", s.Name, p)
		}
	}()
	v, err := s.Ref.Invoke(args)
	if err == nil {
		return v, nil
	}
	var cerr *core.ConstructionError
	if errors.As(err, &cerr) {
		if cerr.Function == "" {
			cerr.Function = s.Name
		}
		return nil, cerr
	}
	return nil, fmt.Errorf("function %s: %w", s.Name, err)
}

// Aggregate is a named aggregate function in a catalog.
type Aggregate struct {
	Name   string
	Fn     CombineFn
	Source Source
	Origin string
}

// Entry describes a catalog entry for listing.
type Entry struct {
	Name      string
	Kind      dialect.FunctionKind
	Source    Source
	Origin    string
	Signature string
}

type entry struct {
	scalar    *Scalar
	aggregate *Aggregate
}

func (e entry) source() Source {
	if e.scalar != nil {
		return e.scalar.Source
	}
	return e.aggregate.Source
}

// Catalog maps normalized function names to implementations. One name refers
// to one function, scalar or aggregate.
//
// Precedence: an explicit registration replaces anything under its name. A
// provider registration replaces only builtins, so providers never shadow
// explicit entries and the first provider to define a name keeps it.
type Catalog struct {
	dialect *dialect.Dialect
	logger  *slog.Logger
	entries map[string]entry
}

// NewCatalog returns a catalog holding the builtin functions. A nil dialect
// selects ANSI.
func NewCatalog(d *dialect.Dialect, logger *slog.Logger) *Catalog {
	if d == nil {
		d = ansi.ANSI
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Catalog{dialect: d, logger: logger, entries: make(map[string]entry)}
	for name, ref := range builtinScalars {
		c.entries[d.NormalizeName(name)] = entry{scalar: &Scalar{Name: name, Ref: ref, Source: SourceBuiltin}}
	}
	for name, fn := range builtinAggregates {
		c.entries[d.NormalizeName(name)] = entry{aggregate: &Aggregate{Name: name, Fn: fn, Source: SourceBuiltin}}
	}
	return c
}

// Dialect returns the dialect used for name normalization.
func (c *Catalog) Dialect() *dialect.Dialect { return c.dialect }

// AddScalar registers a scalar function. It reports whether the entry took
// effect under the precedence rules.
func (c *Catalog) AddScalar(name string, ref Ref, src Source, origin string) bool {
	return c.add(name, entry{scalar: &Scalar{Name: name, Ref: ref, Source: src, Origin: origin}}, src)
}

// AddAggregate registers an aggregate function. It reports whether the entry
// took effect under the precedence rules.
func (c *Catalog) AddAggregate(name string, fn CombineFn, src Source, origin string) bool {
	return c.add(name, entry{aggregate: &Aggregate{Name: name, Fn: fn, Source: src, Origin: origin}}, src)
}

func (c *Catalog) add(name string, e entry, src Source) bool {
	key := c.dialect.NormalizeName(name)
	if prev, ok := c.entries[key]; ok && src != SourceExplicit && prev.source() != SourceBuiltin {
		c.logger.Debug("provider function shadowed",
			slog.String("name", name),
			slog.String("kept", prev.source().String()))
		return false
	}
	c.entries[key] = e
	return true
}

// LookupScalar returns the scalar function registered under name.
func (c *Catalog) LookupScalar(name string) (*Scalar, bool) {
	e, ok := c.entries[c.dialect.NormalizeName(name)]
	if !ok || e.scalar == nil {
		return nil, false
	}
	return e.scalar, true
}

// LookupAggregate returns the aggregate function registered under name.
func (c *Catalog) LookupAggregate(name string) (*Aggregate, bool) {
	e, ok := c.entries[c.dialect.NormalizeName(name)]
	if !ok || e.aggregate == nil {
		return nil, false
	}
	return e.aggregate, true
}

// IsAggregate reports whether name refers to an aggregate function.
func (c *Catalog) IsAggregate(name string) bool {
	_, ok := c.LookupAggregate(name)
	return ok
}

// Len returns the number of functions in the catalog.
func (c *Catalog) Len() int { return len(c.entries) }

// Count returns the number of entries from src.
func (c *Catalog) Count(src Source) int {
	n := 0
	for _, e := range c.entries {
		if e.source() == src {
			n++
		}
	}
	return n
}

// Entries lists every function sorted by normalized name.
func (c *Catalog) Entries() []Entry {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e := c.entries[k]
		if e.scalar != nil {
			out = append(out, Entry{
				Name:      k,
				Kind:      dialect.FunctionScalar,
				Source:    e.scalar.Source,
				Origin:    e.scalar.Origin,
				Signature: c.signature(k, e.scalar.Source, e.scalar.Ref.String()),
			})
			continue
		}
		sig := fmt.Sprintf("%T", e.aggregate.Fn)
		if s, ok := e.aggregate.Fn.(fmt.Stringer); ok {
			sig = s.String()
		}
		out = append(out, Entry{
			Name:      k,
			Kind:      dialect.FunctionAggregate,
			Source:    e.aggregate.Source,
			Origin:    e.aggregate.Origin,
			Signature: c.signature(k, e.aggregate.Source, sig),
		})
	}
	return out
}

func (c *Catalog) signature(name string, src Source, fallback string) string {
	if src == SourceBuiltin {
		if doc, ok := c.dialect.GetDoc(name); ok {
			return doc.Signature
		}
	}
	return fallback
}
