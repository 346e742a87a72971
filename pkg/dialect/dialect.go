// Package dialect provides SQL dialect configuration and function classification.
//
// A dialect decides how identifiers are folded when function and table names
// are looked up, which builtin function names are aggregates, and how source
// databases expect identifiers and parameters to be written. Concrete dialects
// are registered from pkg/dialects/*/ packages.
package dialect

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizationStrategy controls how unquoted identifiers are folded.
type NormalizationStrategy int

// Normalization strategies.
const (
	NormCaseSensitive NormalizationStrategy = iota
	NormUppercase
	NormLowercase
)

// PlaceholderStyle is how a source database writes bind parameters.
type PlaceholderStyle int

// Placeholder styles.
const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1, $2
)

// FunctionKind classifies builtin functions.
type FunctionKind int

// Function kinds.
const (
	FunctionScalar FunctionKind = iota
	FunctionAggregate
)

func (k FunctionKind) String() string {
	if k == FunctionAggregate {
		return "aggregate"
	}
	return "scalar"
}

// FunctionDoc contains documentation metadata for a builtin function.
type FunctionDoc struct {
	Description string
	Signature   string
}

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name          string
	Normalization NormalizationStrategy
	DefaultSchema string
	Placeholder   PlaceholderStyle

	quote    string
	quoteEnd string
	escape   string

	aggregates map[string]struct{}
	scalars    map[string]struct{}
	docs       map[string]FunctionDoc
}

// NormalizeName normalizes an identifier according to dialect rules.
func (d *Dialect) NormalizeName(name string) string {
	switch d.Normalization {
	case NormUppercase:
		// Casers carry state and cannot be shared across goroutines.
		return cases.Upper(language.Und).String(name)
	case NormLowercase:
		return cases.Lower(language.Und).String(name)
	default:
		return name
	}
}

// SameName reports whether two identifiers refer to the same object.
func (d *Dialect) SameName(a, b string) bool {
	return a == b || d.NormalizeName(a) == d.NormalizeName(b)
}

// IsAggregate returns true if name is a builtin aggregate function.
func (d *Dialect) IsAggregate(name string) bool {
	_, ok := d.aggregates[d.NormalizeName(name)]
	return ok
}

// Kind returns the classification of a builtin function and whether it is known.
func (d *Dialect) Kind(name string) (FunctionKind, bool) {
	n := d.NormalizeName(name)
	if _, ok := d.aggregates[n]; ok {
		return FunctionAggregate, true
	}
	if _, ok := d.scalars[n]; ok {
		return FunctionScalar, true
	}
	return FunctionScalar, false
}

// GetDoc returns documentation for a builtin function.
func (d *Dialect) GetDoc(name string) (FunctionDoc, bool) {
	doc, ok := d.docs[d.NormalizeName(name)]
	return doc, ok
}

// AllFunctions returns all builtin function names, sorted.
func (d *Dialect) AllFunctions() []string {
	funcs := make([]string, 0, len(d.aggregates)+len(d.scalars))
	for f := range d.aggregates {
		funcs = append(funcs, f)
	}
	for f := range d.scalars {
		funcs = append(funcs, f)
	}
	sort.Strings(funcs)
	return funcs
}

// FormatPlaceholder returns a placeholder for the given parameter index (1-based).
func (d *Dialect) FormatPlaceholder(index int) string {
	if d.Placeholder == PlaceholderDollar {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}

// QuoteIdentifier quotes an identifier using the dialect's quote characters.
func (d *Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.quoteEnd, d.escape)
	return d.quote + escaped + d.quoteEnd
}

// QuoteQualified quotes each dot-separated part of a qualified name.
func (d *Dialect) QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = d.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// ---------- Builder ----------

// Builder provides a fluent API for constructing dialects.
type Builder struct {
	d *Dialect
}

// NewDialect starts building a dialect with ANSI defaults: uppercase folding
// and double-quoted identifiers.
func NewDialect(name string) *Builder {
	return &Builder{d: &Dialect{
		Name:          name,
		Normalization: NormUppercase,
		quote:         `"`,
		quoteEnd:      `"`,
		escape:        `""`,
		aggregates:    make(map[string]struct{}),
		scalars:       make(map[string]struct{}),
		docs:          make(map[string]FunctionDoc),
	}}
}

// Extend starts building a dialect that inherits every setting and function
// of base.
func Extend(base *Dialect, name string) *Builder {
	b := NewDialect(name)
	b.d.Normalization = base.Normalization
	b.d.DefaultSchema = base.DefaultSchema
	b.d.Placeholder = base.Placeholder
	b.d.quote, b.d.quoteEnd, b.d.escape = base.quote, base.quoteEnd, base.escape
	for f := range base.aggregates {
		b.d.aggregates[f] = struct{}{}
	}
	for f := range base.scalars {
		b.d.scalars[f] = struct{}{}
	}
	for f, doc := range base.docs {
		b.d.docs[f] = doc
	}
	return b
}

// Identifiers sets quoting and folding rules.
func (b *Builder) Identifiers(quote, quoteEnd, escape string, norm NormalizationStrategy) *Builder {
	b.d.quote, b.d.quoteEnd, b.d.escape = quote, quoteEnd, escape
	b.d.Normalization = norm
	return b
}

// DefaultSchema sets the schema used for unqualified table names.
func (b *Builder) DefaultSchema(schema string) *Builder {
	b.d.DefaultSchema = schema
	return b
}

// PlaceholderStyle sets the bind parameter style.
func (b *Builder) PlaceholderStyle(style PlaceholderStyle) *Builder {
	b.d.Placeholder = style
	return b
}

// Aggregates registers builtin aggregate function names.
func (b *Builder) Aggregates(names ...string) *Builder {
	b.d.aggregates = addNames(b.d.aggregates, names)
	return b
}

// Scalars registers builtin scalar function names.
func (b *Builder) Scalars(names ...string) *Builder {
	b.d.scalars = addNames(b.d.scalars, names)
	return b
}

// Doc attaches documentation to a function.
func (b *Builder) Doc(name string, doc FunctionDoc) *Builder {
	b.d.docs[strings.ToUpper(name)] = doc
	return b
}

// Build finalizes the dialect. Function names are re-keyed with the final
// normalization strategy.
func (b *Builder) Build() *Dialect {
	d := b.d
	d.aggregates = rekey(d, d.aggregates)
	d.scalars = rekey(d, d.scalars)
	docs := make(map[string]FunctionDoc, len(d.docs))
	for name, doc := range d.docs {
		docs[d.NormalizeName(name)] = doc
	}
	d.docs = docs
	return d
}

func addNames(set map[string]struct{}, names []string) map[string]struct{} {
	for _, n := range names {
		set[strings.ToUpper(n)] = struct{}{}
	}
	return set
}

func rekey(d *Dialect, set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for n := range set {
		out[d.NormalizeName(n)] = struct{}{}
	}
	return out
}
