// Package source reads record files as query input streams.
//
// CSV, JSON, YAML and Parquet files are supported. Parquet schemas come
// from the file footer. For the other formats, unless a schema is supplied,
// the schema is inferred from a sample of leading records when the stream
// is created; the file itself is read again when the pipeline runs.
package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// Format identifies a record file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"

	FormatParquet Format = "parquet"
)

// DefaultSampleSize is the number of records inspected for schema
// inference.
const DefaultSampleSize = 1000

type options struct {
	schema    *core.Schema
	sample    int
	delimiter rune
	null      string
}

// Option configures a file source.
type Option func(*options)

// WithSchema skips inference and reads values as the given schema.
func WithSchema(s core.Schema) Option {
	return func(o *options) { o.schema = &s }
}

// WithSampleSize sets how many records inference inspects. Values below 1
// restore the default.
func WithSampleSize(n int) Option {
	return func(o *options) { o.sample = n }
}

// WithDelimiter sets the CSV field delimiter.
func WithDelimiter(r rune) Option {
	return func(o *options) { o.delimiter = r }
}

// WithNullString sets the CSV cell text read as NULL, in addition to the
// empty cell.
func WithNullString(s string) Option {
	return func(o *options) { o.null = s }
}

func newOptions(opts []Option) options {
	o := options{delimiter: ','}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sample < 1 {
		o.sample = DefaultSampleSize
	}
	return o
}

// FormatFor picks a format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".parquet":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}

// Open returns a stream named name over the records of path, choosing the
// reader from the file extension. Tab separated files default to a tab
// delimiter.
func Open(p *dataflow.Pipeline, name, path string, opts ...Option) (*dataflow.Stream, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts = append([]Option{WithDelimiter('\t')}, opts...)
	}
	switch format {
	case FormatCSV:
		return CSV(p, name, path, opts...)
	case FormatJSON:
		return JSON(p, name, path, opts...)
	case FormatParquet:
		return Parquet(p, name, path, opts...)
	default:
		return YAML(p, name, path, opts...)
	}
}

// mergeType widens two observed types to one that holds both. NULL adds
// nothing; INT and FLOAT widen to FLOAT; any other mix is ANY.
func mergeType(a, b core.Type) core.Type {
	switch {
	case a == b:
		return a
	case a == core.TypeNull:
		return b
	case b == core.TypeNull:
		return a
	case a.IsNumeric() && b.IsNumeric():
		return core.TypeFloat
	}
	return core.TypeAny
}

// castValue converts a decoded value to the column type. NULL stays NULL.
func castValue(v any, f core.Field) (any, error) {
	if v == nil || f.Type == core.TypeAny {
		return v, nil
	}
	out, err := core.Cast(v, f.Type)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", f.Name, err)
	}
	return out, nil
}
