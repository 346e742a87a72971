package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/leapstack-labs/flowsql/internal/cli/config"
	intconfig "github.com/leapstack-labs/flowsql/internal/config"
	"github.com/leapstack-labs/flowsql/pkg/adapter"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/source"

	// Database adapters available as input types.
	_ "github.com/leapstack-labs/flowsql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/flowsql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/flowsql/pkg/adapters/sqlite"
)

// InputConfig is an alias for the configured input type.
type InputConfig = config.InputConfig

// fileParams are the params accepted by file inputs.
type fileParams struct {
	Delimiter  string `mapstructure:"delimiter"`
	Null       string `mapstructure:"null"`
	SampleSize int    `mapstructure:"sample_size"`
}

// InputSet opens the configured inputs as streams. Database connections
// are opened on first use and reused for every pipeline.
type InputSet struct {
	inputs []InputConfig
	logger *slog.Logger

	mu       sync.Mutex
	adapters map[string]adapter.Adapter
}

// NewInputSet validates inputs and returns a set over them.
func NewInputSet(inputs []InputConfig, logger *slog.Logger) (*InputSet, error) {
	project := intconfig.ProjectConfig{Inputs: inputs}
	if err := project.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &InputSet{
		inputs:   inputs,
		logger:   logger,
		adapters: make(map[string]adapter.Adapter),
	}, nil
}

// ParseInputFlag parses a name=path input given on the command line. The
// type comes from the file extension.
func ParseInputFlag(s string) (InputConfig, error) {
	name, path, ok := strings.Cut(s, "=")
	if !ok || name == "" || path == "" {
		return InputConfig{}, fmt.Errorf("invalid input %q (expected name=path)", s)
	}
	format, err := source.FormatFor(path)
	if err != nil {
		return InputConfig{}, fmt.Errorf("input %s: %w", name, err)
	}
	return InputConfig{Name: name, Type: string(format), Path: path}, nil
}

// Names returns the input names in configuration order.
func (s *InputSet) Names() []string {
	names := make([]string, len(s.inputs))
	for i, in := range s.inputs {
		names[i] = in.Name
	}
	return names
}

// Inputs returns the input configurations.
func (s *InputSet) Inputs() []InputConfig { return s.inputs }

// Streams adds a source for every input to p, tagged with the input name.
func (s *InputSet) Streams(ctx context.Context, p *dataflow.Pipeline) (dataflow.Tagged, error) {
	tagged := dataflow.NewTagged()
	for i := range s.inputs {
		in := &s.inputs[i]
		st, err := s.open(ctx, p, in)
		if err != nil {
			return dataflow.Tagged{}, fmt.Errorf("failed to open input %s: %w", in.Name, err)
		}
		tagged = tagged.With(in.Name, st)
	}
	return tagged, nil
}

// Schema returns the schema of the input named name without reading its
// rows.
func (s *InputSet) Schema(ctx context.Context, name string) (core.Schema, error) {
	for i := range s.inputs {
		in := &s.inputs[i]
		if !strings.EqualFold(in.Name, name) {
			continue
		}
		st, err := s.open(ctx, dataflow.NewPipeline(dataflow.WithLogger(s.logger)), in)
		if err != nil {
			return core.Schema{}, err
		}
		return st.Schema(), nil
	}
	return core.Schema{}, fmt.Errorf("no input named %q", name)
}

func (s *InputSet) open(ctx context.Context, p *dataflow.Pipeline, in *InputConfig) (*dataflow.Stream, error) {
	if !in.IsFile() {
		a, err := s.connect(ctx, in)
		if err != nil {
			return nil, err
		}
		return adapter.TableStream(ctx, p, a, in.TableName())
	}

	var fp fileParams
	if err := adapter.DecodeParams(adapter.Config{Type: in.Type, Params: in.Params}, &fp); err != nil {
		return nil, err
	}
	var opts []source.Option
	if fp.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(fp.Delimiter)
		if size != len(fp.Delimiter) {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", fp.Delimiter)
		}
		opts = append(opts, source.WithDelimiter(r))
	}
	if fp.Null != "" {
		opts = append(opts, source.WithNullString(fp.Null))
	}
	if fp.SampleSize > 0 {
		opts = append(opts, source.WithSampleSize(fp.SampleSize))
	}

	switch source.Format(strings.ToLower(in.Type)) {
	case source.FormatCSV:
		return source.CSV(p, in.Name, in.Path, opts...)
	case source.FormatJSON:
		return source.JSON(p, in.Name, in.Path, opts...)
	case source.FormatParquet:
		return source.Parquet(p, in.Name, in.Path, opts...)
	default:
		return source.YAML(p, in.Name, in.Path, opts...)
	}
}

func (s *InputSet) connect(ctx context.Context, in *InputConfig) (adapter.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.adapters[in.Name]; ok {
		return a, nil
	}

	cfg := in.AdapterConfig()
	a, err := adapter.NewAdapter(cfg, s.logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	s.logger.Debug("input connected", slog.String("input", in.Name), slog.String("type", cfg.Type))
	s.adapters[in.Name] = a
	return a, nil
}

// Dialect returns the dialect shared by the database inputs, or nil when
// there are none or they differ.
func (s *InputSet) Dialect() *dialect.Dialect {
	var types []string
	for _, in := range s.inputs {
		if in.IsFile() {
			continue
		}
		t := strings.ToLower(in.Type)
		if len(types) > 0 && types[0] != t {
			return nil
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil
	}
	d, _ := adapter.DialectFor(types[0])
	return d
}

// WatchPaths returns the files the inputs read, sorted.
func (s *InputSet) WatchPaths() []string {
	var paths []string
	for _, in := range s.inputs {
		if in.Path != "" && in.Path != ":memory:" {
			paths = append(paths, in.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Close closes every open database connection.
func (s *InputSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, a := range s.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input %s: %w", name, err))
		}
		delete(s.adapters, name)
	}
	return errors.Join(errs...)
}
