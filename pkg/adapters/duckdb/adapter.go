// Package duckdb reads DuckDB tables as query input streams.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/adapter"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	duckdbdialect "github.com/leapstack-labs/flowsql/pkg/dialects/duckdb"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements adapter.Adapter for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates an unconnected DuckDB adapter. A nil logger discards output.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger}}
}

// Connect opens the database at cfg.Path, or an in-memory database when the
// path is empty, then applies extensions, settings, secrets and file loads
// from cfg.Params.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg

	if err := a.applyParams(ctx, params); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}

	a.Logger.Debug("connected to duckdb", slog.String("path", path))
	return nil
}

func (a *Adapter) applyParams(ctx context.Context, params *Params) error {
	for _, ext := range params.Extensions {
		if err := a.Exec(ctx, "INSTALL "+ext); err != nil {
			return fmt.Errorf("failed to install extension %s: %w", ext, err)
		}
		if err := a.Exec(ctx, "LOAD "+ext); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	keys := make([]string, 0, len(params.Settings))
	for k := range params.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmt := fmt.Sprintf("SET %s = '%s'", k, escapeString(params.Settings[k]))
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}

	for i, s := range params.Secrets {
		if err := a.Exec(ctx, buildCreateSecretSQL(s)); err != nil {
			return fmt.Errorf("failed to create secret %d (%s): %w", i, s.Type, err)
		}
	}

	tables := make([]string, 0, len(params.Load))
	for t := range params.Load {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		if err := a.LoadFile(ctx, t, params.Load[t]); err != nil {
			return err
		}
	}
	return nil
}

// GetTableMetadata describes table through DuckDB's information_schema.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.GetTableMetadataCommon(ctx, table, a.Dialect())
}

// Dialect returns the DuckDB dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return duckdbdialect.DuckDB
}

// LoadFile creates or replaces table with the contents of a CSV, Parquet or
// JSON file, letting DuckDB infer the schema.
func (a *Adapter) LoadFile(ctx context.Context, table, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var reader string
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".csv", ".tsv":
		reader = "read_csv_auto"
	case ".parquet":
		reader = "read_parquet"
	case ".json", ".jsonl", ".ndjson":
		reader = "read_json_auto"
	default:
		return fmt.Errorf("unsupported file type %q", filepath.Ext(absPath))
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s('%s')",
		a.Dialect().QuoteIdentifier(table), reader, escapeString(absPath))
	if err := a.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

var _ adapter.Adapter = (*Adapter)(nil)
