// Package config provides the project configuration types for flowsql.
// This package is decoupled from CLI concerns so that tools other than the
// command line can load a project's inputs and function settings.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/adapter"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
)

// File input types. Every other input type names a database adapter.
const (
	InputCSV     = "csv"
	InputJSON    = "json"
	InputYAML    = "yaml"
	InputParquet = "parquet"
)

// InputConfig describes one named input table.
type InputConfig struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"` // csv, json, yaml, parquet, duckdb, postgres, sqlite

	// Path is the record file for file inputs and the database file for
	// duckdb and sqlite.
	Path string `koanf:"path"`

	// Table is the database table to read. Defaults to Name.
	Table string `koanf:"table"`

	// DSN is a driver connection string for database inputs.
	DSN string `koanf:"dsn"`

	// Params holds input-specific settings: delimiter, null and sample_size
	// for files, extensions, settings and secrets for duckdb.
	Params map[string]any `koanf:"params"`
}

// IsFile reports whether the input reads a record file.
func (c *InputConfig) IsFile() bool {
	switch strings.ToLower(c.Type) {
	case InputCSV, InputJSON, InputYAML, InputParquet:
		return true
	}
	return false
}

// TableName returns the database table the input reads.
func (c *InputConfig) TableName() string {
	if c.Table != "" {
		return c.Table
	}
	return c.Name
}

// AdapterConfig converts a database input to an adapter connection config.
func (c *InputConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:   strings.ToLower(c.Type),
		Path:   c.Path,
		DSN:    c.DSN,
		Params: c.Params,
	}
}

// Validate checks that the input is complete. Database types are checked
// against the adapter registry.
func (c *InputConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("input name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("input %s: type is required", c.Name)
	}
	if c.IsFile() {
		if c.Path == "" {
			return fmt.Errorf("input %s: path is required for %s inputs", c.Name, c.Type)
		}
		return nil
	}
	if !adapter.IsRegistered(strings.ToLower(c.Type)) {
		return fmt.Errorf("input %s: %w", c.Name, &adapter.UnknownAdapterError{
			Type:      c.Type,
			Available: adapter.ListAdapters(),
		})
	}
	return nil
}

// ProjectConfig holds the settings shared by every flowsql command.
type ProjectConfig struct {
	Inputs       []InputConfig `koanf:"inputs"`
	FunctionsDir string        `koanf:"functions_dir"`
	AutoLoad     bool          `koanf:"auto_load"`
	Dialect      string        `koanf:"dialect"`
}

// Validate checks inputs for completeness and unique names, and that the
// dialect, if set, is registered.
func (c *ProjectConfig) Validate() error {
	seen := make(map[string]bool, len(c.Inputs))
	for i := range c.Inputs {
		in := &c.Inputs[i]
		if err := in.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(in.Name)
		if seen[key] {
			return fmt.Errorf("duplicate input name %q", in.Name)
		}
		seen[key] = true
	}
	if c.Dialect != "" {
		if _, err := dialect.Lookup(c.Dialect); err != nil {
			return err
		}
	}
	return nil
}

// Input returns the input named name, compared case-insensitively.
func (c *ProjectConfig) Input(name string) (*InputConfig, bool) {
	for i := range c.Inputs {
		if strings.EqualFold(c.Inputs[i].Name, name) {
			return &c.Inputs[i], true
		}
	}
	return nil, false
}
