// Package adapter reads database tables and queries as dataflow input
// streams.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves from init. Import them with a blank identifier:
//
//	import _ "github.com/leapstack-labs/flowsql/pkg/adapters/duckdb"
package adapter

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
)

// Config describes a database connection.
type Config struct {
	Type     string            `koanf:"type" mapstructure:"type"`
	Path     string            `koanf:"path" mapstructure:"path"`
	DSN      string            `koanf:"dsn" mapstructure:"dsn"`
	Host     string            `koanf:"host" mapstructure:"host"`
	Port     int               `koanf:"port" mapstructure:"port"`
	Database string            `koanf:"database" mapstructure:"database"`
	Username string            `koanf:"username" mapstructure:"username"`
	Password string            `koanf:"password" mapstructure:"password"`
	Options  map[string]string `koanf:"options" mapstructure:"options"`
	// Params holds adapter-specific settings, decoded by each adapter.
	Params map[string]any `koanf:"params" mapstructure:"params"`
}

// Column describes one column of a database table.
type Column struct {
	Name     string
	Type     string // as reported by the database
	Nullable bool
	Position int
}

// Metadata describes a database table.
type Metadata struct {
	Schema  string
	Name    string
	Columns []Column
}

// CoreSchema maps the columns onto a record schema. Unknown database types
// become core.TypeAny.
func (m *Metadata) CoreSchema() core.Schema {
	fields := make([]core.Field, len(m.Columns))
	for i, c := range m.Columns {
		typ, _ := core.ParseTypeName(c.Type)
		fields[i] = core.Field{Name: c.Name, Type: typ, Nullable: c.Nullable}
	}
	return core.NewSchema(fields...)
}

// Adapter is a database connection that can describe and read tables.
type Adapter interface {
	// Connect opens the connection described by cfg.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Query runs a statement that returns rows. The caller closes them.
	Query(ctx context.Context, sql string) (*sql.Rows, error)

	// GetTableMetadata describes table, which may be schema-qualified.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// Dialect returns the SQL dialect used for quoting and for queries
	// compiled over this adapter's tables.
	Dialect() *dialect.Dialect
}
