// Package duckdb provides the DuckDB SQL dialect.
package duckdb

import (
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/dialects/ansi"
)

func init() {
	dialect.Register(DuckDB)
}

// DuckDB folds identifiers to lower case and reads from schema "main".
var DuckDB = dialect.Extend(ansi.ANSI, "duckdb").
	Identifiers(`"`, `"`, `""`, dialect.NormLowercase).
	DefaultSchema("main").
	PlaceholderStyle(dialect.PlaceholderQuestion).
	Build()
