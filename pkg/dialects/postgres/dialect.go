// Package postgres provides the PostgreSQL SQL dialect.
package postgres

import (
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/dialects/ansi"
)

func init() {
	dialect.Register(Postgres, "postgresql", "pg")
}

// Postgres folds identifiers to lower case, reads from schema "public" and
// uses $N parameters.
var Postgres = dialect.Extend(ansi.ANSI, "postgres").
	Identifiers(`"`, `"`, `""`, dialect.NormLowercase).
	DefaultSchema("public").
	PlaceholderStyle(dialect.PlaceholderDollar).
	Build()
