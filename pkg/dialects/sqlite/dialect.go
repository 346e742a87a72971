// Package sqlite provides the SQLite SQL dialect.
package sqlite

import (
	"github.com/leapstack-labs/flowsql/pkg/dialect"
	"github.com/leapstack-labs/flowsql/pkg/dialects/ansi"
)

func init() {
	dialect.Register(SQLite, "sqlite3")
}

// SQLite folds identifiers to lower case and reads from schema "main".
var SQLite = dialect.Extend(ansi.ANSI, "sqlite").
	Identifiers(`"`, `"`, `""`, dialect.NormLowercase).
	DefaultSchema("main").
	Build()
