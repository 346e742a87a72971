// Package ansi provides the base ANSI SQL dialect.
//
// This dialect serves as the foundation for the other dialects: DuckDB and
// PostgreSQL extend it and override identifier folding and parameter style.
package ansi

import (
	"github.com/leapstack-labs/flowsql/pkg/dialect"
)

func init() {
	dialect.Register(ANSI)
}

// ANSI is the base ANSI SQL dialect. Unquoted identifiers fold to upper case.
var ANSI = dialect.NewDialect("ansi").
	Identifiers(`"`, `"`, `""`, dialect.NormUppercase).
	PlaceholderStyle(dialect.PlaceholderQuestion).
	Aggregates("COUNT", "SUM", "AVG", "MIN", "MAX").
	Scalars("UPPER", "LOWER", "LENGTH", "ABS", "COALESCE", "CONCAT", "ROUND", "SUBSTR", "TRIM", "NULLIF").
	Doc("COUNT", dialect.FunctionDoc{Description: "Count rows or non-null values", Signature: "COUNT(*|expr) -> BIGINT"}).
	Doc("SUM", dialect.FunctionDoc{Description: "Sum of all values", Signature: "SUM(expr) -> numeric"}).
	Doc("AVG", dialect.FunctionDoc{Description: "Average of all values", Signature: "AVG(expr) -> DOUBLE"}).
	Doc("MIN", dialect.FunctionDoc{Description: "Minimum value", Signature: "MIN(expr) -> same"}).
	Doc("MAX", dialect.FunctionDoc{Description: "Maximum value", Signature: "MAX(expr) -> same"}).
	Doc("UPPER", dialect.FunctionDoc{Description: "Convert to upper case", Signature: "UPPER(s) -> VARCHAR"}).
	Doc("LOWER", dialect.FunctionDoc{Description: "Convert to lower case", Signature: "LOWER(s) -> VARCHAR"}).
	Doc("LENGTH", dialect.FunctionDoc{Description: "Number of characters", Signature: "LENGTH(s) -> BIGINT"}).
	Doc("ABS", dialect.FunctionDoc{Description: "Absolute value", Signature: "ABS(x) -> same"}).
	Doc("COALESCE", dialect.FunctionDoc{Description: "First non-null argument", Signature: "COALESCE(a, b, ...) -> same"}).
	Doc("CONCAT", dialect.FunctionDoc{Description: "Concatenate strings, skipping NULLs", Signature: "CONCAT(a, b, ...) -> VARCHAR"}).
	Doc("ROUND", dialect.FunctionDoc{Description: "Round to s decimal places", Signature: "ROUND(x, s) -> DOUBLE"}).
	Doc("SUBSTR", dialect.FunctionDoc{Description: "Substring from 1-based start", Signature: "SUBSTR(s, start, len) -> VARCHAR"}).
	Doc("TRIM", dialect.FunctionDoc{Description: "Strip surrounding whitespace", Signature: "TRIM(s) -> VARCHAR"}).
	Doc("NULLIF", dialect.FunctionDoc{Description: "NULL if both arguments are equal", Signature: "NULLIF(a, b) -> same"}).
	Build()
