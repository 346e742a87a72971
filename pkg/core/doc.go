// Package core defines the shared language of the flowsql system.
//
// This package contains:
//   - The SQL AST produced by pkg/parser (Node, Expr, SelectStmt, ...)
//   - The value model shared by the planner and the dataflow runtime
//     (Type, Field, Schema, Row)
//   - The error taxonomy surfaced by compilation
//
// The Golden Rule: pkg/core imports ONLY pkg/token and stdlib.
// All other packages depend on core, not the reverse.
package core
