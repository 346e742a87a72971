package commands

import (
	"github.com/leapstack-labs/flowsql/internal/cli/output"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/functions"
)

func renderResult(r *output.Renderer, res *QueryResult) error {
	rows := make([][]any, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = row
	}
	return r.Rows(res.Schema.Names(), rows)
}

func renderSchema(r *output.Renderer, schema core.Schema) error {
	rows := make([][]any, len(schema.Fields))
	for i, f := range schema.Fields {
		nullable := "YES"
		if !f.Nullable {
			nullable = "NO"
		}
		rows[i] = []any{f.Name, f.Type.String(), nullable}
	}
	return r.Rows([]string{"column", "type", "nullable"}, rows)
}

func renderFunctions(r *output.Renderer, entries []functions.Entry) error {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.Name, e.Kind.String(), e.Source.String(), e.Origin, e.Signature}
	}
	return r.Rows([]string{"name", "kind", "source", "origin", "signature"}, rows)
}
