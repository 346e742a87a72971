package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// TableStream describes table and returns a stream that reads all of its
// rows when p runs. The stream is named after the table.
func TableStream(ctx context.Context, p *dataflow.Pipeline, a Adapter, table string) (*dataflow.Stream, error) {
	md, err := a.GetTableMetadata(ctx, table)
	if err != nil {
		return nil, err
	}
	d := a.Dialect()
	cols := make([]string, len(md.Columns))
	for i, c := range md.Columns {
		cols[i] = d.QuoteIdentifier(c.Name)
	}
	from := d.QuoteIdentifier(md.Name)
	if md.Schema != "" {
		from = d.QuoteIdentifier(md.Schema) + "." + from
	}
	//nolint:gosec // identifiers are quoted by the dialect
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), from)
	return QueryStream(p, a, table, md.CoreSchema(), query), nil
}

// QueryStream returns a stream over the rows of query. The query runs when p
// runs; its columns must line up with schema.
func QueryStream(p *dataflow.Pipeline, a Adapter, name string, schema core.Schema, query string) *dataflow.Stream {
	return dataflow.FromSource(p, name, schema, func(ctx context.Context, emit dataflow.Emitter) error {
		rows, err := a.Query(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		return scanRows(rows, schema.Len(), emit)
	})
}

func scanRows(rows *sql.Rows, width int, emit dataflow.Emitter) error {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read result columns: %w", err)
	}
	if len(cols) != width {
		return fmt.Errorf("query returned %d columns, schema has %d", len(cols), width)
	}

	vals := make([]any, width)
	ptrs := make([]any, width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(core.Row, width)
		for i, v := range vals {
			row[i] = core.NormalizeValue(v)
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}
