package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowsql/internal/cli/output"
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/sqlflow"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Input  string
	Tables []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a SQL query over the configured inputs",
		Long: `Compile a SQL query into a dataflow pipeline over the inputs in
flowsql.yaml and print the result.

Each input is visible as a table under its name. Functions defined in
*.star files in the functions directory are available when auto-load
is enabled.

When invoked without arguments on a terminal, enters interactive REPL mode.`,
		Example: `  # Query a configured input
  flowsql query "SELECT customer, SUM(amount) FROM orders GROUP BY customer"

  # Add an input from the command line
  flowsql query -t events=data/events.jsonl "SELECT COUNT(*) FROM events"

  # Read SQL from a file, output as JSON
  flowsql query --input report.sql -o json

  # Interactive mode
  flowsql query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringArrayVarP(&opts.Tables, "table", "t", nil, "Add a file input as name=path (repeatable)")

	return cmd
}

// readSQL returns the query from args, the input file or piped stdin. ok is
// false when there is nothing to read and stdin is a terminal.
func readSQL(cmd *cobra.Command, args []string, inputFile string) (sql string, ok bool, err error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), true, nil
	case inputFile != "":
		content, err := os.ReadFile(inputFile)
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(content), true, nil
	}

	in := cmd.InOrStdin()
	if output.IsTerminal(in) {
		return "", false, nil
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return "", false, fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(content), true, nil
}

// parseTables parses repeated name=path flags.
func parseTables(specs []string) ([]InputConfig, error) {
	inputs := make([]InputConfig, 0, len(specs))
	for _, s := range specs {
		in, err := ParseInputFlag(s)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	extra, err := parseTables(opts.Tables)
	if err != nil {
		return err
	}
	cc, cleanup, err := NewCommandContext(cmd, extra)
	if err != nil {
		return err
	}
	defer cleanup()

	sqlText, ok, err := readSQL(cmd, args, opts.Input)
	if err != nil {
		return err
	}
	if !ok {
		return runQueryREPL(cmd, cc)
	}
	return executeAndRender(cmd.Context(), cc, sqlText)
}

// QueryResult is the collected output of one query.
type QueryResult struct {
	Schema  core.Schema
	Rows    []core.Row
	Elapsed time.Duration
}

// normalizeSQL trims whitespace and trailing semicolons.
func normalizeSQL(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// compileQuery builds a pipeline over the inputs with sqlText compiled into
// it, returning the output stream.
func compileQuery(ctx context.Context, cc *CommandContext, sqlText string) (*dataflow.Pipeline, *dataflow.Stream, error) {
	t, err := sqlflow.Query(normalizeSQL(sqlText))
	if err != nil {
		return nil, nil, err
	}
	t = t.WithAutoFunctionLoad(cc.Cfg.AutoLoad)

	p := newPipeline(cc)
	input, err := cc.Inputs.Streams(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	out, err := sqlflow.Compile(p, t, input,
		sqlflow.WithLogger(cc.Logger),
		sqlflow.WithDialect(cc.Dialect()))
	if err != nil {
		return nil, nil, err
	}
	return p, out, nil
}

// ExecuteQuery compiles and runs sqlText and collects its rows.
func ExecuteQuery(ctx context.Context, cc *CommandContext, sqlText string) (*QueryResult, error) {
	start := time.Now()
	p, out, err := compileQuery(ctx, cc, sqlText)
	if err != nil {
		return nil, err
	}
	c := dataflow.Collect(out)
	if err := p.Run(ctx); err != nil {
		return nil, err
	}
	res := &QueryResult{Schema: c.Schema(), Rows: c.Rows(), Elapsed: time.Since(start)}
	cc.Logger.Debug("query finished",
		slog.String("pipeline", p.ID().String()),
		slog.Int("rows", len(res.Rows)),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

func executeAndRender(ctx context.Context, cc *CommandContext, sqlText string) error {
	res, err := ExecuteQuery(ctx, cc, sqlText)
	if err != nil {
		return err
	}
	return renderResult(cc.Renderer, res)
}
