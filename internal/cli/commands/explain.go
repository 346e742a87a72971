package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ExplainOptions holds options for the explain command.
type ExplainOptions struct {
	Input    string
	Tables   []string
	Pipeline bool
}

// NewExplainCommand creates the explain command.
func NewExplainCommand() *cobra.Command {
	opts := &ExplainOptions{}

	cmd := &cobra.Command{
		Use:   "explain [SQL]",
		Short: "Show the plan a query compiles to",
		Long: `Parse and bind a query against the configured inputs and print its
logical plan. With --pipeline, print the dataflow stages the plan
translates to instead. Nothing is read from the inputs beyond what
schema inference needs.`,
		Example: `  flowsql explain "SELECT customer, COUNT(*) FROM orders GROUP BY customer"
  flowsql explain --pipeline --input report.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
				return fmt.Errorf("no query given")
			}

			if !opts.Pipeline {
				out, err := explainQuery(cmd.Context(), cc, sqlText)
				if err != nil {
					return err
				}
				cc.Renderer.Text("%s", strings.TrimRight(out, "\n"))
				return nil
			}

			p, _, err := compileQuery(cmd.Context(), cc, sqlText)
			if err != nil {
				return err
			}
			names := make(map[string]string)
			nodes := p.Nodes()
			for _, n := range nodes {
				names[n.ID.String()] = n.Name
			}
			rows := make([][]any, len(nodes))
			for i, n := range nodes {
				inputs := make([]string, len(n.Inputs))
				for j, id := range n.Inputs {
					inputs[j] = names[id.String()]
				}
				rows[i] = []any{n.Kind, n.Name, strings.Join(inputs, ", "), n.Schema.String()}
			}
			return cc.Renderer.Rows([]string{"kind", "name", "inputs", "schema"}, rows)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringArrayVarP(&opts.Tables, "table", "t", nil, "Add a file input as name=path (repeatable)")
	cmd.Flags().BoolVar(&opts.Pipeline, "pipeline", false, "Show dataflow stages instead of the logical plan")

	return cmd
}
