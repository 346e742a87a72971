package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowsql/pkg/plan"
	"github.com/leapstack-labs/flowsql/pkg/sqlflow"
)

const (
	replPrompt     = "flowsql> "
	replContPrompt = "    ...> "
)

// historyFileName is the REPL history file, kept in the project root.
const historyFileName = ".flowsql_history"

func runQueryREPL(cmd *cobra.Command, cc *CommandContext) error {
	ctx := cmd.Context()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(cc.Cfg.ProjectRoot, historyFileName),
		AutoComplete:    newInputCompleter(cc.Inputs.Names()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	cc.Renderer.Header(fmt.Sprintf("flowsql REPL (%d inputs)", len(cc.Inputs.Names())))
	cc.Renderer.Muted("Type .help for commands, .quit to exit")

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(ctx, cmd, cc, line); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := buf.String()
		buf.Reset()
		if err := executeAndRender(ctx, cc, query); err != nil {
			cc.Renderer.Error(err)
		}
	}
	return nil
}

// handleDotCommand runs a REPL command and reports whether the REPL should
// exit.
func handleDotCommand(ctx context.Context, cmd *cobra.Command, cc *CommandContext, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	var err error
	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".tables":
		rows := make([][]any, 0, len(cc.Inputs.Inputs()))
		for _, in := range cc.Inputs.Inputs() {
			rows = append(rows, []any{in.Name, in.Type, in.Path})
		}
		err = cc.Renderer.Rows([]string{"name", "type", "path"}, rows)

	case ".schema":
		if rest == "" {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .schema <input>")
			return false
		}
		schema, serr := cc.Inputs.Schema(ctx, rest)
		if serr != nil {
			err = serr
			break
		}
		err = renderSchema(cc.Renderer, schema)

	case ".explain":
		if rest == "" {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .explain <query>")
			return false
		}
		var out string
		if out, err = explainQuery(ctx, cc, rest); err == nil {
			cc.Renderer.Text("%s", out)
		}

	case ".functions":
		err = listFunctions(cc, "")

	case ".clear":
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
	}
	if err != nil {
		cc.Renderer.Error(err)
	}
	return false
}

// explainQuery returns the logical plan of sqlText as text.
func explainQuery(ctx context.Context, cc *CommandContext, sqlText string) (string, error) {
	t, err := sqlflow.Query(normalizeSQL(sqlText))
	if err != nil {
		return "", err
	}
	input, err := cc.Inputs.Streams(ctx, newPipeline(cc))
	if err != nil {
		return "", err
	}
	node, _, err := sqlflow.Plan(t.WithAutoFunctionLoad(cc.Cfg.AutoLoad), input,
		sqlflow.WithLogger(cc.Logger),
		sqlflow.WithDialect(cc.Dialect()))
	if err != nil {
		return "", err
	}
	return plan.Explain(node), nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .tables           List the inputs
  .schema <input>   Show the schema of an input
  .explain <query>  Show the logical plan of a query
  .functions        List available functions
  .clear            Clear the screen
  .quit / .exit     Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for input names
`
	_, _ = fmt.Fprintln(w, help)
}

// newInputCompleter creates a readline completer for input names and
// dot-commands.
func newInputCompleter(names []string) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(names)+8)
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	schemaItems := make([]readline.PrefixCompleterInterface, 0, len(names))
	for _, name := range names {
		schemaItems = append(schemaItems, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema", schemaItems...),
		readline.PcItem(".explain"),
		readline.PcItem(".functions"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
