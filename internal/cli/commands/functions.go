package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowsql/pkg/env"
	"github.com/leapstack-labs/flowsql/pkg/functions"
	"github.com/leapstack-labs/flowsql/pkg/sqlflow"
)

// NewFunctionsCommand creates the functions command.
func NewFunctionsCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the functions available to queries",
		Long: `List builtin functions and, when auto-load is enabled, the functions
defined in *.star files in the functions directory.`,
		Example: `  flowsql functions
  flowsql functions --kind aggregate -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			return listFunctions(cc, kind)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list functions of this kind (scalar|aggregate)")
	_ = cmd.RegisterFlagCompletionFunc("kind", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"scalar", "aggregate"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// catalogEntries builds the catalog a query would see and lists it.
func catalogEntries(cc *CommandContext) ([]functions.Entry, error) {
	environment := env.CreateEnvironment(sqlflow.DefaultTableName, nil, env.Options{
		Dialect: cc.Dialect(),
		Logger:  cc.Logger,
	})
	if cc.Cfg.AutoLoad {
		if err := environment.LoadFunctionsFromProviders(); err != nil {
			return nil, err
		}
	}
	return environment.Catalog().Entries(), nil
}

func listFunctions(cc *CommandContext, kind string) error {
	kind = strings.ToLower(kind)
	if kind != "" && kind != "scalar" && kind != "aggregate" {
		return fmt.Errorf("invalid kind %q (expected scalar or aggregate)", kind)
	}
	entries, err := catalogEntries(cc)
	if err != nil {
		return err
	}
	if kind != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Kind.String() == kind {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	return renderFunctions(cc.Renderer, entries)
}
