// Package commands implements the flowsql subcommands.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowsql/internal/cli/config"
	"github.com/leapstack-labs/flowsql/internal/cli/output"
	"github.com/leapstack-labs/flowsql/internal/provider"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/dialect"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Inputs   *InputSet

	// Functions is the Starlark provider for the functions directory. It is
	// registered globally, so auto-load finds it through the registry.
	Functions *provider.Provider
}

// NewCommandContext builds the context from the config and logger stored
// on the command. extra adds inputs given on the command line. The cleanup
// function closes database connections and must be called.
func NewCommandContext(cmd *cobra.Command, extra []InputConfig) (*CommandContext, func(), error) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	inputs := append(append([]InputConfig(nil), cfg.Inputs...), extra...)
	set, err := NewInputSet(inputs, logger)
	if err != nil {
		return nil, nil, err
	}

	cc := &CommandContext{
		Cfg:       cfg,
		Logger:    logger,
		Renderer:  output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
		Inputs:    set,
		Functions: provider.Register(cfg.FunctionsDir, logger),
	}
	cleanup := func() {
		if err := set.Close(); err != nil {
			logger.Warn("failed to close inputs", slog.String("error", err.Error()))
		}
	}
	return cc, cleanup, nil
}

// Dialect returns the configured dialect. Without one, inputs that all come
// from one kind of database use that database's dialect; anything else
// compiles as ANSI.
func (c *CommandContext) Dialect() *dialect.Dialect {
	if c.Cfg.Dialect != "" {
		if d, ok := dialect.Get(c.Cfg.Dialect); ok {
			return d
		}
	}
	return c.Inputs.Dialect()
}

func newPipeline(cc *CommandContext) *dataflow.Pipeline {
	return dataflow.NewPipeline(dataflow.WithLogger(cc.Logger))
}
