package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/uber/lsp-mcp/src/lspmcp/app"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/core"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/mcpfx"
	"go.uber.org/fx"
)

const _version = "0.1.0"

func opts(flags app.Flags) fx.Option {
	return fx.Options(
		app.Module,
		fx.Supply(flags),
	)
}

func newRootCommand() *cobra.Command {
	var (
		flags     app.Flags
		configDir string
	)

	cmd := &cobra.Command{
		Use:          "lsp-mcp",
		Short:        "Serve language analyzer queries as MCP tools",
		Version:      _version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configDir != "" {
				if err := os.Setenv(core.EnvConfigDir, configDir); err != nil {
					return fmt.Errorf("setting %s: %w", core.EnvConfigDir, err)
				}
			}
			mcpfx.Version = _version

			// Run exits the process with a non-zero status when startup fails.
			fx.New(opts(flags)).Run()
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory holding meta.yaml (defaults to $"+core.EnvConfigDir+")")
	cmd.Flags().StringArrayVar(&flags.Projects, "project", nil, "project root to bridge; repeat for several projects")
	cmd.Flags().StringVar(&flags.Transport, "transport", "", "tool transport: stdio or sse")
	cmd.Flags().StringVar(&flags.Address, "address", "", "host:port to listen on with the sse transport")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
