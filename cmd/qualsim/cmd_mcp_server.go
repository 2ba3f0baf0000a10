package main

import (
	"fmt"

	"github.com/nvandessel/qualsim/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve qualsim tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: qualsim_simulate, qualsim_validate, qualsim_levels, qualsim_runs,
qualsim_graph. Resources: qualsim://kb and qualsim://runs/{id}.

Configure it in an MCP client as:
  {"command": "qualsim", "args": ["mcp-server", "--root", "/path/to/project"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "qualsim",
				Version:  version,
				Root:     root,
				Settings: settings,
				Logger:   newLogger(cmd, settings),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(cmd.Context())
		},
	}
}
