package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qualsim",
		Short: "Qualitative state-transition simulator",
		Long: `qualsim simulates physical objects described by symbolic attribute levels.

Actions from a YAML knowledge base are applied step by step. When an
attribute's level is uncertain, the run forks into every world consistent
with what is known and produces a tree of possible futures.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.qualsim/config.yaml then <root>/.qualsim/config.yaml)")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics of the run to this file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newSimulateCmd(),
		newResolveCmd(),
		newValidateCmd(),
		newLevelsCmd(),
		newRunsCmd(),
		newGraphCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}
