package main

import (
	"errors"
	"fmt"

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/store"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [run-id]",
		Short: "Visualize a simulation tree",
		Long: `Output a stored run or an exported tree document in DOT (Graphviz) or
as an indented text outline.

Examples:
  qualsim graph <run-id> | dot -Tsvg > tree.svg
  qualsim graph --document tree.yaml --format text
  qualsim graph <run-id> -o tree.dot --attributes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			docPath, _ := cmd.Flags().GetString("document")
			opts := readOutputFlags(cmd)
			if opts.format == "" {
				opts.format = constants.FormatDOT
			}
			if opts.format != constants.FormatDOT && opts.format != constants.FormatText {
				return fmt.Errorf("invalid format: %s (must be dot or text)", opts.format)
			}

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			var doc *export.Document
			switch {
			case len(args) == 1 && docPath != "":
				return fmt.Errorf("give either a run id or --document, not both")
			case len(args) == 1:
				runs, err := openRunStore(root, settings)
				if err != nil {
					return err
				}
				defer runs.Close()
				doc, err = runs.GetRun(cmd.Context(), args[0])
				if errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("run not found: %s", args[0])
				}
				if err != nil {
					return fmt.Errorf("failed to load run: %w", err)
				}
			case docPath != "":
				doc, err = export.ReadFile(docPath)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("a run id or --document is required")
			}

			if opts.output != "" {
				allowed, err := allowedOutputDirs(root, settings)
				if err != nil {
					return err
				}
				if err := writeDocumentFile(opts.output, doc, opts.format, opts.attributes, allowed); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s graph to %s\n", opts.format, opts.output)
				return nil
			}
			return writeDocument(cmd.OutOrStdout(), doc, opts.format, opts.attributes, false)
		},
	}

	cmd.Flags().String("document", "", "Read the tree from an exported document instead of the run store")
	addOutputFlags(cmd)
	cmd.Flags().Lookup("format").Usage = "Output format: dot or text"

	return cmd
}
