package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nvandessel/qualsim/internal/config"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/kb"
	"github.com/nvandessel/qualsim/internal/logging"
	"github.com/nvandessel/qualsim/internal/metrics"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"github.com/nvandessel/qualsim/internal/simulation"
	"github.com/nvandessel/qualsim/internal/visualization"
	"github.com/spf13/cobra"
)

// outputOptions are the flags shared by commands that print a tree.
type outputOptions struct {
	format     string
	output     string
	attributes bool
	save       bool
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "", "Output format: text, json, yaml, dot (default from config)")
	cmd.Flags().StringP("output", "o", "", "Write the tree to this file instead of stdout")
	cmd.Flags().Bool("attributes", false, "Show every attribute at each node, not only changes")
}

func readOutputFlags(cmd *cobra.Command) outputOptions {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	attributes, _ := cmd.Flags().GetBool("attributes")
	return outputOptions{format: format, output: output, attributes: attributes}
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario>",
		Short: "Run a scenario and print the tree of possible futures",
		Long: `Run a scenario from the knowledge base.

Each step applies an action to every world reached so far. Uncertain
attributes fork the run into one child per consistent world. The finished
tree is stored in the run store unless --no-save is given.

Examples:
  qualsim simulate on_off                          # Outline of the tree
  qualsim simulate uncertain_battery --format dot  # Graphviz output
  qualsim simulate on_off -o tree.yaml             # Write the document
  qualsim simulate on_off --kb ./flashlight.yaml   # Use a specific knowledge base`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			kbPath, _ := cmd.Flags().GetString("kb")
			maxNodes, _ := cmd.Flags().GetInt("max-nodes")
			noSave, _ := cmd.Flags().GetBool("no-save")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if maxNodes > 0 {
				settings.Simulation.MaxNodes = maxNodes
			}

			knowledge, err := loadKnowledge(root, kbPath)
			if err != nil {
				return err
			}
			sc, err := knowledge.Scenario(args[0])
			if err != nil {
				return err
			}

			opts := readOutputFlags(cmd)
			opts.save = !noSave
			return runScenario(cmd, settings, knowledge, sc, opts)
		},
	}

	cmd.Flags().String("kb", "", "Knowledge base file or directory (default: .qualsim/kb)")
	cmd.Flags().Int("max-nodes", 0, "Node budget of the run (default from config)")
	cmd.Flags().Bool("no-save", false, "Do not store the finished run")
	addOutputFlags(cmd)

	return cmd
}

// runScenario simulates sc, stores the finished run and prints or writes
// the tree.
func runScenario(cmd *cobra.Command, settings *config.Config, knowledge *kb.KnowledgeBase, sc simulation.Scenario, opts outputOptions) error {
	root, _ := cmd.Flags().GetString("root")
	jsonOut, _ := cmd.Flags().GetBool("json")

	format, err := resolveFormat(opts, settings, jsonOut)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, settings)
	decisions := logging.NewDecisionLogger(pathutil.LocalDataDir(root), settings.Logging.Level)
	defer decisions.Close()
	rec := metrics.New()

	ctx, cancel := runContext(cmd.Context(), settings.Simulation.Timeout)
	defer cancel()

	runner := simulation.NewRunner(knowledge, simulation.Options{
		MaxNodes:       settings.Simulation.MaxNodes,
		MaxBranchDepth: settings.Simulation.MaxBranchDepth,
		Parallelism:    settings.Simulation.Parallelism,
		Logger:         logger,
		Decisions:      decisions,
		Metrics:        rec,
	})
	tree, err := runner.Run(ctx, sc)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	doc := export.FromTree(tree)

	saved := false
	if opts.save && settings.Store.Enabled {
		runs, err := openRunStore(root, settings)
		if err != nil {
			return err
		}
		defer runs.Close()
		// The run context may be canceled already; a truncated tree is still stored.
		if err := runs.SaveRun(cmd.Context(), doc); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		saved = true
	}

	var archived string
	if opts.output != "" || settings.Output.Dir != "" {
		allowed, err := allowedOutputDirs(root, settings)
		if err != nil {
			return err
		}
		if opts.output != "" {
			if err := writeDocumentFile(opts.output, doc, format, opts.attributes, allowed); err != nil {
				return err
			}
		}
		if settings.Output.Dir != "" {
			archived = filepath.Join(settings.Output.Dir, doc.RunID+formatExtensions[format])
			if err := writeDocumentFile(archived, doc, format, opts.attributes, allowed); err != nil {
				return err
			}
		}
	}

	if err := writeMetrics(cmd, rec); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		result := map[string]interface{}{
			"run_id":      doc.RunID,
			"object_type": doc.ObjectType,
			"scenario":    doc.Scenario,
			"summary":     doc.Summarize(),
			"truncated":   doc.Truncated,
			"saved":       saved,
		}
		if doc.StopReason != "" {
			result["stop_reason"] = doc.StopReason
		}
		if archived != "" {
			result["archived"] = archived
		}
		if opts.output != "" {
			result["output"] = opts.output
			result["format"] = format
		} else {
			result["document"] = doc
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if opts.output != "" {
		printRunHeader(out, doc)
		fmt.Fprintf(out, "Wrote %s tree to %s\n", format, opts.output)
	} else if err := writeDocument(out, doc, format, opts.attributes, true); err != nil {
		return err
	}
	if archived != "" {
		fmt.Fprintln(out, mutedStyle.Render("Archived to "+archived))
	}
	if saved {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Saved run %s (view again with 'qualsim runs show %s')", doc.RunID, doc.RunID)))
	}
	return nil
}

// resolveFormat picks the tree format: --format, then the output file
// extension, then the configured default. --json without a file forces json.
func resolveFormat(opts outputOptions, settings *config.Config, jsonOut bool) (string, error) {
	format := opts.format
	if format == "" && opts.output != "" {
		format = formatFromPath(opts.output)
	}
	if format == "" {
		format = settings.Output.Format
		if jsonOut {
			format = constants.FormatJSON
		}
	}
	format = strings.ToLower(format)
	if !constants.ValidFormats[format] {
		return "", fmt.Errorf("invalid format: %s (must be text, json, yaml, or dot)", format)
	}
	return format, nil
}

var formatExtensions = map[string]string{
	constants.FormatJSON: ".json",
	constants.FormatYAML: ".yaml",
	constants.FormatDOT:  ".dot",
	constants.FormatText: ".txt",
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return constants.FormatDOT
	case ".txt":
		return constants.FormatText
	default:
		return export.FormatFromPath(path)
	}
}

// writeDocument writes doc to w in format. Styled text output gets a
// header and colored status tags.
func writeDocument(w io.Writer, doc *export.Document, format string, attributes, styled bool) error {
	vopts := visualization.Options{Attributes: attributes}
	switch format {
	case constants.FormatJSON, constants.FormatYAML:
		return export.Encode(w, doc, format)
	case constants.FormatDOT:
		_, err := io.WriteString(w, visualization.RenderDOT(doc, vopts))
		return err
	case constants.FormatText:
		var buf bytes.Buffer
		if err := visualization.RenderText(&buf, doc, vopts); err != nil {
			return err
		}
		if !styled {
			_, err := w.Write(buf.Bytes())
			return err
		}
		printRunHeader(w, doc)
		_, err := io.WriteString(w, colorizeOutline(buf.String()))
		return err
	default:
		return fmt.Errorf("invalid format: %s (must be text, json, yaml, or dot)", format)
	}
}

func writeDocumentFile(path string, doc *export.Document, format string, attributes bool, allowedDirs []string) error {
	if format == constants.FormatJSON || format == constants.FormatYAML {
		return export.WriteFile(path, doc, format, allowedDirs)
	}
	var buf bytes.Buffer
	if err := writeDocument(&buf, doc, format, attributes, false); err != nil {
		return err
	}
	return writeOutputFile(path, buf.Bytes(), allowedDirs)
}
