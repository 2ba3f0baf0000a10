package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/kb"
	"github.com/nvandessel/qualsim/internal/store"
	"github.com/spf13/cobra"
)

// validateResult is the --json output of validate.
type validateResult struct {
	Valid       bool                    `json:"valid"`
	Files       []string                `json:"files,omitempty"`
	Spaces      int                     `json:"spaces"`
	ObjectTypes int                     `json:"object_types"`
	Actions     int                     `json:"actions"`
	Scenarios   int                     `json:"scenarios"`
	Error       *loadErrorResult        `json:"error,omitempty"`
	Document    string                  `json:"document,omitempty"`
	Issues      []store.ValidationError `json:"issues,omitempty"`
}

type loadErrorResult struct {
	File    string `json:"file,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the knowledge base and optionally a stored run",
		Long: `Validate the knowledge base for consistency issues.

This command checks for:
  - Malformed YAML and missing required fields
  - Unknown quantity spaces, levels, attributes and object types
  - Constraints and actions referring to undeclared attributes
  - Scenarios whose initial state violates a constraint

With --run or --document it also checks that a finished tree is well formed
(one root, unique ids, parents before children, known statuses).

Examples:
  qualsim validate                         # Validate .qualsim/kb
  qualsim validate --kb ./kb               # Validate a specific directory
  qualsim validate --run <id>              # Also check a stored run
  qualsim validate --document tree.json    # Also check an exported tree`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			kbPath, _ := cmd.Flags().GetString("kb")
			runID, _ := cmd.Flags().GetString("run")
			docPath, _ := cmd.Flags().GetString("document")

			result := validateResult{Valid: true}

			knowledge, err := loadKnowledge(root, kbPath)
			if err != nil {
				result.Valid = false
				result.Error = &loadErrorResult{Message: err.Error()}
				var le *kb.LoadError
				if errors.As(err, &le) {
					result.Error.File = le.File
					result.Error.Kind = string(le.Kind)
					result.Error.Name = le.Name
				}
			} else {
				result.Files = knowledge.Files()
				result.Spaces = len(knowledge.Spaces())
				for _, t := range knowledge.ObjectTypes() {
					result.ObjectTypes++
					result.Actions += len(knowledge.Actions(t.Name))
				}
				result.Scenarios = len(knowledge.ScenarioSpecs())
			}

			var doc *export.Document
			switch {
			case runID != "":
				settings, err := loadSettings(cmd)
				if err != nil {
					return err
				}
				runs, err := openRunStore(root, settings)
				if err != nil {
					return err
				}
				defer runs.Close()
				doc, err = runs.GetRun(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("loading run %s: %w", runID, err)
				}
				result.Document = runID
			case docPath != "":
				doc, err = export.ReadFile(docPath)
				if err != nil {
					return err
				}
				result.Document = docPath
			}
			if doc != nil {
				result.Issues = store.ValidateDocument(doc)
				if len(result.Issues) > 0 {
					result.Valid = false
				}
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
					return err
				}
			} else {
				printValidateResult(cmd, result)
			}

			if !result.Valid {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().String("kb", "", "Knowledge base file or directory (default: .qualsim/kb)")
	cmd.Flags().String("run", "", "Also validate the stored run with this id")
	cmd.Flags().String("document", "", "Also validate an exported tree document (json or yaml)")
	cmd.MarkFlagsMutuallyExclusive("run", "document")

	return cmd
}

func printValidateResult(cmd *cobra.Command, result validateResult) {
	out := cmd.OutOrStdout()
	if result.Error != nil {
		fmt.Fprintln(out, rejectedStyle.Render("Knowledge base failed to load:"))
		fmt.Fprintf(out, "  %s\n", result.Error.Message)
	} else {
		fmt.Fprintln(out, okStyle.Render("Knowledge base is valid."))
		fmt.Fprintf(out, "  %d quantity spaces, %d object types, %d actions, %d scenarios\n",
			result.Spaces, result.ObjectTypes, result.Actions, result.Scenarios)
		for _, f := range result.Files {
			fmt.Fprintf(out, "  %s\n", mutedStyle.Render(f))
		}
	}

	if result.Document == "" {
		return
	}
	if len(result.Issues) == 0 {
		fmt.Fprintf(out, "%s %s is well formed.\n", okStyle.Render("Tree"), result.Document)
		return
	}
	fmt.Fprintf(out, "%s %s has %d issue(s):\n", rejectedStyle.Render("Tree"), result.Document, len(result.Issues))
	for _, issue := range result.Issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
}
