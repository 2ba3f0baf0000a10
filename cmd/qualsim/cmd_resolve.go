package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/resolver"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <scenario>",
		Short: "Pick concrete levels for a scenario's uncertain attributes",
		Long: `Resolve the uncertain attributes of a scenario's initial state.

Each attribute holding a candidate set or an unknown value is narrowed to
one level. Levels are asked for interactively unless every one is given
with --set. With --simulate the resolved scenario is run afterwards.

Examples:
  qualsim resolve uncertain_battery                              # Ask on the terminal
  qualsim resolve uncertain_battery --set battery.level=med      # Non-interactive
  qualsim resolve uncertain_battery --set battery.level=low --simulate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			kbPath, _ := cmd.Flags().GetString("kb")
			sets, _ := cmd.Flags().GetStringArray("set")
			accessible, _ := cmd.Flags().GetBool("accessible")
			runAfter, _ := cmd.Flags().GetBool("simulate")
			noSave, _ := cmd.Flags().GetBool("no-save")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			knowledge, err := loadKnowledge(root, kbPath)
			if err != nil {
				return err
			}
			sc, err := knowledge.Scenario(args[0])
			if err != nil {
				return err
			}

			var prompter resolver.Prompter = resolver.HuhPrompter{Accessible: accessible}
			if len(sets) > 0 {
				static, err := parseAssignments(sets)
				if err != nil {
					return err
				}
				prompter = static
			}

			resolved, err := resolveUncertain(sc.Instance, prompter)
			if err != nil {
				return err
			}

			if runAfter {
				opts := readOutputFlags(cmd)
				opts.save = !noSave
				return runScenario(cmd, settings, knowledge, sc, opts)
			}

			if jsonOut {
				values := make(map[string]string, len(resolved))
				for _, r := range resolved {
					values[r.path.String()] = r.level
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"scenario": sc.Name,
					"resolved": values,
				})
			}

			out := cmd.OutOrStdout()
			if len(resolved) == 0 {
				fmt.Fprintf(out, "Scenario %s has no uncertain attributes.\n", sc.Name)
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render("Resolved "+sc.Name))
			for _, r := range resolved {
				fmt.Fprintf(out, "  %s: %s -> %s\n", r.path, mutedStyle.Render(r.before.String()), okStyle.Render(r.level))
			}
			return nil
		},
	}

	cmd.Flags().String("kb", "", "Knowledge base file or directory (default: .qualsim/kb)")
	cmd.Flags().StringArray("set", nil, "Level for an attribute as path=level (repeatable)")
	cmd.Flags().Bool("accessible", false, "Prompt without cursor movement (screen readers)")
	cmd.Flags().Bool("simulate", false, "Run the scenario after resolving")
	cmd.Flags().Bool("no-save", false, "Do not store the finished run (with --simulate)")
	addOutputFlags(cmd)

	return cmd
}

type resolution struct {
	path   attribute.Path
	before attribute.Value
	level  string
}

// resolveUncertain narrows every non-concrete attribute of inst through p,
// in the type's path order.
func resolveUncertain(inst *object.Instance, p resolver.Prompter) ([]resolution, error) {
	var out []resolution
	for _, path := range inst.Paths() {
		cell, err := inst.Cell(path)
		if err != nil {
			return nil, err
		}
		if cell.Value().IsConcrete() {
			continue
		}
		before := cell.Value()
		level, err := resolver.Resolve(inst, path, p)
		if err != nil {
			return nil, err
		}
		out = append(out, resolution{path: path, before: before, level: level})
	}
	if static, ok := p.(resolver.StaticPrompter); ok {
		for path := range static {
			if !resolvedPath(out, path) {
				return nil, fmt.Errorf("%s is not uncertain in this scenario", path)
			}
		}
	}
	return out, nil
}

func resolvedPath(rs []resolution, path attribute.Path) bool {
	for _, r := range rs {
		if r.path == path {
			return true
		}
	}
	return false
}

// parseAssignments parses path=level pairs.
func parseAssignments(pairs []string) (resolver.StaticPrompter, error) {
	out := make(resolver.StaticPrompter, len(pairs))
	for _, pair := range pairs {
		key, level, ok := strings.Cut(pair, "=")
		if !ok || key == "" || level == "" {
			return nil, fmt.Errorf("invalid --set %q (want path=level)", pair)
		}
		path, err := attribute.ParsePath(strings.TrimSpace(key))
		if err != nil {
			return nil, err
		}
		out[path] = strings.TrimSpace(level)
	}
	return out, nil
}
