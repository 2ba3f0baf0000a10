package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/quantity"
	"github.com/spf13/cobra"
)

func newLevelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels <object-type> <path>",
		Short: "Show the levels an unknown attribute may hold",
		Long: `Show the quantity space of an attribute and the levels it may hold once
its value is lost.

An attribute last seen at a level and trending down may be at that level or
below it; trending up, at or above it. Without a last-known level or a
trend every level is possible.

Examples:
  qualsim levels flashlight battery.level
  qualsim levels flashlight battery.level --last-known low --trend down`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			kbPath, _ := cmd.Flags().GetString("kb")
			lastKnown, _ := cmd.Flags().GetString("last-known")
			trendFlag, _ := cmd.Flags().GetString("trend")

			path, err := attribute.ParsePath(args[1])
			if err != nil {
				return err
			}
			trend, err := quantity.ParseDirection(trendFlag)
			if err != nil {
				return err
			}

			knowledge, err := loadKnowledge(root, kbPath)
			if err != nil {
				return err
			}
			typ, err := knowledge.ObjectType(args[0])
			if err != nil {
				return err
			}
			spec, err := typ.Spec(path)
			if err != nil {
				return err
			}
			if lastKnown != "" && !spec.Space.Contains(lastKnown) {
				return fmt.Errorf("level %q is not in space %s", lastKnown, spec.Space.Name)
			}

			allowed := attribute.BoundedLevels(spec.Space, lastKnown, trend)

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"object_type": typ.Key(),
					"path":        path.String(),
					"space":       spec.Space.Name,
					"levels":      spec.Space.Levels,
					"allowed":     allowed,
					"mutable":     spec.Mutable,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render(path.String()), mutedStyle.Render("("+typ.Key()+")"))
			fmt.Fprintf(out, "  space:   %s [%s]\n", spec.Space.Name, strings.Join(spec.Space.Levels, " < "))
			if !spec.Mutable {
				fmt.Fprintf(out, "  %s\n", pendingStyle.Render("immutable"))
			}
			if lastKnown != "" && trend.IsMoving() {
				fmt.Fprintf(out, "  last:    %s trending %s\n", lastKnown, trend)
			}
			fmt.Fprintf(out, "  allowed: %s\n", okStyle.Render(strings.Join(allowed, ", ")))
			return nil
		},
	}

	cmd.Flags().String("kb", "", "Knowledge base file or directory (default: .qualsim/kb)")
	cmd.Flags().String("last-known", "", "Level the attribute had when it became unknown")
	cmd.Flags().String("trend", "none", "Trend at that moment: up, down, none")

	return cmd
}
