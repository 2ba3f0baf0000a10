package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/logging"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"github.com/nvandessel/qualsim/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect, query and delete stored runs",
	}
	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsNodesCmd(),
		newRunsChangesCmd(),
		newRunsDecisionsCmd(),
	)
	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			objectType, _ := cmd.Flags().GetString("object-type")
			scenario, _ := cmd.Flags().GetString("scenario")
			limit, _ := cmd.Flags().GetInt("limit")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runs, err := openRunStore(root, settings)
			if err != nil {
				return err
			}
			defer runs.Close()

			summaries, err := runs.ListRuns(cmd.Context(), store.ListFilter{
				ObjectType: objectType,
				Scenario:   scenario,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				if summaries == nil {
					summaries = []store.RunSummary{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  summaries,
					"count": len(summaries),
				})
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No stored runs.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOBJECT\tSCENARIO\tCREATED\tNODES\tOK\tREJECTED\tPENDING\tWORLDS\tSCOPE")
			for _, r := range summaries {
				id := r.ID
				if r.Truncated {
					id += "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					id, r.ObjectType, r.Scenario, r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Nodes, r.OK, r.Rejected, r.Pending, r.Leaves, r.Scope)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d run(s); * marks truncated runs", len(summaries))))
			return nil
		},
	}

	cmd.Flags().String("object-type", "", "Only runs of this object type (e.g. flashlight@1)")
	cmd.Flags().String("scenario", "", "Only runs of this scenario")
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runs, err := openRunStore(root, settings)
			if err != nil {
				return err
			}
			defer runs.Close()

			doc, err := runs.GetRun(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("run not found: %s", args[0])
				}
				return fmt.Errorf("failed to load run: %w", err)
			}

			opts := readOutputFlags(cmd)
			format, err := resolveFormat(opts, settings, jsonOut)
			if err != nil {
				return err
			}
			if opts.output != "" {
				allowed, err := allowedOutputDirs(root, settings)
				if err != nil {
					return err
				}
				if err := writeDocumentFile(opts.output, doc, format, opts.attributes, allowed); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s tree of run %s to %s\n", format, doc.RunID, opts.output)
				return nil
			}
			return writeDocument(cmd.OutOrStdout(), doc, format, opts.attributes, true)
		},
	}

	addOutputFlags(cmd)

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runs, err := openRunStore(root, settings)
			if err != nil {
				return err
			}
			defer runs.Close()

			if err := runs.DeleteRun(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrRunNotFound) {
					return fmt.Errorf("run not found: %s", args[0])
				}
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"run_id": args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}

func newRunsNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes <run-id>",
		Short: "List the nodes of a stored run with a given status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			status, _ := cmd.Flags().GetString("status")

			switch status {
			case "ok", "rejected", "pending":
			default:
				return fmt.Errorf("invalid status: %s (must be ok, rejected, or pending)", status)
			}
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runs, err := openRunStore(root, settings)
			if err != nil {
				return err
			}
			defer runs.Close()

			nodes, err := runs.NodesByStatus(cmd.Context(), args[0], status)
			if err != nil {
				return fmt.Errorf("failed to query nodes: %w", err)
			}

			if jsonOut {
				if nodes == nil {
					nodes = []store.NodeRef{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"run_id": args[0],
					"status": status,
					"nodes":  nodes,
					"count":  len(nodes),
				})
			}

			out := cmd.OutOrStdout()
			if len(nodes) == 0 {
				fmt.Fprintf(out, "No %s nodes in run %s.\n", status, args[0])
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tSTEP\tACTION\tREASON")
			for _, n := range nodes {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", n.NodeID, n.Step, n.Action, n.Reason)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("status", "rejected", "Node status: ok, rejected, or pending")

	return cmd
}

func newRunsChangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changes <run-id> <path>",
		Short: "Trace every recorded change to one attribute across a stored run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			path, err := attribute.ParsePath(args[1])
			if err != nil {
				return err
			}
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runs, err := openRunStore(root, settings)
			if err != nil {
				return err
			}
			defer runs.Close()

			changes, err := runs.AttributeChanges(cmd.Context(), args[0], path.String())
			if err != nil {
				return fmt.Errorf("failed to query changes: %w", err)
			}

			if jsonOut {
				if changes == nil {
					changes = []store.ChangeRef{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"run_id":  args[0],
					"path":    path.String(),
					"changes": changes,
					"count":   len(changes),
				})
			}

			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintf(out, "No recorded changes to %s in run %s.\n", path, args[0])
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tKIND\tBEFORE\tAFTER\tNOTE")
			for _, c := range changes {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.NodeID, c.Kind, c.Before, c.After, c.Note)
			}
			return tw.Flush()
		},
	}
}

func newRunsDecisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decisions [run-id]",
		Short: "Print the branch and rejection decisions traced for a run",
		Long: `Print the decision trace recorded in .qualsim/decisions.jsonl.

The trace is only written when logging.level is debug or trace. Without a
run id every traced event is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			events, err := logging.ReadDecisions(pathutil.LocalDataDir(root), runID)
			if err != nil {
				return err
			}

			if jsonOut {
				if events == nil {
					events = []map[string]any{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"events": events,
					"count":  len(events),
				})
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No traced decisions. Set logging.level to debug to record them.")
				return nil
			}
			for _, ev := range events {
				fmt.Fprintln(out, formatDecision(ev))
			}
			return nil
		},
	}
}

// formatDecision renders one trace event as a single line.
func formatDecision(ev map[string]any) string {
	head := fmt.Sprintf("step %v node %v %v", ev["step"], ev["node"], ev["action"])
	switch ev["event"] {
	case "rejected":
		return rejectedStyle.Render("rejected") + " " + head + ": " + fmt.Sprint(ev["reason"])
	case "branch":
		return pendingStyle.Render("branch") + " " + head +
			fmt.Sprintf(": %v on %v (%v) satisfying=%v failing=%v",
				ev["leaf"], ev["path"], ev["source"], ev["satisfying"], ev["failing"])
	}
	return fmt.Sprintf("%v %s", ev["event"], head)
}
