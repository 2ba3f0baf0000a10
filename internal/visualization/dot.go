// Package visualization renders simulation trees as Graphviz DOT or as an
// indented text outline.
package visualization

import (
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/qualsim/internal/export"
)

// statusColors maps node statuses to fill colors.
var statusColors = map[string]string{
	"ok":       "#a3d9a5",
	"rejected": "#f4a3a3",
	"pending":  "#f6e3a1",
}

// sourceStyles maps branch sources to edge styles.
var sourceStyles = map[string]string{
	"precondition":       "solid",
	"postcondition":      "dashed",
	"unknown-resolution": "dotted",
}

// Options controls how much of each node is drawn.
type Options struct {
	// Attributes lists every attribute in a node label instead of only the
	// ones the node changed.
	Attributes bool

	// MaxLabelLen truncates long label lines. Zero means 60.
	MaxLabelLen int
}

func (o Options) maxLen() int {
	if o.MaxLabelLen <= 0 {
		return 60
	}
	return o.MaxLabelLen
}

// RenderDOT produces a Graphviz DOT graph of the document's tree.
func RenderDOT(doc *export.Document, opts Options) string {
	var b strings.Builder

	b.WriteString("digraph qualsim {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	title := doc.ObjectType
	if doc.Scenario != "" {
		title += " / " + doc.Scenario
	}
	if doc.Truncated {
		title += " (truncated)"
	}
	fmt.Fprintf(&b, "  label=%q;\n  labelloc=t;\n\n", title)

	for _, n := range doc.Nodes {
		color, ok := statusColors[n.Status]
		if !ok {
			color = "#dddddd"
		}
		label := strings.Join(nodeLines(n, opts), "\n")
		fmt.Fprintf(&b, "  \"n%d\" [label=%q, fillcolor=%q];\n", n.ID, label, color)
	}

	if len(doc.Nodes) > 1 {
		b.WriteString("\n")
	}

	for _, n := range doc.Nodes {
		if n.ParentID == nil {
			continue
		}
		style := "solid"
		label := n.Action
		if n.Branch != nil {
			if s, ok := sourceStyles[n.Branch.Source]; ok {
				style = s
			}
			if label != "" {
				label += "\n"
			}
			label += branchLabel(n.Branch)
		}
		fmt.Fprintf(&b, "  \"n%d\" -> \"n%d\" [label=%q, style=%s];\n",
			*n.ParentID, n.ID, truncate(label, opts.maxLen()), style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderText writes the tree as an indented outline, one node per line
// followed by its changes.
func RenderText(w io.Writer, doc *export.Document, opts Options) error {
	var root *export.NodeDoc
	for i := range doc.Nodes {
		if doc.Nodes[i].ParentID == nil {
			root = &doc.Nodes[i]
			break
		}
	}
	if root == nil {
		return fmt.Errorf("document %s has no root node", doc.RunID)
	}
	return writeText(w, doc, root, 0, opts)
}

func writeText(w io.Writer, doc *export.Document, n *export.NodeDoc, depth int, opts Options) error {
	indent := strings.Repeat("  ", depth)
	head := fmt.Sprintf("#%d [%s] step %d", n.ID, n.Status, n.Step)
	if n.Action != "" {
		head += " " + n.Action
	}
	if n.Branch != nil {
		head += " (" + branchLabel(n.Branch) + ")"
	}
	if n.Reason != "" {
		head += ": " + n.Reason
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", indent, head); err != nil {
		return err
	}
	for _, line := range detailLines(*n, opts) {
		if _, err := fmt.Fprintf(w, "%s    %s\n", indent, truncate(line, opts.maxLen())); err != nil {
			return err
		}
	}
	for _, id := range doc.Children(n.ID) {
		child, ok := doc.Node(id)
		if !ok {
			continue
		}
		if err := writeText(w, doc, child, depth+1, opts); err != nil {
			return err
		}
	}
	return nil
}

func nodeLines(n export.NodeDoc, opts Options) []string {
	head := fmt.Sprintf("#%d step %d", n.ID, n.Step)
	if n.Status != "ok" {
		head += " " + n.Status
	}
	lines := []string{head}
	for _, l := range detailLines(n, opts) {
		lines = append(lines, truncate(l, opts.maxLen()))
	}
	if n.Reason != "" {
		lines = append(lines, truncate(n.Reason, opts.maxLen()))
	}
	return lines
}

// detailLines lists the attributes worth showing for a node: all of them
// for the root or when requested, otherwise the node's diff.
func detailLines(n export.NodeDoc, opts Options) []string {
	var lines []string
	if opts.Attributes || n.ParentID == nil {
		for _, a := range n.Attributes {
			line := a.Path + " = " + a.After.String()
			if a.Trend != "" && a.Trend != "none" {
				line += " " + a.Trend
			}
			lines = append(lines, line)
		}
		return lines
	}
	for _, c := range n.Diff {
		line := fmt.Sprintf("%s: %s -> %s", c.Attribute, c.Before, c.After)
		if c.BeforeTrend != c.AfterTrend {
			line += fmt.Sprintf(" (%s -> %s)", c.BeforeTrend, c.AfterTrend)
		}
		if c.Kind != "value" {
			line += " [" + c.Kind + "]"
		}
		lines = append(lines, line)
	}
	return lines
}

func branchLabel(br *export.BranchDoc) string {
	return fmt.Sprintf("%s %s %s", br.Path, br.Operator, br.Value)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
