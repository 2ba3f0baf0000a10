package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nvandessel/qualsim/internal/export"
)

var (
	colorTitle    = lipgloss.Color("#5FB3B3")
	colorOK       = lipgloss.Color("#7AC47F")
	colorRejected = lipgloss.Color("#E06C75")
	colorPending  = lipgloss.Color("#E5C07B")
	colorMuted    = lipgloss.Color("#7F848E")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	okStyle       = lipgloss.NewStyle().Foreground(colorOK)
	rejectedStyle = lipgloss.NewStyle().Foreground(colorRejected)
	pendingStyle  = lipgloss.NewStyle().Foreground(colorPending)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle     = lipgloss.NewStyle().Bold(true)
)

// statusStyle picks the style of a node status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "ok":
		return okStyle
	case "rejected":
		return rejectedStyle
	case "pending":
		return pendingStyle
	default:
		return mutedStyle
	}
}

// printRunHeader writes the styled title and node counts of a run.
func printRunHeader(w io.Writer, doc *export.Document) {
	title := doc.ObjectType
	if doc.Scenario != "" {
		title += " / " + doc.Scenario
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, mutedStyle.Render("run "+doc.RunID))

	s := doc.Summarize()
	counts := []string{
		boldStyle.Render(fmt.Sprintf("%d nodes", s.Nodes)),
		okStyle.Render(fmt.Sprintf("%d ok", s.OK)),
		rejectedStyle.Render(fmt.Sprintf("%d rejected", s.Rejected)),
		pendingStyle.Render(fmt.Sprintf("%d pending", s.Pending)),
		fmt.Sprintf("%d possible final worlds", s.Leaves),
	}
	fmt.Fprintln(w, strings.Join(counts, mutedStyle.Render(" · ")))
	if doc.Truncated {
		fmt.Fprintln(w, pendingStyle.Render("truncated: "+doc.StopReason))
	}
	fmt.Fprintln(w)
}

// colorizeOutline styles the status tags of a visualization.RenderText
// outline.
func colorizeOutline(outline string) string {
	for _, status := range []string{"ok", "rejected", "pending"} {
		tag := "[" + status + "]"
		outline = strings.ReplaceAll(outline, tag, statusStyle(status).Render(tag))
	}
	return outline
}
