// Package report prints rankings for people to read.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lawnchairsociety/dropefficiency/internal/database"
	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
)

// NodeWidth is the column width of node ids; longer ids are cut.
const NodeWidth = 50

type styles struct {
	heading lipgloss.Style
	missing lipgloss.Style
	dim     lipgloss.Style
}

// newStyles binds the styles to w, so color is only emitted when w is a
// terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true),
		missing: r.NewStyle().
			Foreground(lipgloss.Color("#AF5F5F")).
			Italic(true),
		dim: r.NewStyle().
			Foreground(lipgloss.Color("#888888")),
	}
}

// FormatEntry renders one ranking line: node, efficiency and the item's APD
// at that node.
func FormatEntry(e efficiency.LocationEfficiency) string {
	return fmt.Sprintf("  %-*.*s -- %4.2f %5.1f", NodeWidth, NodeWidth, e.Node, e.Efficiency, e.APD)
}

// Print writes, for each item, a "# item" heading followed by its ranked
// locations. Items without a ranking get a notice instead.
func Print(w io.Writer, res *efficiency.Result, items []string) error {
	s := newStyles(w)

	var b strings.Builder
	for _, item := range items {
		b.WriteString(s.heading.Render("# "+item) + "\n")

		ranked, err := res.Ranked(item)
		if err != nil {
			b.WriteString("  " + s.missing.Render(noLocationText(err)) + "\n")
			continue
		}
		for _, e := range ranked {
			b.WriteString(FormatEntry(e) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func noLocationText(err error) string {
	var nq *efficiency.NoQualifyingLocationError
	if errors.As(err, &nq) && nq.Candidates == 0 {
		return "not dropped by any included node"
	}
	return "no qualifying location: " + err.Error()
}

// PrintRuns writes one line per archived run.
func PrintRuns(w io.Writer, runs []database.Run) error {
	s := newStyles(w)

	var b strings.Builder
	b.WriteString(s.heading.Render(fmt.Sprintf("%-6s %-20s %-10s %9s %6s %6s %8s", "RUN", "CREATED", "DIGEST", "THRESHOLD", "ITEMS", "NODES", "UNRANKED")) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-6d %-20s %-10.10s %9.2f %6d %6d %8d\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Digest, r.Threshold, r.Items, r.Nodes, r.Unranked)
	}
	if len(runs) == 0 {
		b.WriteString(s.dim.Render("no runs archived") + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// PrintHistory writes the best location of item in every archived run.
func PrintHistory(w io.Writer, item string, history []database.ItemHistoryEntry) error {
	s := newStyles(w)

	var b strings.Builder
	b.WriteString(s.heading.Render("# "+item) + "\n")
	if len(history) == 0 {
		b.WriteString("  " + s.missing.Render("no archived run includes this item") + "\n")
	}
	for _, h := range history {
		prefix := s.dim.Render(fmt.Sprintf("  run %-4d %s", h.Run.ID, h.Run.CreatedAt.Format("2006-01-02")))
		if !h.Ranked {
			fmt.Fprintf(&b, "%s %s\n", prefix, s.missing.Render(fmt.Sprintf("no node at or above %g", h.Run.Threshold)))
			continue
		}
		fmt.Fprintf(&b, "%s%s\n", prefix, FormatEntry(h.Best))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
