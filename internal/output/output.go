// Package output renders pipeline results for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/itsmostafa/pagetree/internal/pageindex"
	"github.com/itsmostafa/pagetree/internal/pipeline"
	"github.com/itsmostafa/pagetree/internal/session"
)

var (
	// titleStyle for bold red headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// successStyle for success indicators
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// warnStyle for low confidence
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	// errorStyle for error indicators
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for summary box with rounded border
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)

	// headerBoxStyle for the header
	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)

	// errorBoxStyle for failure reports
	errorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)
)

// FormatHeader renders the run header
func FormatHeader(w io.Writer, document, source, model string) {
	content := fmt.Sprintf("%s %s\n%s %s  %s %s",
		dimStyle.Render("Document:"), titleStyle.Render(document),
		dimStyle.Render("Parser:"), source,
		dimStyle.Render("Model:"), model,
	)
	fmt.Fprintln(w, headerBoxStyle.Render(content))
}

// FormatResult renders the summary box of a completed run
func FormatResult(w io.Writer, res *pipeline.Result, outPath string) {
	strategy := string(res.Strategy)
	if res.Fallback {
		strategy += dimStyle.Render(" (fallback)")
	}

	nodes := pageindex.FlattenTree(res.Document.Structure)
	line1 := fmt.Sprintf("%s %s  %s %d  %s %d",
		dimStyle.Render("Strategy:"), strategy,
		dimStyle.Render("Sections:"), len(res.Document.Structure),
		dimStyle.Render("Nodes:"), len(nodes),
	)

	v := res.Verification
	line2 := fmt.Sprintf("%s %d/%d  %s %s  %s %d",
		dimStyle.Render("Verified:"), v.Correct, v.Checked,
		dimStyle.Render("Accuracy:"), formatPercent(v.PostAccuracy),
		dimStyle.Render("Repaired:"), v.Repaired,
	)

	line3 := fmt.Sprintf("%s %s", dimStyle.Render("Confidence:"), formatConfidence(res.Confidence, res.BelowThreshold))

	lines := []string{titleStyle.Render("Structure Extracted"), line1, line2, line3}
	if outPath != "" {
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Output:"), outPath))
	}
	lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Session:"), res.SessionID))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

// FormatTree renders the section tree with page ranges
func FormatTree(w io.Writer, nodes []*pageindex.TreeNode) {
	formatTree(w, nodes, 0)
}

func formatTree(w io.Writer, nodes []*pageindex.TreeNode, depth int) {
	for _, n := range nodes {
		pages := dimStyle.Render(fmt.Sprintf("[%d-%d]", n.StartIndex, n.EndIndex))
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", depth), n.Title, pages)
		formatTree(w, n.Children, depth+1)
	}
}

// FormatFailure renders a failed run with its recovery suggestions
func FormatFailure(w io.Writer, f *pipeline.Failure) {
	lines := []string{
		errorStyle.Render("Processing Failed"),
		fmt.Sprintf("%s %s", dimStyle.Render("Stage:"), f.Stage),
		fmt.Sprintf("%s %v", dimStyle.Render("Error:"), f.Err),
	}
	if len(f.Suggestions) > 0 {
		lines = append(lines, "", titleStyle.Render("Suggestions"))
		for _, s := range f.Suggestions {
			lines = append(lines, "  • "+s)
		}
	}
	if f.CheckpointPath != "" {
		lines = append(lines, "", fmt.Sprintf("%s %s", dimStyle.Render("Checkpoint:"), f.CheckpointPath))
	}
	fmt.Fprintln(w, errorBoxStyle.Render(strings.Join(lines, "\n")))
}

// FormatStatus renders one session status report
func FormatStatus(w io.Writer, r pipeline.StatusReport) {
	switch r.Status {
	case pipeline.StatusNotFound:
		fmt.Fprintln(w, errorStyle.Render("Session not found: "+r.SessionID))
		return
	case pipeline.StatusError:
		fmt.Fprintln(w, errorStyle.Render("Checkpoint unreadable: "+r.SessionID))
		fmt.Fprintln(w, dimStyle.Render(r.Error))
		return
	}

	lines := []string{
		titleStyle.Render("Session " + r.SessionID),
		fmt.Sprintf("%s %s", dimStyle.Render("Document:"), r.Document),
		fmt.Sprintf("%s %s  %s %s", dimStyle.Render("Stage:"), formatStage(r.Stage), dimStyle.Render("Strategy:"), orDash(r.Strategy)),
		fmt.Sprintf("%s %s", dimStyle.Render("Confidence:"), formatConfidence(r.Confidence, r.BelowThreshold)),
	}
	if r.Failed {
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Error:"), errorStyle.Render(r.Error)))
	}
	if !r.UpdatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Updated:"), r.UpdatedAt.Format(time.RFC3339)))
	}
	if len(r.LastEvents) > 0 {
		lines = append(lines, "", titleStyle.Render("Recent Events"))
		for _, e := range r.LastEvents {
			lines = append(lines, fmt.Sprintf("  %s %s %s", dimStyle.Render(e.Timestamp.Format(time.TimeOnly)), e.Stage, formatEventStatus(e.Status)))
		}
	}
	lines = append(lines, "", fmt.Sprintf("%s %s", dimStyle.Render("Checkpoint:"), r.CheckpointPath))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

// FormatSessions renders the session list, newest first
func FormatSessions(w io.Writer, sessions []pipeline.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sessions found"))
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-12s %s  %s  %s\n",
			titleStyle.Render(s.ID),
			formatStage(s.Stage),
			formatPercent(s.Confidence),
			dimStyle.Render(s.UpdatedAt.Format(time.DateTime)),
			s.Document,
		)
	}
}

func formatStage(stage session.Stage) string {
	switch stage {
	case session.StageFailed:
		return errorStyle.Render(string(stage))
	case session.StageEnhanced:
		return successStyle.Render(string(stage))
	}
	return string(stage)
}

func formatEventStatus(status session.EventStatus) string {
	switch status {
	case session.StatusFailed:
		return errorStyle.Render(string(status))
	case session.StatusFallback:
		return warnStyle.Render(string(status))
	case session.StatusCompleted:
		return successStyle.Render(string(status))
	}
	return dimStyle.Render(string(status))
}

func formatConfidence(c float64, below bool) string {
	if below {
		return warnStyle.Render(formatPercent(c) + " (below threshold)")
	}
	return successStyle.Render(formatPercent(c))
}

// formatPercent renders a ratio as a whole percentage
func formatPercent(r float64) string {
	return fmt.Sprintf("%.0f%%", r*100)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
