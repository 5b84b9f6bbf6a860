package views

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/snapshot"
	"github.com/auditwatch/auditwatch/internal/ui/styles"
)

// RenderOverview renders the overview tab for one project
func RenderOverview(snap *snapshot.Snapshot, conn models.ConnectionState, width int) string {
	if snap == nil || snap.Project() == "" {
		return styles.Muted.Render("Select a project")
	}

	var lines []string
	lines = append(lines, styles.HelpSection.Render("Project"))
	lines = append(lines, field("Name", styles.LabelValueHighlight.Render(snap.Project())))
	lines = append(lines, field("Status", styles.ProjectStatusBadge(snap.Status())))
	lines = append(lines, field("Started", orDash(snap.StartTime())))
	lines = append(lines, field("Finished", orDash(snap.EndTime())))
	lines = append(lines, "")

	lines = append(lines, styles.HelpSection.Render("Findings"))
	vulns := snap.Vulns()
	lines = append(lines, field("Total", fmt.Sprintf("%d", len(vulns))))
	counts := snap.VulnCounts()
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		lines = append(lines, field(s, fmt.Sprintf("%d", counts[s])))
	}
	lines = append(lines, field("Containers", fmt.Sprintf("%d", len(snap.Containers()))))
	lines = append(lines, field("Reports", fmt.Sprintf("%d", len(snap.Reports()))))
	lines = append(lines, "")

	lines = append(lines, styles.HelpSection.Render("Live Channel"))
	lines = append(lines, field("State", styles.Connectivity(conn.Connected)))
	if !conn.LastChange.IsZero() {
		lines = append(lines, field("Since", conn.LastChange.Format("15:04:05")))
	}
	lines = append(lines, field("Frames", fmt.Sprintf("%d", conn.FramesTotal)))
	if conn.Reconnects > 0 {
		lines = append(lines, field("Reconnects", fmt.Sprintf("%d", conn.Reconnects)))
	}
	if conn.LastError != "" {
		lines = append(lines, field("Error", styles.LogError.Render(truncate(conn.LastError, width-16))))
	}
	if !snap.Running() {
		lines = append(lines, "  "+styles.Muted.Render("Live updates resume while an audit is running"))
	}

	logs := snap.Logs()
	if n := len(logs); n > 0 {
		lines = append(lines, "")
		lines = append(lines, styles.HelpSection.Render("Latest Event"))
		lines = append(lines, "  "+truncate(logs[n-1], width-4))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
