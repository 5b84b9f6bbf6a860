package views

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/ui/styles"
)

// ReportsView lists reports and previews the one the user opened
type ReportsView struct {
	ids     []string
	names   models.ReportList
	cursor  int
	preview viewport.Model
	openID  string
	loading bool
}

// NewReportsView creates an empty report view
func NewReportsView(width, height int) *ReportsView {
	return &ReportsView{preview: viewport.New(width, height)}
}

// SetSize updates the preview dimensions
func (v *ReportsView) SetSize(width, height int) {
	v.preview.Width = width
	v.preview.Height = height
}

// SetReports replaces the report list, sorted by name
func (v *ReportsView) SetReports(reports models.ReportList) {
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if reports[ids[i]] != reports[ids[j]] {
			return reports[ids[i]] < reports[ids[j]]
		}
		return ids[i] < ids[j]
	})
	v.ids = ids
	v.names = reports
	if v.cursor >= len(ids) {
		v.cursor = 0
	}
}

// Selected returns the report id under the cursor
func (v *ReportsView) Selected() (string, bool) {
	if v.cursor < 0 || v.cursor >= len(v.ids) {
		return "", false
	}
	return v.ids[v.cursor], true
}

// Up moves the cursor up
func (v *ReportsView) Up() {
	if v.cursor > 0 {
		v.cursor--
	}
}

// Down moves the cursor down
func (v *ReportsView) Down() {
	if v.cursor < len(v.ids)-1 {
		v.cursor++
	}
}

// Loading marks id as being fetched
func (v *ReportsView) Loading(id string) {
	v.openID = id
	v.loading = true
	v.preview.SetContent("")
}

// Open shows content as the preview of id
func (v *ReportsView) Open(id, content string) {
	v.openID = id
	v.loading = false
	v.preview.SetContent(content)
	v.preview.GotoTop()
}

// Close hides the preview
func (v *ReportsView) Close() {
	v.openID = ""
	v.loading = false
}

// IsOpen reports whether a preview is showing
func (v *ReportsView) IsOpen() bool {
	return v.openID != ""
}

// Update forwards scrolling keys to the preview
func (v *ReportsView) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.preview, cmd = v.preview.Update(msg)
	return cmd
}

// View renders the list or the open preview
func (v *ReportsView) View(width int) string {
	if v.IsOpen() {
		title := styles.CardTitle.Render(v.names[v.openID])
		if v.loading {
			return lipgloss.JoinVertical(lipgloss.Left, title, styles.Muted.Render("Loading..."))
		}
		return lipgloss.JoinVertical(lipgloss.Left, title, v.preview.View())
	}

	if len(v.ids) == 0 {
		return styles.Muted.Render("No reports yet")
	}
	lines := []string{styles.TableHeader.Render(fmt.Sprintf("  %-16s %s", "ID", "Name"))}
	for i, id := range v.ids {
		row := fmt.Sprintf("  %s %s", pad(truncate(id, 16), 16), truncate(v.names[id], width-22))
		if i == v.cursor {
			row = styles.TableRowSelected.Render(row)
		}
		lines = append(lines, row)
	}
	lines = append(lines, "", styles.Muted.Render("  enter: preview  esc: close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
