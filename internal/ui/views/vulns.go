package views

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/ui/styles"
)

// VulnsView is a selectable vulnerability table with a detail card for the
// selected row
type VulnsView struct {
	vulns  []models.Vuln
	cursor int
}

// NewVulnsView creates an empty vulnerability view
func NewVulnsView() *VulnsView {
	return &VulnsView{}
}

// SetVulns replaces the rows, keeping the selection on the same id when it
// is still present
func (v *VulnsView) SetVulns(vulns []models.Vuln) {
	var selected string
	if cur, ok := v.Selected(); ok {
		selected = cur.ID
	}
	v.vulns = vulns
	v.cursor = 0
	for i, vuln := range vulns {
		if vuln.ID == selected {
			v.cursor = i
			break
		}
	}
}

// Selected returns the vulnerability under the cursor
func (v *VulnsView) Selected() (models.Vuln, bool) {
	if v.cursor < 0 || v.cursor >= len(v.vulns) {
		return models.Vuln{}, false
	}
	return v.vulns[v.cursor], true
}

// Up moves the cursor up
func (v *VulnsView) Up() {
	if v.cursor > 0 {
		v.cursor--
	}
}

// Down moves the cursor down
func (v *VulnsView) Down() {
	if v.cursor < len(v.vulns)-1 {
		v.cursor++
	}
}

// View renders the table and the detail card
func (v *VulnsView) View(width, height int) string {
	if len(v.vulns) == 0 {
		return styles.Muted.Render("No vulnerabilities reported")
	}

	titleWidth := width - 34
	if titleWidth < 10 {
		titleWidth = 10
	}
	header := fmt.Sprintf("  %-10s %-8s %-8s %s", "ID", "Type", "Status", "Title")
	lines := []string{styles.TableHeader.Render(header)}

	// Leave room for the detail card
	rows := height - 14
	if rows < 3 {
		rows = 3
	}
	start := 0
	if v.cursor >= rows {
		start = v.cursor - rows + 1
	}
	end := start + rows
	if end > len(v.vulns) {
		end = len(v.vulns)
	}

	for i := start; i < end; i++ {
		vuln := v.vulns[i]
		row := fmt.Sprintf("  %s %s %s %s",
			pad(truncate(vuln.ID, 10), 10),
			pad(truncate(vuln.Type, 8), 8),
			pad(styles.VulnStatus(vuln.Status), 8),
			truncate(vuln.Title, titleWidth))
		switch {
		case i == v.cursor:
			lines = append(lines, styles.TableRowSelected.Render(row))
		case i%2 == 1:
			lines = append(lines, styles.TableRowAlt.Render(row))
		default:
			lines = append(lines, row)
		}
	}
	if len(v.vulns) > end {
		lines = append(lines, styles.Muted.Render(fmt.Sprintf("  ... and %d more", len(v.vulns)-end)))
	}

	if sel, ok := v.Selected(); ok {
		lines = append(lines, "")
		lines = append(lines, styles.CardTitle.Render("  "+truncate(sel.Title, width-4)))
		lines = append(lines, field("Confidence", orDash(sel.Confidence)))
		lines = append(lines, field("Location", truncatePath(sel.File, width-16)+" "+sel.FunctionOrMethod))
		lines = append(lines, field("Endpoint", orDash(sel.RouteOrEndpoint)))
		lines = append(lines, field("Params", orDash(sel.Params)))
		lines = append(lines, field("Payload", truncate(orDash(sel.PayloadIdea), width-16)))
		lines = append(lines, field("Impact", truncate(orDash(sel.ExpectedImpact), width-16)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
