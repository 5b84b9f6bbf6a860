package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/ui/styles"
)

// RenderContainers renders the verification containers in arrival order
func RenderContainers(containers []models.Container, width int) string {
	if len(containers) == 0 {
		return styles.Muted.Render("No containers running")
	}

	header := fmt.Sprintf("  %-20s %-16s %-24s %s", "Container", "IP", "Image", "Ports")
	lines := []string{styles.TableHeader.Render(header)}
	for i, c := range containers {
		row := fmt.Sprintf("  %s %s %s %s",
			pad(truncate(c.ID, 20), 20),
			pad(orDash(c.IP), 16),
			pad(truncate(c.Image, 24), 24),
			truncate(strings.Join(c.WebPort, ","), width-66))
		if i%2 == 1 {
			row = styles.TableRowAlt.Render(row)
		}
		lines = append(lines, row)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
