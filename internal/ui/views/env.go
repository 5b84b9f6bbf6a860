package views

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/ui/styles"
)

// RenderEnv renders the environment the audit runs against
func RenderEnv(env *models.EnvInfo, width int) string {
	if env == nil {
		return styles.Muted.Render("No environment information yet")
	}

	var lines []string
	lines = append(lines, styles.HelpSection.Render("Environment"))
	lines = append(lines, field("Container", orDash(env.ContainerID)))

	if li := env.LoginInfo; li != nil {
		lines = append(lines, "")
		lines = append(lines, styles.HelpSection.Render("Login"))
		lines = append(lines, field("URL", orDash(li.LoginURL)))
		lines = append(lines, field("Username", orDash(li.Username)))
		lines = append(lines, field("Password", orDash(li.Password)))
		if li.Credentials != "" {
			lines = append(lines, field("Credentials", truncate(li.Credentials, width-16)))
		}
	}

	if db := env.DBInfo; db != nil {
		lines = append(lines, "")
		lines = append(lines, styles.HelpSection.Render("Database"))
		lines = append(lines, field("Host", orDash(db.Host)))
		lines = append(lines, field("Database", orDash(db.Base)))
		lines = append(lines, field("Username", orDash(db.Username)))
		lines = append(lines, field("Password", orDash(db.Password)))
	}

	if len(env.RouteInfo) > 0 {
		lines = append(lines, "")
		lines = append(lines, styles.HelpSection.Render("Routes"))
		for _, r := range env.RouteInfo {
			lines = append(lines, "  "+styles.Primary.Render(truncate(r, width-4)))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
