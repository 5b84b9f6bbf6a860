package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/models"
)

// Colors
var (
	ColorPrimary    = lipgloss.Color("#5DADE2")
	ColorSecondary  = lipgloss.Color("#82E0AA")
	ColorWarning    = lipgloss.Color("#F4D03F")
	ColorError      = lipgloss.Color("#E74C3C")
	ColorMuted      = lipgloss.Color("#7F8C8D")
	ColorForeground = lipgloss.Color("#ECF0F1")
	ColorOK         = lipgloss.Color("#2ECC71")
	ColorDegraded   = lipgloss.Color("#F39C12")
	ColorDown       = lipgloss.Color("#E74C3C")
	ColorDarkBg     = lipgloss.Color("#2C3E50")
)

// Text Styles
var (
	// Muted text style
	Muted = lipgloss.NewStyle().Foreground(ColorMuted)

	// Secondary text style
	Secondary = lipgloss.NewStyle().Foreground(ColorSecondary)

	// Primary text style
	Primary = lipgloss.NewStyle().Foreground(ColorPrimary)
)

// Pane styles
var (
	PaneBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted)

	FocusedPaneBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary)
)

// Title styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 1)
)

// Tab styles
var (
	ActiveTab = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorDarkBg).
			Padding(0, 2)

	InactiveTab = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 2)
)

// Status badge styles
var (
	StatusOK = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorOK)

	StatusDegraded = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDegraded)

	StatusDown = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDown)
)

// Bottom bar styles
var (
	BottomBar = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Background(ColorDarkBg).
			Padding(0, 1)

	HintKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)

	HintDesc = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// Log line styles
var (
	LogInfo  = lipgloss.NewStyle().Foreground(ColorForeground)
	LogWarn  = lipgloss.NewStyle().Foreground(ColorWarning)
	LogError = lipgloss.NewStyle().Foreground(ColorError)
	LogDone  = lipgloss.NewStyle().Foreground(ColorSecondary)
)

// Input styles
var (
	InputPrompt = lipgloss.NewStyle().Foreground(ColorPrimary)
)

// Help overlay styles
var (
	HelpOverlay = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorPrimary).
			Padding(1, 2)

	HelpTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	HelpSection = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary).
			MarginTop(1)
)

// Project list styles
var (
	SelectedItem = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorDarkBg)

	UnselectedItem = lipgloss.NewStyle().
			Foreground(ColorForeground)
)

// Table/List styles
var (
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(ColorMuted)

	TableRowAlt = lipgloss.NewStyle().
			Foreground(ColorForeground).
			Background(lipgloss.Color("#1A252F"))

	TableRowSelected = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorPrimary).
				Background(ColorDarkBg)
)

// Card/Panel styles
var (
	CardTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)
)

// Badge styles
var (
	BadgeOK = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(ColorOK).
		Padding(0, 1)

	BadgeWarning = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(ColorDegraded).
			Padding(0, 1)

	BadgeError = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorDown).
			Padding(0, 1)

	BadgeMuted = lipgloss.NewStyle().
			Foreground(ColorForeground).
			Background(ColorMuted).
			Padding(0, 1)
)

// Label styles
var (
	LabelValueHighlight = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorPrimary)
)

// ProjectStatusBadge renders a project status as a coloured badge
func ProjectStatusBadge(status string) string {
	switch {
	case models.IsRunning(status):
		return BadgeWarning.Render(status)
	case status == models.StatusCompleted || status == models.StatusFinished:
		return BadgeOK.Render(status)
	case status == models.StatusError:
		return BadgeError.Render(status)
	case status == "":
		return BadgeMuted.Render("-")
	default:
		return BadgeMuted.Render(status)
	}
}

// VulnStatus renders a vulnerability status in its colour
func VulnStatus(status string) string {
	switch status {
	case models.VulnConfirmed:
		return StatusDown.Render(status)
	case models.VulnFalsePositive:
		return Muted.Render(status)
	case models.VulnFixed:
		return StatusOK.Render(status)
	default:
		return StatusDegraded.Render(status)
	}
}

// Connectivity renders the live channel indicator
func Connectivity(connected bool) string {
	if connected {
		return StatusOK.Render("[LIVE]")
	}
	return StatusDown.Render("[OFFLINE]")
}
