package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/auditwatch/auditwatch/internal/ui/styles"
)

// EventsView displays the project event log
type EventsView struct {
	viewport viewport.Model
	lines    []string
	tail     int
	filter   string
	follow   bool
	width    int
	height   int
}

// NewEventsView creates a new events view keeping at most tail lines
func NewEventsView(width, height, tail int) *EventsView {
	vp := viewport.New(width, height)
	return &EventsView{
		viewport: vp,
		tail:     tail,
		follow:   true,
		width:    width,
		height:   height,
	}
}

// SetSize updates the view dimensions
func (v *EventsView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.viewport.Width = width
	v.viewport.Height = height
	v.updateContent()
}

// SetLines replaces the event log. The log only grows, so this is called
// with the full snapshot log each time it changes.
func (v *EventsView) SetLines(lines []string) {
	if v.tail > 0 && len(lines) > v.tail {
		lines = lines[len(lines)-v.tail:]
	}
	v.lines = lines
	v.updateContent()
}

// SetFilter sets the search filter
func (v *EventsView) SetFilter(filter string) {
	v.filter = filter
	v.updateContent()
}

// Filter returns the active filter
func (v *EventsView) Filter() string {
	return v.filter
}

// ClearFilter clears the search filter
func (v *EventsView) ClearFilter() {
	v.filter = ""
	v.updateContent()
}

// ToggleFollow toggles follow mode
func (v *EventsView) ToggleFollow() {
	v.follow = !v.follow
	if v.follow {
		v.viewport.GotoBottom()
	}
}

// SetFollow sets follow mode
func (v *EventsView) SetFollow(follow bool) {
	v.follow = follow
}

// IsFollowing returns whether follow mode is enabled
func (v *EventsView) IsFollowing() bool {
	return v.follow
}

// Update forwards scrolling keys to the viewport
func (v *EventsView) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return cmd
}

// Visible returns the lines that pass the filter
func (v *EventsView) Visible() []string {
	if v.filter == "" {
		return v.lines
	}
	needle := strings.ToLower(v.filter)
	var out []string
	for _, line := range v.lines {
		if strings.Contains(strings.ToLower(line), needle) {
			out = append(out, line)
		}
	}
	return out
}

func (v *EventsView) updateContent() {
	visible := v.Visible()
	rendered := make([]string, 0, len(visible))
	for _, line := range visible {
		rendered = append(rendered, lineStyle(line).Render(line))
	}
	v.viewport.SetContent(strings.Join(rendered, "\n"))
	if v.follow {
		v.viewport.GotoBottom()
	}
}

func lineStyle(line string) lipgloss.Style {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(line, "错误") || strings.Contains(line, "失败"):
		return styles.LogError
	case strings.Contains(lower, "warn") || strings.Contains(line, "取消"):
		return styles.LogWarn
	case strings.Contains(line, "完成"):
		return styles.LogDone
	default:
		return styles.LogInfo
	}
}

// View renders the events view
func (v *EventsView) View() string {
	if len(v.lines) == 0 {
		return styles.Muted.Render("No events yet")
	}
	return v.viewport.View()
}
