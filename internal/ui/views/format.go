package views

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// truncate shortens s to maxLen display cells with an ellipsis
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > maxLen {
		runes = runes[:len(runes)-1]
	}
	if maxLen <= 3 {
		return string(runes)
	}
	return string(runes) + "..."
}

// truncatePath truncates a path, keeping the end visible
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 6 {
		return path[len(path)-maxLen:]
	}
	return "..." + path[len(path)-maxLen+3:]
}

// pad right-pads s to width display cells
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// field renders one "key: value" line
func field(label, value string) string {
	return "  " + pad(label+":", 12) + " " + value
}

// orDash substitutes a dash for empty values
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
