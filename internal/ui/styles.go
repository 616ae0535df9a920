// Package ui provides terminal styling for illsync CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	sg "github.com/steveyegge/illsync/internal/statusgraph"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// HeaderStyle for section headers and table headings.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	// LabelStyle pads field labels in key/value views.
	LabelStyle = lipgloss.NewStyle().Foreground(ColorMuted).Width(16)
	// NoticeStyle frames rendered patron notices.
	NoticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "ℹ"
	Arrow    = "→"
)

// SeparatorLight is drawn between sections.
const SeparatorLight = "──────────────────────────────────────────"

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderHeader renders a section header in uppercase with accent color
func RenderHeader(s string) string {
	return HeaderStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// StatusStyle picks a color for a request status code: closed and cancelled
// requests are muted, delivered or arrived ones green, negative answers red
// and everything still waiting on someone yellow.
func StatusStyle(code string) lipgloss.Style {
	suffix := code
	if i := strings.IndexByte(code, '_'); i >= 0 {
		suffix = code[i+1:]
	}
	switch suffix {
	case sg.CodeClosed, sg.CancelledID, sg.CodeVoided:
		return MutedStyle
	case sg.CodeDelivered, sg.CodeArrived, sg.CodeReceived, sg.CodeReturned:
		return PassStyle
	case sg.CodeNegative:
		return FailStyle
	case sg.CodeNew, sg.CodeRead, sg.CodeWaiting, sg.CodeReserved, sg.CodeMayReserve,
		sg.CodeComment, sg.CodeOutstanding:
		return WarnStyle
	default:
		return AccentStyle
	}
}

// RenderStatus renders a status code in its status color.
func RenderStatus(code string) string {
	return StatusStyle(code).Render(code)
}
