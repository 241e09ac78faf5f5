// Package theme provides the console's colors, symbols and styles.
// All colors are adaptive so they work on light and dark terminals.
//
// NO_COLOR (https://no-color.org/) is respected by lipgloss through its color
// profile detection.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"scenetuner/internal/domain"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}

	ColorBorder       = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
	ColorBorderActive = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}

	ColorBgAlt  = lipgloss.AdaptiveColor{Light: "#f5f5f5", Dark: "#2d2d2d"}
	ColorFgDim  = lipgloss.AdaptiveColor{Light: "#9e9e9e", Dark: "#757575"}
	ColorSelBg  = lipgloss.AdaptiveColor{Light: "#e3f2fd", Dark: "#263238"}
	ColorModded = lipgloss.AdaptiveColor{Light: "#ef6c00", Dark: "#ffb74d"}
)

// Symbols default to Unicode and fall back to ASCII (see InitSymbols).
var (
	SymbolSuccess  = "✓"
	SymbolError    = "✗"
	SymbolWarning  = "⚠"
	SymbolInfo     = "●"
	SymbolRunning  = "▶"
	SymbolStopped  = "■"
	SymbolCursor   = "❯"
	SymbolArrowR   = "→"
	SymbolBullet   = "•"
	SymbolEllipsis = "…"
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
)

var (
	FocusBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorderActive)

	UnfocusedBorder = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(ColorBorder)
)

// Parameter list styles.
var (
	CategoryHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	ParamSelected = lipgloss.NewStyle().
			Background(ColorSelBg).
			Bold(true)

	ParamModified = lipgloss.NewStyle().
			Foreground(ColorModded)

	ParamUnit = lipgloss.NewStyle().
			Foreground(ColorFgDim)
)

var (
	StatusBar = lipgloss.NewStyle().
			Foreground(ColorFgDim).
			Background(ColorBgAlt).
			Padding(0, 1)

	StatusKey = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	InputPrompt = lipgloss.NewStyle().
			Foreground(ColorInfo).
			Bold(true)

	InputPlaceholder = lipgloss.NewStyle().
				Foreground(ColorFgDim)
)

// RenderStatus returns the symbol and style for a renderer state.
func RenderStatus(s domain.RenderStatus) (string, lipgloss.Style) {
	switch s {
	case domain.RenderRunning:
		return SymbolRunning, TextInfo
	case domain.RenderStopping:
		return SymbolEllipsis, TextWarning
	case domain.RenderFinished:
		return SymbolSuccess, TextSuccess
	case domain.RenderError:
		return SymbolError, TextError
	case domain.RenderStopped:
		return SymbolStopped, TextMuted
	default:
		return SymbolInfo, TextMuted
	}
}

// Clamp returns v clamped to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
