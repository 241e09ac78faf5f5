package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"scenetuner/internal/adapter/tui/theme"
	"scenetuner/internal/domain"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "r"
	Desc string // e.g. "run"
}

// StatusBarModel renders a bottom status bar with keybinding hints on the
// left and the renderer state on the right.
type StatusBarModel struct {
	Hints  []KeyHint
	Status domain.RenderStatus
	Scene  string
	Extra  string // e.g. "dropped 12 lines"
	width  int
}

// NewStatusBar creates an idle status bar.
func NewStatusBar(hints []KeyHint) StatusBarModel {
	return StatusBarModel{Hints: hints, Status: domain.RenderIdle}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+" "+h.Desc)
	}
	left := strings.Join(hints, "  ")

	sym, style := theme.RenderStatus(m.Status)
	right := style.Render(sym + " " + string(m.Status))
	if m.Scene != "" {
		right = theme.TextMuted.Render(m.Scene+" "+theme.SymbolBullet+" ") + right
	}
	if m.Extra != "" {
		right = theme.TextWarning.Render(m.Extra) + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
