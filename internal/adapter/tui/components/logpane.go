package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"scenetuner/internal/adapter/tui/theme"
)

// LineKind tags where a log line came from.
type LineKind int

const (
	LineOutput LineKind = iota
	LineError
	LineInfo
)

type logLine struct {
	kind LineKind
	text string
}

// LogPaneModel is a scrollable, bounded view of renderer output with smart
// auto-scroll: it follows new lines only while scrolled to the bottom.
type LogPaneModel struct {
	Viewport viewport.Model
	lines    []logLine
	max      int
	ready    bool
	atBottom bool
}

// NewLogPane keeps at most maxLines lines.
func NewLogPane(maxLines int) LogPaneModel {
	if maxLines <= 0 {
		maxLines = 200
	}
	return LogPaneModel{max: maxLines, atBottom: true}
}

// SetSize sets the viewport dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.Viewport.MouseWheelEnabled = true
		m.Viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refreshContent()
}

// Append adds a line, dropping the oldest beyond the limit.
func (m *LogPaneModel) Append(kind LineKind, text string) {
	m.lines = append(m.lines, logLine{kind: kind, text: text})
	if len(m.lines) > m.max {
		m.lines = m.lines[len(m.lines)-m.max:]
	}
	m.refreshContent()
	if m.ready && m.atBottom {
		m.Viewport.GotoBottom()
	}
}

// Clear removes every line.
func (m *LogPaneModel) Clear() {
	m.lines = nil
	m.refreshContent()
}

// Len returns the number of lines held.
func (m LogPaneModel) Len() int { return len(m.lines) }

// Lines returns the held lines as plain text.
func (m LogPaneModel) Lines() []string {
	out := make([]string, len(m.lines))
	for i, l := range m.lines {
		out[i] = l.text
	}
	return out
}

// Update handles viewport scrolling.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// View renders the pane.
func (m LogPaneModel) View() string {
	if !m.ready {
		return ""
	}
	return m.Viewport.View()
}

func (m *LogPaneModel) refreshContent() {
	if !m.ready {
		return
	}
	if len(m.lines) == 0 {
		m.Viewport.SetContent(theme.TextMuted.Render("  No renderer output yet. Press r to run."))
		return
	}
	var sb strings.Builder
	for _, l := range m.lines {
		switch l.kind {
		case LineError:
			sb.WriteString(theme.TextError.Render(l.text))
		case LineInfo:
			sb.WriteString(theme.TextInfo.Render(l.text))
		default:
			sb.WriteString(l.text)
		}
		sb.WriteByte('\n')
	}
	m.Viewport.SetContent(sb.String())
}
