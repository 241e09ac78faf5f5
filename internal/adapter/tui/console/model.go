package console

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scenetuner/internal/adapter/tui/components"
	"scenetuner/internal/adapter/tui/theme"
	"scenetuner/internal/adapter/tui/uxerror"
	"scenetuner/internal/domain"
	"scenetuner/internal/usecase/render"
	"scenetuner/internal/usecase/workspace"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Options configures the console.
type Options struct {
	PollInterval time.Duration
	MaxLogLines  int
	Run          render.RunOptions // initial scene, quality and mode
}

var qualities = []domain.Quality{domain.QualityLow, domain.QualityMedium, domain.QualityHigh}

var hints = []components.KeyHint{
	{Key: "enter", Desc: "edit"},
	{Key: "r", Desc: "run"},
	{Key: "s", Desc: "stop"},
	{Key: "u/U", Desc: "undo/redo"},
	{Key: "x/X", Desc: "reset"},
	{Key: "tab", Desc: "scene"},
	{Key: "m", Desc: "mode"},
	{Key: "l", Desc: "quality"},
	{Key: "q", Desc: "quit"},
}

// row is one line of the parameter list: a category header or a parameter.
type row struct {
	header string
	param  string
}

// Model is the root console model. Renderer callbacks fire inside Poll,
// which runs on the update loop, so they mutate the model directly.
type Model struct {
	ws       *workspace.Workspace
	interval time.Duration
	opts     render.RunOptions

	rows   []row
	params []string // selectable names in display order
	cursor int

	editing bool
	input   textinput.Model

	log    components.LogPaneModel
	status components.StatusBarModel
	notice string

	width  int
	height int

	unsubs   []func()
	quitting bool
}

// New builds the console for ws and registers its renderer listeners.
func New(ws *workspace.Workspace, opts Options) *Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.Run.Scene == "" && len(ws.Scenes()) > 0 {
		opts.Run.Scene = ws.Scenes()[0]
	}
	if opts.Run.Quality == "" {
		opts.Run.Quality = domain.QualityLow
	}
	if opts.Run.Mode == "" {
		opts.Run.Mode = domain.ModeAutoPlay
	}

	ti := textinput.New()
	ti.Prompt = "= "
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.CharLimit = 256

	m := &Model{
		ws:       ws,
		interval: opts.PollInterval,
		opts:     opts.Run,
		input:    ti,
		log:      components.NewLogPane(opts.MaxLogLines),
		status:   components.NewStatusBar(hints),
	}
	m.status.Status = ws.Status()
	m.status.Scene = m.opts.Scene
	m.buildRows()

	m.unsubs = append(m.unsubs,
		ws.OnOutput(func(line string) { m.log.Append(components.LineOutput, line) }),
		ws.OnError(func(line string) { m.log.Append(components.LineError, line) }),
		ws.OnStatus(m.onStatus),
		ws.OnChange(func(c domain.ParamChange) {
			m.notice = fmt.Sprintf("%s %s %s %s", c.Name, c.Old.PythonLiteral(), theme.SymbolArrowR, c.New.PythonLiteral())
		}),
	)
	return m
}

func (m *Model) buildRows() {
	for _, cat := range m.ws.Categories() {
		m.rows = append(m.rows, row{header: cat.Name})
		for _, p := range cat.Params {
			m.rows = append(m.rows, row{param: p})
			m.params = append(m.params, p)
		}
	}
}

func (m *Model) onStatus(st domain.StatusChange) {
	m.status.Status = st.Status
	text := "renderer " + string(st.Status)
	if st.ExitCode != nil {
		text += fmt.Sprintf(" (exit %d)", *st.ExitCode)
	}
	m.log.Append(components.LineInfo, text)
	if st.Status == domain.RenderFinished {
		if path, ok := m.ws.LatestVideo(); ok {
			m.notice = "latest video: " + path
		}
	}
}

// Init starts the poll ticker.
func (m *Model) Init() tea.Cmd {
	return tickCmd(m.interval)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tickMsg:
		m.ws.Poll()
		if n := m.ws.Controller().DroppedLines(); n > 0 {
			m.status.Extra = fmt.Sprintf("dropped %d lines", n)
		}
		if m.quitting {
			return m, nil
		}
		return m, tickCmd(m.interval)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, m.quit()
		}
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m *Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.editing = false
		m.input.Blur()
		m.apply(m.selected(), m.input.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, m.quit()
	case "up", "k":
		m.cursor = theme.Clamp(m.cursor-1, 0, max(len(m.params)-1, 0))
	case "down", "j":
		m.cursor = theme.Clamp(m.cursor+1, 0, max(len(m.params)-1, 0))
	case "enter":
		if name := m.selected(); name != "" {
			p, _ := m.ws.Param(name)
			m.input.SetValue(editText(p.Current))
			m.input.CursorEnd()
			m.input.Focus()
			m.editing = true
		}
	case "r":
		if err := m.ws.Run(context.Background(), m.opts); err != nil {
			m.notice = uxerror.Humanize(err).Title + ": " + err.Error()
		} else {
			m.notice = "rendering " + m.opts.Scene
		}
	case "s":
		if !m.ws.Stop() {
			m.notice = "nothing to stop"
		}
	case "u":
		if !m.ws.Undo() {
			m.notice = "nothing to undo"
		}
	case "U":
		if !m.ws.Redo() {
			m.notice = "nothing to redo"
		}
	case "x":
		if name := m.selected(); name != "" {
			if _, err := m.ws.Reset(name); err != nil {
				m.notice = err.Error()
			}
		}
	case "X":
		if !m.ws.ResetAll() {
			m.notice = "all parameters already at their loaded values"
		}
	case "tab":
		m.cycleScene()
	case "m":
		i := slices.Index(domain.RenderModes, m.opts.Mode)
		m.opts.Mode = domain.RenderModes[(i+1)%len(domain.RenderModes)]
		m.notice = "mode: " + string(m.opts.Mode)
	case "l":
		i := slices.Index(qualities, m.opts.Quality)
		m.opts.Quality = qualities[(i+1)%len(qualities)]
		m.notice = "quality: " + string(m.opts.Quality)
	case "c":
		m.log.Clear()
	default:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(name, text string) {
	if name == "" {
		return
	}
	changed, err := m.ws.SetText(name, text)
	switch {
	case err != nil:
		m.notice = uxerror.Humanize(err).Title + ": " + err.Error()
	case !changed:
		m.notice = name + " unchanged"
	}
}

func (m *Model) cycleScene() {
	scenes := m.ws.Scenes()
	if len(scenes) == 0 {
		return
	}
	i := slices.Index(scenes, m.opts.Scene)
	m.opts.Scene = scenes[(i+1)%len(scenes)]
	m.status.Scene = m.opts.Scene
}

func (m *Model) selected() string {
	if m.cursor < 0 || m.cursor >= len(m.params) {
		return ""
	}
	return m.params[m.cursor]
}

// quit stops a running renderer and removes the listeners; the final tick
// is not rescheduled.
func (m *Model) quit() tea.Cmd {
	m.quitting = true
	m.ws.Stop()
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
	return tea.Quit
}

// editText is the value as the user types it back.
func editText(v domain.Value) string {
	if v.Kind() == domain.KindString {
		return v.Str()
	}
	return v.PythonLiteral()
}

func (m *Model) paramsHeight() int {
	return theme.Clamp(len(m.rows), 3, max(m.height/2, 3))
}

func (m *Model) layout() {
	m.status.SetWidth(m.width)
	m.input.Width = max(m.width-4, 10)
	logH := m.height - m.paramsHeight() - 6
	m.log.SetSize(max(m.width-2, 10), max(logH, 3))
}

// View renders the console.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	title := theme.Bold.Render("scenetuner") + "  " + theme.TextMuted.Render(m.ws.Path()) +
		"  " + theme.TextAccent.Render(fmt.Sprintf("%s %s %s", m.opts.Scene, m.opts.Quality, m.opts.Mode))

	params := theme.FocusBorder.Width(max(m.width-2, 10)).Render(m.viewParams())
	logs := theme.UnfocusedBorder.Width(max(m.width-2, 10)).Render(m.log.View())

	bottom := theme.TextMuted.Render(m.notice)
	if m.editing {
		bottom = theme.Bold.Render(m.selected()) + " " + m.input.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, params, logs, bottom, m.status.View())
}

func (m *Model) viewParams() string {
	if len(m.rows) == 0 {
		return theme.TextMuted.Render("  no parameters declared")
	}
	sel := m.selected()
	lines := make([]string, 0, len(m.rows))
	selLine := 0
	for _, r := range m.rows {
		if r.header != "" {
			lines = append(lines, theme.CategoryHeader.Render(r.header))
			continue
		}
		p, _ := m.ws.Param(r.param)
		value := p.Current.PythonLiteral()
		if !p.Current.Equal(p.Value) {
			value = theme.ParamModified.Render(value)
		}
		line := fmt.Sprintf("  %-20s %s %s%s", p.Name, value, theme.ParamUnit.Render(p.Unit), bounds(p))
		if r.param == sel {
			selLine = len(lines)
			line = theme.ParamSelected.Render(theme.SymbolCursor + line[1:])
		}
		lines = append(lines, line)
	}

	// Scroll so the selection stays visible.
	h := m.paramsHeight()
	start := 0
	if selLine >= h {
		start = selLine - h + 1
	}
	end := min(start+h, len(lines))
	return strings.Join(lines[start:end], "\n")
}

func bounds(p workspace.Param) string {
	if p.Min == nil && p.Max == nil {
		return ""
	}
	lo, hi := "", ""
	if p.Min != nil {
		lo = domain.Float(*p.Min).String()
	}
	if p.Max != nil {
		hi = domain.Float(*p.Max).String()
	}
	return theme.Dim.Render(fmt.Sprintf("  [%s..%s]", lo, hi))
}

// Run opens the console on the alternate screen and blocks until the user quits.
func Run(ws *workspace.Workspace, opts Options) error {
	p := tea.NewProgram(New(ws, opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
