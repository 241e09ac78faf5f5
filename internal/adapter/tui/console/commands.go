package console

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
