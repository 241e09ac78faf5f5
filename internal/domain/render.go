package domain

import (
	"fmt"
	"time"
)

// RenderStatus is the lifecycle state of the renderer controller.
type RenderStatus string

const (
	RenderIdle     RenderStatus = "idle"
	RenderRunning  RenderStatus = "running"
	RenderStopping RenderStatus = "stopping"
	RenderFinished RenderStatus = "finished"
	RenderError    RenderStatus = "error"
	RenderStopped  RenderStatus = "stopped"
)

// Terminal reports whether no process is attached in this state.
func (s RenderStatus) Terminal() bool {
	switch s {
	case RenderFinished, RenderError, RenderStopped:
		return true
	default:
		return false
	}
}

// Busy reports whether a new run must be rejected in this state.
func (s RenderStatus) Busy() bool {
	return s == RenderRunning || s == RenderStopping
}

// RenderMode selects how the external renderer is invoked.
type RenderMode string

const (
	// ModeAutoPlay loops the scene without the interactive window.
	ModeAutoPlay RenderMode = "auto-play"
	// ModePreviewLoop loops the scene in the interactive window.
	ModePreviewLoop RenderMode = "preview-loop"
	// ModeSaveOnly writes the movie file without preview or looping.
	ModeSaveOnly RenderMode = "save-only"
)

// RenderModes lists every mode in menu order.
var RenderModes = []RenderMode{ModeAutoPlay, ModePreviewLoop, ModeSaveOnly}

// ParseRenderMode accepts a mode name.
func ParseRenderMode(s string) (RenderMode, error) {
	for _, m := range RenderModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown render mode %q", ErrInvalidInput, s)
}

// Quality is the renderer quality preset.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality accepts low, medium or high (and the *_quality spellings).
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "low", "low_quality", "l":
		return QualityLow, nil
	case "medium", "medium_quality", "m":
		return QualityMedium, nil
	case "high", "high_quality", "h":
		return QualityHigh, nil
	}
	return "", fmt.Errorf("%w: unknown quality %q", ErrInvalidInput, s)
}

// Flag returns the renderer command-line flag for the quality.
func (q Quality) Flag() string {
	if q == "" {
		return "-l"
	}
	return "-" + string(q[0])
}

// StatusChange is the payload of EventRenderStatus.
type StatusChange struct {
	SessionID string
	Status    RenderStatus
	ExitCode  *int
	At        time.Time
}

// RunRecord is one journaled renderer run.
type RunRecord struct {
	ID        string       `json:"id"`
	Script    string       `json:"script"`
	Scene     string       `json:"scene"`
	Mode      RenderMode   `json:"mode"`
	Quality   Quality      `json:"quality"`
	Argv      []string     `json:"argv"`
	Status    RenderStatus `json:"status"`
	ExitCode  *int         `json:"exit_code,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
}
