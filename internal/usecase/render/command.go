package render

import (
	"fmt"
	"time"

	"scenetuner/internal/domain"
)

// Config controls how the renderer is invoked and how long the controller
// waits at each bounded step.
type Config struct {
	Executable string
	ModeFlags  map[domain.RenderMode][]string
	WorkDir    string // empty runs in the script's directory

	ReaderJoinTimeout time.Duration
	ExitWaitTimeout   time.Duration
	DrainTimeout      time.Duration
	KillWaitTimeout   time.Duration
	GroupSettle       time.Duration
	PreviousKillWait  time.Duration
	SelfHealGrace     time.Duration

	// QueueCapacity bounds the output and error line queues.
	QueueCapacity int
}

// DefaultConfig returns the stock manimgl invocation.
func DefaultConfig() Config {
	return Config{
		Executable: "manimgl",
		ModeFlags: map[domain.RenderMode][]string{
			domain.ModeAutoPlay:    {"-l", "-p"},
			domain.ModePreviewLoop: {"-l"},
			domain.ModeSaveOnly:    {"--write_to_movie", "-np"},
		},
		ReaderJoinTimeout: 5 * time.Second,
		ExitWaitTimeout:   2 * time.Second,
		DrainTimeout:      1500 * time.Millisecond,
		KillWaitTimeout:   3 * time.Second,
		GroupSettle:       500 * time.Millisecond,
		PreviousKillWait:  200 * time.Millisecond,
		SelfHealGrace:     500 * time.Millisecond,
		QueueCapacity:     1000,
	}
}

// withDefaults replaces every unset or negative field with its default.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Executable == "" {
		c.Executable = d.Executable
	}
	if c.ModeFlags == nil {
		c.ModeFlags = d.ModeFlags
	}
	if c.ReaderJoinTimeout <= 0 {
		c.ReaderJoinTimeout = d.ReaderJoinTimeout
	}
	if c.ExitWaitTimeout <= 0 {
		c.ExitWaitTimeout = d.ExitWaitTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.KillWaitTimeout <= 0 {
		c.KillWaitTimeout = d.KillWaitTimeout
	}
	if c.GroupSettle <= 0 {
		c.GroupSettle = d.GroupSettle
	}
	if c.PreviousKillWait <= 0 {
		c.PreviousKillWait = d.PreviousKillWait
	}
	if c.SelfHealGrace <= 0 {
		c.SelfHealGrace = d.SelfHealGrace
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	return c
}

// RunOptions selects what one run renders.
type RunOptions struct {
	Scene   string
	Quality domain.Quality
	Mode    domain.RenderMode
}

// BuildCommand returns the renderer argv:
// executable, script, scene, quality flag, then the mode flags.
func BuildCommand(cfg Config, script string, opts RunOptions) ([]string, error) {
	if opts.Scene == "" {
		return nil, domain.NewSubSystemError("render", "BuildCommand", domain.ErrInvalidInput, "scene name is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = domain.ModeAutoPlay
	}
	flags, ok := cfg.ModeFlags[mode]
	if !ok {
		return nil, domain.NewSubSystemError("render", "BuildCommand", domain.ErrInvalidInput,
			fmt.Sprintf("no flags configured for mode %q", mode))
	}
	exe := cfg.Executable
	if exe == "" {
		exe = DefaultConfig().Executable
	}
	argv := []string{exe, script, opts.Scene, opts.Quality.Flag()}
	return append(argv, flags...), nil
}
