package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateRenderer(cfg, ve)
	validateController(cfg, ve)
	validateConsole(cfg, ve)
	validateRunLog(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validModes = []string{"auto-play", "preview-loop", "save-only"}

var validQualities = map[string]bool{
	"low": true, "medium": true, "high": true,
}

func validateRenderer(cfg *Config, ve *ValidationError) {
	r := cfg.Renderer
	if strings.TrimSpace(r.Executable) == "" {
		ve.Add("renderer.executable must not be empty")
	}
	if !validQualities[r.Quality] {
		ve.Add("renderer.quality %q is invalid (want low, medium or high)", r.Quality)
	}
	known := false
	for _, m := range validModes {
		if r.Mode == m {
			known = true
		}
		if _, ok := r.ModeFlags[m]; !ok {
			ve.Add("renderer.mode_flags.%s is missing", m)
		}
	}
	if !known {
		ve.Add("renderer.mode %q is invalid (want %s)", r.Mode, strings.Join(validModes, ", "))
	}
	for m := range r.ModeFlags {
		if !contains(validModes, m) {
			ve.Add("renderer.mode_flags has unknown mode %q", m)
		}
	}
}

func validateController(cfg *Config, ve *ValidationError) {
	c := cfg.Controller
	checks := []struct {
		name  string
		value int64
	}{
		{"reader_join_timeout", int64(c.ReaderJoinTimeout)},
		{"exit_wait_timeout", int64(c.ExitWaitTimeout)},
		{"drain_timeout", int64(c.DrainTimeout)},
		{"kill_wait_timeout", int64(c.KillWaitTimeout)},
		{"group_settle", int64(c.GroupSettle)},
		{"previous_kill_wait", int64(c.PreviousKillWait)},
		{"self_heal_grace", int64(c.SelfHealGrace)},
	}
	for _, ch := range checks {
		if ch.value <= 0 {
			ve.Add("controller.%s must be > 0", ch.name)
		}
	}
	if c.QueueCapacity <= 0 {
		ve.Add("controller.queue_capacity must be > 0")
	}
}

func validateConsole(cfg *Config, ve *ValidationError) {
	if cfg.Console.PollInterval <= 0 {
		ve.Add("console.poll_interval must be > 0")
	}
	if cfg.Console.MaxLogLines <= 0 {
		ve.Add("console.max_log_lines must be > 0")
	}
}

func validateRunLog(cfg *Config, ve *ValidationError) {
	if cfg.RunLog.Enabled && cfg.RunLog.Path == "" {
		ve.Add("runlog.path is required when runlog is enabled")
	}
}

var validLevels = []string{"debug", "info", "warn", "error"}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !contains(validLevels, strings.ToLower(cfg.Logger.Level)) {
		ve.Add("logger.level %q is invalid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	if cfg.Logger.Format != "text" && cfg.Logger.Format != "json" {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
	for _, out := range splitAndTrim(cfg.Logger.Output, ",") {
		if out == "" {
			ve.Add("logger.output contains an empty target")
		}
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want stdout or noop)", cfg.Tracer.Exporter)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
