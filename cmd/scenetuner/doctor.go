package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"scenetuner/internal/domain"
	"scenetuner/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(w io.Writer) error {
	cfgPath := configPath()

	// Some checks work without a loaded config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Renderer", Fn: checkRenderer},
		{Name: "Render modes", Fn: checkModeFlags},
		{Name: "Run log", Fn: checkRunLog},
	}
	return report(w, cfg, checks)
}

func report(w io.Writer, cfg *config.Config, checks []Check) error {
	fmt.Fprintln(w, "scenetuner doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that reports whether the config file
// exists and loads. A missing file is fine: defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Fix %s or remove it to use the defaults", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusPass,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkRenderer verifies the renderer executable resolves.
func checkRenderer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	exe := cfg.Renderer.Executable
	path, err := exec.LookPath(exe)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found: %v", exe, err),
			Fix:     "Install it with 'pip install manimgl' or set renderer.executable",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s at %s", exe, path)}
}

// checkModeFlags verifies every render mode has flags configured.
func checkModeFlags(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	var missing []string
	for _, m := range domain.RenderModes {
		if _, ok := cfg.Renderer.ModeFlags[string(m)]; !ok {
			missing = append(missing, string(m))
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no flags for mode(s): %s", strings.Join(missing, ", ")),
			Fix:     "Add them under renderer.mode_flags",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d modes configured", len(domain.RenderModes))}
}

// checkRunLog verifies the run log directory is writable.
func checkRunLog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check: config not loaded"}
	}
	if !cfg.RunLog.Enabled {
		return CheckResult{Status: StatusPass, Message: "run log disabled"}
	}
	dir := filepath.Dir(cfg.RunLog.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
			Fix:     "Set runlog.path to a writable location or disable the run log",
		}
	}
	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 755 %s", dir),
		}
	}
	os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("journal at %s", cfg.RunLog.Path)}
}
