package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the scenetuner configuration file.
type Config struct {
	Renderer   RendererConfig   `yaml:"renderer"`
	Controller ControllerConfig `yaml:"controller"`
	Console    ConsoleConfig    `yaml:"console"`
	RunLog     RunLogConfig     `yaml:"runlog"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// RendererConfig describes how the external renderer is invoked.
type RendererConfig struct {
	Executable string              `yaml:"executable"`
	Quality    string              `yaml:"quality"`
	Mode       string              `yaml:"mode"`
	ModeFlags  map[string][]string `yaml:"mode_flags"`
	WorkDir    string              `yaml:"work_dir"` // empty runs in the script's directory
}

// ControllerConfig holds the bounded waits of the process controller.
type ControllerConfig struct {
	ReaderJoinTimeout time.Duration `yaml:"reader_join_timeout"`
	ExitWaitTimeout   time.Duration `yaml:"exit_wait_timeout"`
	DrainTimeout      time.Duration `yaml:"drain_timeout"`
	KillWaitTimeout   time.Duration `yaml:"kill_wait_timeout"`
	GroupSettle       time.Duration `yaml:"group_settle"`
	PreviousKillWait  time.Duration `yaml:"previous_kill_wait"`
	SelfHealGrace     time.Duration `yaml:"self_heal_grace"`
	QueueCapacity     int           `yaml:"queue_capacity"`
}

// ConsoleConfig holds terminal host settings.
type ConsoleConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxLogLines  int           `yaml:"max_log_lines"`
}

// RunLogConfig holds the run journal settings.
type RunLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggerConfig holds logging settings. Output may list several
// comma-separated targets: stderr, stdout or file paths.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings. For the stdout exporter, Endpoint
// names a file to write spans to instead of standard output.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultDir returns $HOME/.scenetuner, or ".scenetuner" when $HOME is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scenetuner"
	}
	return filepath.Join(home, ".scenetuner")
}

// DefaultPath is where the CLI looks for a config file.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Renderer: RendererConfig{
			Executable: "manimgl",
			Quality:    "low",
			Mode:       "auto-play",
			ModeFlags: map[string][]string{
				"auto-play":    {"-l", "-p"},
				"preview-loop": {"-l"},
				"save-only":    {"--write_to_movie", "-np"},
			},
		},
		Controller: ControllerConfig{
			ReaderJoinTimeout: 5 * time.Second,
			ExitWaitTimeout:   2 * time.Second,
			DrainTimeout:      1500 * time.Millisecond,
			KillWaitTimeout:   3 * time.Second,
			GroupSettle:       500 * time.Millisecond,
			PreviousKillWait:  200 * time.Millisecond,
			SelfHealGrace:     500 * time.Millisecond,
			QueueCapacity:     1000,
		},
		Console: ConsoleConfig{
			PollInterval: 50 * time.Millisecond,
			MaxLogLines:  200,
		},
		RunLog: RunLogConfig{
			Enabled: true,
			Path:    filepath.Join(DefaultDir(), "runs.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validatePermissions(path); err != nil {
		return nil, err
	}

	// Mode flags given in the file replace the default table per mode.
	defaultFlags := cfg.Renderer.ModeFlags
	cfg.Renderer.ModeFlags = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for mode, flags := range defaultFlags {
		if _, ok := cfg.Renderer.ModeFlags[mode]; !ok {
			if cfg.Renderer.ModeFlags == nil {
				cfg.Renderer.ModeFlags = make(map[string][]string)
			}
			cfg.Renderer.ModeFlags[mode] = flags
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps SCENETUNER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCENETUNER_RENDERER_EXECUTABLE"); v != "" {
		cfg.Renderer.Executable = v
	}
	if v := os.Getenv("SCENETUNER_RENDERER_QUALITY"); v != "" {
		cfg.Renderer.Quality = v
	}
	if v := os.Getenv("SCENETUNER_RENDERER_MODE"); v != "" {
		cfg.Renderer.Mode = v
	}
	if v := os.Getenv("SCENETUNER_RENDERER_WORK_DIR"); v != "" {
		cfg.Renderer.WorkDir = v
	}
	if v := os.Getenv("SCENETUNER_CONSOLE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Console.PollInterval = d
		}
	}
	if v := os.Getenv("SCENETUNER_CONTROLLER_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Controller.QueueCapacity = n
		}
	}
	if v := os.Getenv("SCENETUNER_RUNLOG_ENABLED"); v != "" {
		cfg.RunLog.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SCENETUNER_RUNLOG_PATH"); v != "" {
		cfg.RunLog.Path = v
	}
	if v := os.Getenv("SCENETUNER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SCENETUNER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SCENETUNER_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = strings.Join(splitAndTrim(v, ","), ",")
	}
	if v := os.Getenv("SCENETUNER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SCENETUNER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SCENETUNER_TRACER_ENDPOINT"); v != "" {
		cfg.Tracer.Endpoint = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
