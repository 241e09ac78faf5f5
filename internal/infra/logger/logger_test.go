package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenetuner/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenetuner.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("render started", "scene", "WaveScene")
	log.Debug("filtered out")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), data)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["msg"] != "render started" || entry["scene"] != "WaveScene" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewFanout(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "text", Output: a + ", " + b})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("param changed", "name", "amplitude")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, p := range []string{a, b} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "name=amplitude") {
			t.Errorf("%s missing record: %q", p, data)
		}
	}
}

func TestNewBadPath(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestOpenOutputStd(t *testing.T) {
	for _, target := range []string{"stdout", "STDERR", ""} {
		w, closer, err := openOutput(target)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", target, err)
		}
		if w == nil {
			t.Errorf("openOutput(%q) returned nil writer", target)
		}
		if err := closer(); err != nil {
			t.Errorf("closer: %v", err)
		}
	}
}
