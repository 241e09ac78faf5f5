package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenetuner/internal/domain"
	"scenetuner/internal/infra/config"
	"scenetuner/internal/usecase/render"
)

const testScript = `PARAMETERS = {
    "speed": {"value": 1.0, "type": float, "unit": "x", "description": "playback", "min": 0.1, "max": 4.0},
    # Wave settings
    "count": {"value": 3, "type": int, "unit": "", "description": "waves", "min": 1, "max": 9},
}

class WaveScene(Scene):
    pass
`

type testApp struct {
	*app
	out    *bytes.Buffer
	errOut *bytes.Buffer
	script string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "wave.py")
	require.NoError(t, os.WriteFile(script, []byte(testScript), 0o644))

	cfg := config.Defaults()
	cfg.RunLog.Path = filepath.Join(dir, "runs.db")
	cfg.Console.PollInterval = 10 * time.Millisecond
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	a := &app{cfg: cfg, log: slog.New(slog.NewTextHandler(io.Discard, nil)), out: out, errOut: errOut}
	return &testApp{app: a, out: out, errOut: errOut, script: script}
}

func TestInspect(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.dispatch([]string{"inspect", ta.script}))
	out := ta.out.String()
	for _, want := range []string{"[Default]", "[Wave settings]", "speed", "1.0", "[0.1..4.0]", "scenes: WaveScene"} {
		assert.Contains(t, out, want)
	}
}

func TestValidate(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.dispatch([]string{"validate", ta.script}))
	assert.Contains(t, ta.out.String(), "2 parameters OK")

	bad := filepath.Join(t.TempDir(), "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte(`PARAMETERS = {"x": {"value": 1}}`), 0o644))
	err := ta.dispatch([]string{"validate", bad})
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestSet(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.dispatch([]string{"set", ta.script, "speed=2", "count=4"}))
	assert.Contains(t, ta.out.String(), "speed = 2.0")

	src, err := os.ReadFile(ta.script)
	require.NoError(t, err)
	assert.Contains(t, string(src), `"speed": {"value": 2.0,`)
	assert.Contains(t, string(src), `"count": {"value": 4,`)

	err = ta.dispatch([]string{"set", ta.script, "count=99", "ghost=1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, ta.errOut.String(), "ghost: unknown parameter")
	assert.Contains(t, ta.errOut.String(), "count: rejected")

	err = ta.dispatch([]string{"set", ta.script, "nonsense"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPresetCommands(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.dispatch([]string{"preset", "save", ta.script, "slow", "mo"}))
	require.NoError(t, ta.dispatch([]string{"set", ta.script, "speed=3"}))
	require.NoError(t, ta.dispatch([]string{"preset", "list", ta.script}))
	assert.Contains(t, ta.out.String(), "slow_mo\n")

	require.NoError(t, ta.dispatch([]string{"preset", "load", ta.script, "slow mo"}))
	assert.Contains(t, ta.out.String(), "applied 2 of 2 values")
	src, _ := os.ReadFile(ta.script)
	assert.Contains(t, string(src), `"speed": {"value": 1.0,`)

	require.NoError(t, ta.dispatch([]string{"preset", "delete", ta.script, "slow mo"}))
	err := ta.dispatch([]string{"preset", "load", ta.script, "slow mo"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Error(t, ta.dispatch([]string{"preset", "save", ta.script}))
}

func TestExportImport(t *testing.T) {
	ta := newTestApp(t)
	file := filepath.Join(t.TempDir(), "values.json")
	require.NoError(t, ta.dispatch([]string{"export", ta.script, file}))
	require.NoError(t, ta.dispatch([]string{"set", ta.script, "count=7"}))
	require.NoError(t, ta.dispatch([]string{"import", ta.script, file}))
	src, _ := os.ReadFile(ta.script)
	assert.Contains(t, string(src), `"count": {"value": 3,`)
}

func TestParseRunOptions(t *testing.T) {
	opts, err := parseRunOptions([]string{"--scene", "WaveScene", "--quality=high", "--mode", "save-only"})
	require.NoError(t, err)
	assert.Equal(t, render.RunOptions{Scene: "WaveScene", Quality: domain.QualityHigh, Mode: domain.ModeSaveOnly}, opts)

	_, err = parseRunOptions([]string{"--mode", "turbo"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = parseRunOptions([]string{"--scene"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = parseRunOptions([]string{"--bogus=1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunAndHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("renderer tests drive sh scripts")
	}
	ta := newTestApp(t)
	exe := filepath.Join(t.TempDir(), "fake-manimgl")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\necho \"rendering $2\"\n[ \"$2\" = Bad ] && exit 4\nexit 0\n"), 0o755))
	ta.cfg.Renderer.Executable = exe

	require.NoError(t, ta.dispatch([]string{"run", ta.script}))
	assert.Contains(t, ta.out.String(), "rendering WaveScene")

	ws, err := ta.openWorkspace(ta.script, true)
	require.NoError(t, err)
	err = ta.renderForeground(context.Background(), ws, render.RunOptions{Scene: "Bad"}, 10*time.Millisecond)
	ws.Close()
	assert.ErrorIs(t, err, domain.ErrNonZeroExit)
	assert.Contains(t, ta.errOut.String(), "exited with status 4")

	ta.out.Reset()
	require.NoError(t, ta.dispatch([]string{"history", "--limit", "5"}))
	lines := strings.Split(strings.TrimSpace(ta.out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "error")
	assert.Contains(t, lines[1], "Bad")
	assert.Contains(t, lines[2], "finished")
}

func TestRunInterrupted(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("renderer tests drive sh scripts")
	}
	ta := newTestApp(t)
	exe := filepath.Join(t.TempDir(), "fake-manimgl")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))
	ta.cfg.Renderer.Executable = exe
	ta.cfg.RunLog.Enabled = false

	ws, err := ta.openWorkspace(ta.script, false)
	require.NoError(t, err)
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	require.NoError(t, ta.renderForeground(ctx, ws, render.RunOptions{}, 10*time.Millisecond))
	assert.Contains(t, ta.errOut.String(), "renderer stopped")
}

func TestStripConfigFlag(t *testing.T) {
	got := stripConfigFlag([]string{"--config", "a.yaml", "inspect", "--config=b.yaml", "x.py"})
	assert.Equal(t, []string{"inspect", "x.py"}, got)
}

func TestUnknownCommand(t *testing.T) {
	ta := newTestApp(t)
	assert.Error(t, ta.dispatch([]string{"frobnicate"}))
}
