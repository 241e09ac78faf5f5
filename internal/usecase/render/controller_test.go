package render

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenetuner/internal/domain"
)

const fakeRenderer = `#!/bin/sh
case "$2" in
  Finish)
    echo "rendering $1 $3 $4 $5"
    printf 'frame 1\rframe 2\n\n'
    echo "deprecated call" >&2
    exit 0 ;;
  Fail)
    echo "Traceback: bad scene" >&2
    exit 3 ;;
  Crash)
    kill -s SEGV $$ ;;
  Hang)
    echo "waiting"
    exec sleep 30 ;;
  Spam)
    i=0
    while [ $i -lt 50 ]; do echo "line $i"; i=$((i+1)); done ;;
esac
`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu       sync.Mutex
	statuses []domain.RenderStatus
	codes    []*int
	output   []string
	errs     []string
}

func (r *recorder) attach(c *Controller) {
	c.OnStatus(func(st domain.StatusChange) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, st.Status)
		r.codes = append(r.codes, st.ExitCode)
	})
	c.OnOutput(func(line string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.output = append(r.output, line)
	})
	c.OnError(func(line string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, line)
	})
}

func newTestController(t *testing.T) (*Controller, *recorder) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("renderer tests drive sh scripts")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "fake-manimgl")
	require.NoError(t, os.WriteFile(exe, []byte(fakeRenderer), 0o755))
	script := filepath.Join(dir, "wave.py")
	require.NoError(t, os.WriteFile(script, []byte("PARAMETERS = {}\n"), 0o644))

	cfg := DefaultConfig()
	cfg.Executable = exe
	cfg.DrainTimeout = 100 * time.Millisecond
	cfg.KillWaitTimeout = time.Second
	cfg.GroupSettle = 10 * time.Millisecond
	cfg.SelfHealGrace = 50 * time.Millisecond

	c := NewController(script, cfg, newTestLogger())
	rec := &recorder{}
	rec.attach(c)
	return c, rec
}

// pollUntil drives the poll step like a host timer until cond holds.
func pollUntil(t *testing.T, c *Controller, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.Poll()
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v (status %s)", timeout, c.Status())
}

func terminal(c *Controller) func() bool {
	return func() bool { return c.Status().Terminal() }
}

func TestStartFinished(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Finish", Quality: domain.QualityMedium, Mode: domain.ModeSaveOnly}))
	assert.NotEmpty(t, c.SessionID())

	pollUntil(t, c, 5*time.Second, terminal(c))
	c.Poll()

	assert.Equal(t, domain.RenderFinished, c.Status())
	assert.Equal(t, []domain.RenderStatus{domain.RenderRunning, domain.RenderFinished}, rec.statuses)
	require.NotNil(t, rec.codes[1])
	assert.Equal(t, 0, *rec.codes[1])
	assert.Equal(t, []string{
		"rendering " + c.Script() + " -m --write_to_movie -np",
		"frame 1",
		"frame 2",
	}, rec.output)
	assert.Equal(t, []string{"deprecated call"}, rec.errs)
	assert.False(t, c.IsRunning())
}

func TestStartNonZeroExit(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Fail"}))

	pollUntil(t, c, 5*time.Second, terminal(c))
	c.Poll()

	assert.Equal(t, domain.RenderError, c.Status())
	require.Len(t, rec.errs, 2)
	assert.Equal(t, "Traceback: bad scene", rec.errs[0])
	assert.Equal(t, "fake-manimgl exited with status 3", rec.errs[1])
	assert.Equal(t, 3, *rec.codes[len(rec.codes)-1])
}

func TestStartCrashSignal(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Crash"}))

	pollUntil(t, c, 5*time.Second, terminal(c))
	c.Poll()

	assert.Equal(t, domain.RenderError, c.Status())
	assert.Contains(t, rec.errs, CrashMessage)
	assert.Equal(t, -11, *rec.codes[len(rec.codes)-1])
}

func TestStartWhileRunningIsBusy(t *testing.T) {
	c, rec := newTestController(t)
	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Hang"}))
	id := c.SessionID()

	err := c.Start(context.Background(), RunOptions{Scene: "Finish"})
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, domain.RenderRunning, c.Status())
	assert.Equal(t, id, c.SessionID())
	assert.True(t, c.IsRunning())

	require.True(t, c.Stop())
	assert.Equal(t, domain.RenderStopping, c.Status())
	assert.ErrorIs(t, c.Start(context.Background(), RunOptions{Scene: "Finish"}), domain.ErrBusy)

	pollUntil(t, c, 5*time.Second, terminal(c))
	assert.Contains(t, rec.errs, BusyMessage)
}

func TestStartThenStopReachesStopped(t *testing.T) {
	for i := 0; i < 3; i++ {
		c, rec := newTestController(t)
		require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Hang"}))
		require.True(t, c.Stop())

		pollUntil(t, c, 5*time.Second, terminal(c))
		c.Poll()
		assert.Equal(t, domain.RenderStopped, c.Status())
		assert.Equal(t, domain.RenderStopped, rec.statuses[len(rec.statuses)-1])
		assert.Contains(t, rec.statuses, domain.RenderStopping)
		assert.False(t, c.IsRunning())
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	c, _ := newTestController(t)
	assert.False(t, c.Stop())
	assert.Equal(t, domain.RenderIdle, c.Status())

	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Finish"}))
	pollUntil(t, c, 5*time.Second, terminal(c))
	assert.False(t, c.Stop())
	assert.Equal(t, domain.RenderFinished, c.Status())
}

func TestRestartReplacesSession(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Finish"}))
	pollUntil(t, c, 5*time.Second, terminal(c))
	first := c.SessionID()

	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Fail"}))
	assert.NotEqual(t, first, c.SessionID())
	pollUntil(t, c, 5*time.Second, terminal(c))
	assert.Equal(t, domain.RenderError, c.Status())
}

func TestOutputDeliveredBeforeTerminalStatus(t *testing.T) {
	c, rec := newTestController(t)
	var linesAtTerminal int
	c.OnStatus(func(st domain.StatusChange) {
		if st.Status.Terminal() {
			rec.mu.Lock()
			linesAtTerminal = len(rec.output)
			rec.mu.Unlock()
		}
	})
	require.NoError(t, c.Start(context.Background(), RunOptions{Scene: "Spam"}))
	pollUntil(t, c, 5*time.Second, terminal(c))

	assert.Equal(t, 50, linesAtTerminal)
	assert.Equal(t, "line 49", rec.output[49])
}

func TestSpawnExecutableNotFound(t *testing.T) {
	for _, exe := range []string{"scenetuner-no-such-renderer", "/nonexistent/bin/manimgl"} {
		t.Run(exe, func(t *testing.T) {
			c, rec := newTestController(t)
			c.cfg.Executable = exe

			err := c.Start(context.Background(), RunOptions{Scene: "Finish"})
			assert.ErrorIs(t, err, domain.ErrExecutableNotFound)
			assert.True(t, domain.IsSpawnError(err))
			assert.Equal(t, domain.RenderError, c.Status())
			assert.False(t, c.IsRunning())

			c.Poll()
			require.NotEmpty(t, rec.errs)
			assert.Contains(t, rec.errs[0], "pip install manimgl")
			assert.Equal(t, []domain.RenderStatus{domain.RenderError}, rec.statuses)
		})
	}
}

func TestSpawnPermissionDenied(t *testing.T) {
	c, rec := newTestController(t)
	exe := filepath.Join(t.TempDir(), "not-executable")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o644))
	c.cfg.Executable = exe

	err := c.Start(context.Background(), RunOptions{Scene: "Finish"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.RenderError, c.Status())
	c.Poll()
	require.NotEmpty(t, rec.errs)
	assert.True(t, strings.HasPrefix(rec.errs[0], "Permission denied"))
}

func TestStartRejectsBadOptions(t *testing.T) {
	c, _ := newTestController(t)
	assert.ErrorIs(t, c.Start(context.Background(), RunOptions{}), domain.ErrInvalidInput)
	assert.ErrorIs(t, c.Start(context.Background(), RunOptions{Scene: "Finish", Mode: "turbo"}), domain.ErrInvalidInput)
	assert.Equal(t, domain.RenderIdle, c.Status())
}

func TestPollSelfHeals(t *testing.T) {
	exited := make(chan struct{})
	close(exited)
	now := time.Now()
	sess := &session{
		id:       "01TEST",
		argv:     []string{"manimgl"},
		exited:   exited,
		code:     0,
		exitedAt: now.Add(-time.Second),
	}

	c := NewController("wave.py", DefaultConfig(), newTestLogger(), WithClock(func() time.Time { return now }))
	rec := &recorder{}
	rec.attach(c)
	c.mu.Lock()
	c.current = sess
	c.status = domain.RenderRunning
	c.mu.Unlock()

	c.Poll()
	assert.Equal(t, domain.RenderFinished, c.Status())
	assert.Equal(t, []domain.RenderStatus{domain.RenderFinished}, rec.statuses)
}

func TestPollSelfHealWaitsForGrace(t *testing.T) {
	exited := make(chan struct{})
	close(exited)
	now := time.Now()
	sess := &session{id: "01TEST", argv: []string{"manimgl"}, exited: exited, code: 2, exitedAt: now}

	c := NewController("wave.py", DefaultConfig(), newTestLogger(), WithClock(func() time.Time { return now }))
	c.current = sess
	c.status = domain.RenderRunning

	c.Poll()
	assert.Equal(t, domain.RenderRunning, c.Status())

	now = now.Add(time.Second)
	c.Poll()
	assert.Equal(t, domain.RenderError, c.Status())
}

func TestBuildCommand(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		mode domain.RenderMode
		want []string
	}{
		{domain.ModeAutoPlay, []string{"manimgl", "/s/wave.py", "WaveScene", "-h", "-l", "-p"}},
		{domain.ModePreviewLoop, []string{"manimgl", "/s/wave.py", "WaveScene", "-h", "-l"}},
		{domain.ModeSaveOnly, []string{"manimgl", "/s/wave.py", "WaveScene", "-h", "--write_to_movie", "-np"}},
		{"", []string{"manimgl", "/s/wave.py", "WaveScene", "-h", "-l", "-p"}},
	}
	for _, tt := range tests {
		got, err := BuildCommand(cfg, "/s/wave.py", RunOptions{Scene: "WaveScene", Quality: domain.QualityHigh, Mode: tt.mode})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "mode %q", tt.mode)
	}

	got, err := BuildCommand(Config{ModeFlags: cfg.ModeFlags}, "w.py", RunOptions{Scene: "S"})
	require.NoError(t, err)
	assert.Equal(t, []string{"manimgl", "w.py", "S", "-l", "-l", "-p"}, got)
}

func TestConfigWithDefaultsFillsEveryBound(t *testing.T) {
	got := Config{GroupSettle: -time.Second}.withDefaults()
	want := DefaultConfig()

	assert.Equal(t, want.ReaderJoinTimeout, got.ReaderJoinTimeout)
	assert.Equal(t, want.KillWaitTimeout, got.KillWaitTimeout)
	assert.Equal(t, want.GroupSettle, got.GroupSettle)
	assert.Equal(t, want.PreviousKillWait, got.PreviousKillWait)
	assert.Equal(t, want.SelfHealGrace, got.SelfHealGrace)
	assert.Equal(t, want.QueueCapacity, got.QueueCapacity)

	custom := Config{SelfHealGrace: 50 * time.Millisecond}.withDefaults()
	assert.Equal(t, 50*time.Millisecond, custom.SelfHealGrace)
}

func TestLatestVideo(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "wave.py")
	_, ok := LatestVideo(script)
	assert.False(t, ok)

	videos := filepath.Join(dir, "media", "videos", "wave", "480p15")
	require.NoError(t, os.MkdirAll(videos, 0o755))
	old := filepath.Join(videos, "WaveScene.mp4")
	newer := filepath.Join(videos, "Other.MP4")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	require.NoError(t, os.WriteFile(newer, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(videos, "notes.txt"), nil, 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, ok := LatestVideo(script)
	require.True(t, ok)
	assert.Equal(t, newer, got)
}
