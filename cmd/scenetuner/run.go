package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scenetuner/internal/domain"
	"scenetuner/internal/usecase/render"
	"scenetuner/internal/usecase/workspace"
)

// runRender renders one scene in the foreground. The first interrupt asks
// the renderer to stop; polling continues until a terminal state.
func (a *app) runRender(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scenetuner run <script> [--scene S] [--quality Q] [--mode M]")
	}
	opts, err := parseRunOptions(args[1:])
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(args[0], true)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.renderForeground(ctx, ws, opts, a.cfg.Console.PollInterval)
}

func (a *app) renderForeground(ctx context.Context, ws *workspace.Workspace, opts render.RunOptions, interval time.Duration) error {
	var final domain.StatusChange
	done := false
	ws.OnOutput(func(line string) { fmt.Fprintln(a.out, line) })
	ws.OnError(func(line string) { fmt.Fprintln(a.errOut, line) })
	ws.OnStatus(func(st domain.StatusChange) {
		a.log.Debug("renderer status", "session_id", st.SessionID, "status", string(st.Status))
		if st.Status.Terminal() {
			final, done = st, true
		}
	})

	if err := ws.Run(ctx, opts); err != nil {
		ws.Poll()
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	interrupted := ctx.Done()
	for !done {
		select {
		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(a.errOut, "stopping renderer...")
			ws.Stop()
		case <-ticker.C:
			ws.Poll()
		}
	}

	switch final.Status {
	case domain.RenderFinished:
		if path, ok := ws.LatestVideo(); ok {
			fmt.Fprintf(a.out, "video: %s\n", path)
		}
		return nil
	case domain.RenderStopped:
		fmt.Fprintln(a.errOut, "renderer stopped")
		return nil
	default:
		if final.ExitCode == nil {
			return fmt.Errorf("renderer ended in %s state", final.Status)
		}
		code := *final.ExitCode
		if render.IsCrashCode(code) {
			return domain.NewSubSystemError("render", "run", domain.ErrCrashSignal, fmt.Sprintf("exit status %d", code))
		}
		return domain.NewSubSystemError("render", "run", domain.ErrNonZeroExit, fmt.Sprintf("exit status %d", code))
	}
}
