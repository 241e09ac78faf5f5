package render

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"scenetuner/internal/domain"
)

// maxLineBytes splits pathological lines so a relay never stops reading.
const maxLineBytes = 64 * 1024

// supervise relays both streams, then resolves the terminal state. The
// joins are bounded; a process still running after them is left to the
// relays and to the self-healing check in Poll.
func (c *Controller) supervise(sess *session) {
	var g errgroup.Group
	g.Go(func() error { return c.relay(sess, sess.stdout, c.output) })
	g.Go(func() error { return c.relay(sess, sess.stderr, c.errors) })
	go func() {
		if err := g.Wait(); err != nil {
			c.logger.Debug("stream relay ended with error", "session_id", sess.id, "error", err)
		}
		close(sess.readersDone)
	}()

	if !waitFor(sess.readersDone, c.cfg.ReaderJoinTimeout) {
		c.logger.Debug("stream relays still open", "session_id", sess.id)
	}
	if !waitFor(sess.exited, c.cfg.ExitWaitTimeout) {
		c.logger.Debug("renderer still running after relay join", "session_id", sess.id)
		return
	}
	c.resolve(sess)

	if waitFor(sess.readersDone, 0) {
		sess.closeStreams()
	}
}

// relay pushes non-empty trimmed lines from r onto q until the stream
// closes or the session is cancelled.
func (c *Controller) relay(sess *session, r io.Reader, q *queue[string]) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	sc.Split(scanLines)
	for sc.Scan() {
		if sess.cancelled() {
			return nil
		}
		if line := strings.TrimSpace(sc.Text()); line != "" {
			q.Push(line)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// scanLines splits on \n or \r so progress bars that redraw with a carriage
// return still produce lines.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF || len(data) >= maxLineBytes {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// teardown stops a session that Stop moved to Stopping: drain briefly,
// SIGKILL the process, escalate to the process group if it survives, then
// record Stopped. Any failure records Error with a diagnostic instead.
func (c *Controller) teardown(sess *session) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("renderer teardown panicked", "session_id", sess.id, "panic", r)
			c.transition(sess, domain.RenderError, nil, fmt.Sprintf("Cleanup error: %v", r), domain.RenderStopping)
		}
	}()

	waitFor(sess.readersDone, c.cfg.DrainTimeout)

	if err := sess.kill(); err != nil {
		c.logger.Error("renderer kill failed", "session_id", sess.id, "error", err)
		sess.closeStreams()
		c.transition(sess, domain.RenderError, nil, fmt.Sprintf("Cleanup error: %v", err), domain.RenderStopping)
		return
	}

	if !waitFor(sess.exited, c.cfg.KillWaitTimeout) {
		c.logger.Warn("renderer survived kill, killing process group", "session_id", sess.id, "pid", sess.pid())
		if err := killProcessGroup(sess.pid()); err != nil {
			c.logger.Debug("process group kill", "session_id", sess.id, "error", err)
		}
		time.Sleep(c.cfg.GroupSettle)
	}

	sess.closeStreams()
	if c.transition(sess, domain.RenderStopped, nil, "", domain.RenderStopping) {
		c.logger.Info("renderer stopped", "session_id", sess.id)
	}
}
