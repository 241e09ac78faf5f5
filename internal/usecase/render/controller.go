// Package render supervises the external renderer as a child process.
//
// Background workers never call back into the host. They push status
// changes and output lines onto queues, and the host drains them by
// calling Poll at a fixed interval. Callbacks therefore run one at a time
// on the polling goroutine.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"scenetuner/internal/domain"
	"scenetuner/internal/infra/tracer"
	"scenetuner/internal/usecase/eventbus"
)

// BusyMessage is delivered on the error channel when Start is rejected.
const BusyMessage = "Process busy - please wait"

// CrashMessage is delivered when the renderer dies from SIGSEGV or SIGABRT.
const CrashMessage = "Process crashed (SIGSEGV/SIGABRT)"

// crashCodes are SIGSEGV and SIGABRT, reported directly or through a shell.
var crashCodes = []int{-11, -6, 139, 134}

// IsCrashCode reports whether an exit code means SIGSEGV or SIGABRT.
func IsCrashCode(code int) bool { return slices.Contains(crashCodes, code) }

// Controller runs at most one renderer process at a time.
type Controller struct {
	script string
	cfg    Config
	logger *slog.Logger
	bus    domain.EventBus
	now    func() time.Time

	startMu sync.Mutex
	pollMu  sync.Mutex

	mu      sync.Mutex
	status  domain.RenderStatus
	current *session

	output   *queue[string]
	errors   *queue[string]
	statuses *queue[domain.StatusChange]
}

// Option configures a Controller.
type Option func(*Controller)

// WithBus dispatches callbacks through an existing bus.
func WithBus(bus domain.EventBus) Option {
	return func(c *Controller) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithClock sets the time source used for status timestamps and self-healing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController creates an idle controller for script.
func NewController(script string, cfg Config, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if abs, err := filepath.Abs(script); err == nil {
		script = abs
	}
	cfg = cfg.withDefaults()
	c := &Controller{
		script:   script,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		status:   domain.RenderIdle,
		output:   newQueue[string](cfg.QueueCapacity),
		errors:   newQueue[string](cfg.QueueCapacity),
		statuses: newQueue[domain.StatusChange](0),
	}
	for _, o := range opts {
		o(c)
	}
	if c.bus == nil {
		c.bus = eventbus.New(logger)
	}
	return c
}

// Script returns the absolute script path.
func (c *Controller) Script() string { return c.script }

// Status returns the recorded lifecycle state.
func (c *Controller) Status() domain.RenderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the id of the current or last run, or "" before the first.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// Argv returns the command line of the current or last run.
func (c *Controller) Argv() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return slices.Clone(c.current.argv)
}

// IsRunning reports whether a renderer process is alive right now,
// independent of the recorded state.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()
	return sess != nil && sess.alive()
}

// DroppedLines returns how many output and error lines were discarded
// because the host polled too slowly.
func (c *Controller) DroppedLines() int64 {
	return c.output.Dropped() + c.errors.Dropped()
}

// Start launches the renderer. It fails with ErrBusy while a run is Running
// or Stopping, and with a spawn error (state Error) when the process cannot
// be created. It returns once the process exists.
func (c *Controller) Start(ctx context.Context, opts RunOptions) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if st := c.status; st.Busy() {
		c.mu.Unlock()
		c.errors.Push(BusyMessage)
		return domain.NewSubSystemError("render", "Controller.Start", domain.ErrBusy, "renderer is "+string(st))
	}
	prev := c.current
	c.mu.Unlock()

	argv, err := BuildCommand(c.cfg, c.script, opts)
	if err != nil {
		return err
	}

	if prev != nil {
		c.discard(prev)
	}

	_, span := tracer.StartSpan(ctx, "render.start",
		trace.WithAttributes(tracer.StringsAttr("argv", argv), tracer.StringAttr("mode", string(opts.Mode))))
	defer span.End()

	id := newSessionID()
	sess, serr := spawn(id, argv, c.workDir())
	if serr != nil {
		tracer.RecordError(span, serr.err)
		c.logger.Error("renderer spawn failed", "session_id", id, "argv", argv, "error", serr.err)
		c.errors.Push(serr.message)
		c.mu.Lock()
		c.current = nil
		c.setLocked(id, domain.RenderError, nil)
		c.mu.Unlock()
		return serr.err
	}

	c.mu.Lock()
	c.current = sess
	c.setLocked(id, domain.RenderRunning, nil)
	c.mu.Unlock()

	tracer.SetOK(span)
	span.SetAttributes(tracer.IntAttr("pid", sess.pid()))
	c.logger.Info("renderer started", "session_id", id, "pid", sess.pid(), "argv", argv)

	go c.supervise(sess)
	return nil
}

// discard force-kills a previous run that is still alive and releases its
// streams.
func (c *Controller) discard(prev *session) {
	if prev.alive() {
		c.logger.Warn("killing lingering renderer", "session_id", prev.id, "pid", prev.pid())
		if err := prev.kill(); err != nil {
			c.logger.Warn("kill lingering renderer", "session_id", prev.id, "error", err)
		}
		waitFor(prev.exited, c.cfg.PreviousKillWait)
	}
	prev.requestCancel()
	prev.closeStreams()
}

// Stop asks the running renderer to stop and returns immediately; teardown
// continues in the background and ends in Stopped. It returns false unless
// the state was Running with a live process. A Running state whose process
// has already exited moves straight to Stopped.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != domain.RenderRunning {
		return false
	}
	sess := c.current
	if sess == nil || !sess.alive() {
		id := ""
		if sess != nil {
			id = sess.id
		}
		c.setLocked(id, domain.RenderStopped, nil)
		return false
	}

	sess.requestCancel()
	c.setLocked(sess.id, domain.RenderStopping, nil)
	c.logger.Info("renderer stopping", "session_id", sess.id)
	go c.teardown(sess)
	return true
}

// transition moves sess to a new state if it is still the current session
// and the state is one of from. msg, if set, is queued on the error channel
// ahead of the status change.
func (c *Controller) transition(sess *session, to domain.RenderStatus, code *int, msg string, from ...domain.RenderStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != sess || !slices.Contains(from, c.status) {
		return false
	}
	if msg != "" {
		c.errors.Push(msg)
	}
	c.setLocked(sess.id, to, code)
	return true
}

func (c *Controller) setLocked(id string, to domain.RenderStatus, code *int) {
	c.status = to
	c.statuses.Push(domain.StatusChange{SessionID: id, Status: to, ExitCode: code, At: c.now()})
}

// resolve records the terminal state of a Running session from its exit code.
func (c *Controller) resolve(sess *session) bool {
	code, _, ok := sess.exitStatus()
	if !ok {
		return false
	}
	var to domain.RenderStatus
	var msg string
	switch {
	case code == 0:
		to = domain.RenderFinished
	case IsCrashCode(code):
		to, msg = domain.RenderError, CrashMessage
	default:
		to, msg = domain.RenderError, fmt.Sprintf("%s exited with status %d", filepath.Base(sess.argv[0]), code)
	}
	if !c.transition(sess, to, &code, msg, domain.RenderRunning) {
		return false
	}
	c.logger.Info("renderer exited", "session_id", sess.id, "status", string(to), "exit_code", code)
	return true
}

func (c *Controller) workDir() string {
	if c.cfg.WorkDir != "" {
		return c.cfg.WorkDir
	}
	return filepath.Dir(c.script)
}
