package render

import (
	"context"

	"scenetuner/internal/domain"
)

// Poll drains the output, error and status queues and runs the registered
// callbacks on the calling goroutine, in that order. It then checks for a
// Running state whose process already exited and resolves it. Calls are
// serialized, so callbacks never run concurrently.
func (c *Controller) Poll() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	ctx := context.Background()
	c.dispatch(ctx)
	if c.selfHeal() {
		c.dispatch(ctx)
	}
}

// dispatch snapshots statuses before draining lines, so every line produced
// ahead of a terminal status is delivered no later than that status.
func (c *Controller) dispatch(ctx context.Context) {
	statuses := c.statuses.Drain()
	outputs := c.output.Drain()
	errs := c.errors.Drain()

	for _, line := range outputs {
		c.publish(ctx, domain.EventRenderOutput, "", line)
	}
	for _, line := range errs {
		c.publish(ctx, domain.EventRenderError, "", line)
	}
	for _, st := range statuses {
		c.publish(ctx, domain.EventRenderStatus, st.SessionID, st)
	}
}

func (c *Controller) publish(ctx context.Context, t domain.EventType, sessionID string, payload any) {
	c.bus.Publish(ctx, domain.Event{Type: t, Timestamp: c.now(), SessionID: sessionID, Payload: payload})
}

func (c *Controller) selfHeal() bool {
	c.mu.Lock()
	sess := c.current
	running := c.status == domain.RenderRunning
	c.mu.Unlock()
	if !running || sess == nil {
		return false
	}
	_, at, exited := sess.exitStatus()
	if !exited || c.now().Sub(at) < c.cfg.SelfHealGrace {
		return false
	}
	if !c.resolve(sess) {
		return false
	}
	c.logger.Debug("poll resolved exited renderer", "session_id", sess.id)
	return true
}

// OnStatus registers fn for state changes. The returned func removes it.
func (c *Controller) OnStatus(fn func(domain.StatusChange)) func() {
	return c.bus.Subscribe(domain.EventRenderStatus, func(_ context.Context, e domain.Event) {
		if st, ok := e.Payload.(domain.StatusChange); ok {
			fn(st)
		}
	})
}

// OnOutput registers fn for renderer standard output lines.
func (c *Controller) OnOutput(fn func(string)) func() {
	return c.bus.Subscribe(domain.EventRenderOutput, func(_ context.Context, e domain.Event) {
		if line, ok := e.Payload.(string); ok {
			fn(line)
		}
	})
}

// OnError registers fn for renderer standard error lines and controller
// diagnostics.
func (c *Controller) OnError(fn func(string)) func() {
	return c.bus.Subscribe(domain.EventRenderError, func(_ context.Context, e domain.Event) {
		if line, ok := e.Payload.(string); ok {
			fn(line)
		}
	})
}
