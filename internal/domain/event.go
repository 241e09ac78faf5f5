package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Parameter store events.
	EventParamChanged EventType = "param.changed"
	EventFileModified EventType = "param.file_modified"

	// Renderer controller events, dispatched from the poll step.
	EventRenderStatus EventType = "render.status"
	EventRenderOutput EventType = "render.output"
	EventRenderError  EventType = "render.error"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Payload   any
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus delivers events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
	Close()
}
