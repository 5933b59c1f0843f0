package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Host lifecycle events.
	EventViewMounted     EventType = "view.mounted"
	EventViewUnmounted   EventType = "view.unmounted"
	EventCanvasesChanged EventType = "canvases.changed"

	// Resolver outcomes.
	EventAnnotationReceived EventType = "annotation.received"
	EventAnnotationFailed   EventType = "annotation.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	WindowID  string          `json:"window_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CanvasesChangedPayload carries both canvas sets of an update signal.
type CanvasesChangedPayload struct {
	Previous []*Canvas `json:"previous"`
	Current  []*Canvas `json:"current"`
}

// AnnotationOutcomePayload describes one per-canvas fetch result.
type AnnotationOutcomePayload struct {
	Round       string    `json:"round"`
	CanvasID    string    `json:"canvas_id"`
	EndpointURL string    `json:"endpoint_url,omitempty"`
	ErrorCode   ErrorCode `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Emit encodes payload into an event for windowID and publishes it.
	Emit(ctx context.Context, typ EventType, windowID string, payload any)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeWindow is Subscribe restricted to events of one window.
	SubscribeWindow(eventType EventType, windowID string, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// NewEvent builds an Event with a JSON-encoded payload. A nil payload is omitted.
func NewEvent(typ EventType, windowID string, payload any) (Event, error) {
	ev := Event{Type: typ, Timestamp: time.Now(), WindowID: windowID}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, WrapOp("domain.NewEvent", err)
	}
	ev.Payload = raw
	return ev, nil
}
