// Package eventbus is the host's action dispatch: lifecycle signals from the
// viewer and annotation outcomes from the resolver travel over it.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"wa-resolver/internal/domain"
)

// subscription is a registered handler. A non-empty window restricts it to
// events of that viewer window.
type subscription struct {
	id      uint64
	window  string
	handler domain.EventHandler
}

func (s subscription) matches(event domain.Event) bool {
	return s.window == "" || s.window == event.WindowID
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		typed:  make(map[domain.EventType][]subscription),
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event subscribers.
// Each handler is invoked in its own goroutine. Panicking handlers are recovered.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	typed := make([]subscription, len(b.typed[event.Type]))
	copy(typed, b.typed[event.Type])
	allSubs := make([]subscription, len(b.allSubs))
	copy(allSubs, b.allSubs)
	b.mu.RUnlock()

	for _, sub := range typed {
		if sub.matches(event) {
			b.dispatch(ctx, event, sub)
		}
	}
	for _, sub := range allSubs {
		b.dispatch(ctx, event, sub)
	}
}

// Emit builds an event from payload and publishes it. Encoding failures are
// logged and the event is dropped.
func (b *Bus) Emit(ctx context.Context, typ domain.EventType, windowID string, payload any) {
	ev, err := domain.NewEvent(typ, windowID, payload)
	if err != nil {
		b.logger.Error("event encode failed", "event", string(typ), "error", err)
		return
	}
	b.Publish(ctx, ev)
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, sub subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"window", event.WindowID,
					"panic", r,
				)
			}
		}()
		sub.handler(ctx, event)
	}()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.subscribe(eventType, "", handler)
}

// SubscribeWindow registers a handler for eventType events of one viewer
// window. Events of other windows never reach it.
func (b *Bus) SubscribeWindow(eventType domain.EventType, windowID string, handler domain.EventHandler) func() {
	return b.subscribe(eventType, windowID, handler)
}

func (b *Bus) subscribe(eventType domain.EventType, windowID string, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, window: windowID, handler: handler}

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == id {
				b.typed[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				return
			}
		}
	}
}

// Drain waits for all in-flight handlers without closing the bus.
func (b *Bus) Drain() {
	b.wg.Wait()
}

// Close prevents new publishes and waits for all in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
