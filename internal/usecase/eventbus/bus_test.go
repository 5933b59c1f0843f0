package eventbus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wa-resolver/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventCanvasesChanged {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	bus.Close() // drain
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	bus.Publish(context.Background(), newEvent(domain.EventViewMounted))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1 before unsub, got %d", got.Load())
	}

	// Re-create bus since Close was called
	bus = newTestBus()
	unsub2 := bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	_ = unsub // original unsub for old bus

	unsub2()
	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected still 1 after unsub, got %d", got.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	// First subscriber panics
	bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	// Second subscriber should still fire
	bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 (second handler), got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventCanvasesChanged, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	bus.Close() // should block until the handler finishes

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	// After close, new publishes should be no-ops
	bus.Publish(context.Background(), newEvent(domain.EventCanvasesChanged))
	// Wait a bit to see if spurious delivery happens
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
}

func TestEmitEncodesPayload(t *testing.T) {
	bus := newTestBus()

	var got atomic.Value
	bus.Subscribe(domain.EventAnnotationFailed, func(_ context.Context, e domain.Event) {
		got.Store(e)
	})

	bus.Emit(context.Background(), domain.EventAnnotationFailed, "w1", domain.AnnotationOutcomePayload{
		CanvasID:  "https://example.org/iiif/p1",
		ErrorCode: domain.CodeAnnotationNotFound,
	})
	bus.Close()

	ev, ok := got.Load().(domain.Event)
	if !ok {
		t.Fatal("handler did not receive the event")
	}
	if ev.WindowID != "w1" {
		t.Errorf("WindowID = %q, want w1", ev.WindowID)
	}
	if !strings.Contains(string(ev.Payload), "ANNOTATION_NOT_FOUND") {
		t.Errorf("payload = %s", ev.Payload)
	}
}

func TestDrainKeepsBusOpen(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventViewMounted, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventViewMounted))
	bus.Drain()
	bus.Publish(context.Background(), newEvent(domain.EventViewMounted))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2 deliveries across Drain, got %d", got.Load())
	}
}

func TestSubscribeWindowFiltersOtherWindows(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var windows []string
	bus.SubscribeWindow(domain.EventCanvasesChanged, "w1", func(_ context.Context, e domain.Event) {
		mu.Lock()
		windows = append(windows, e.WindowID)
		mu.Unlock()
	})

	var all atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { all.Add(1) })

	ctx := context.Background()
	bus.Emit(ctx, domain.EventCanvasesChanged, "w1", domain.CanvasesChangedPayload{})
	bus.Emit(ctx, domain.EventCanvasesChanged, "w2", domain.CanvasesChangedPayload{})
	bus.Emit(ctx, domain.EventCanvasesChanged, "", nil)
	bus.Emit(ctx, domain.EventViewMounted, "w1", nil)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(windows) != 1 || windows[0] != "w1" {
		t.Fatalf("window handler got %v, want [w1]", windows)
	}
	if all.Load() != 4 {
		t.Fatalf("SubscribeAll got %d events, want 4", all.Load())
	}
}

func TestSubscribeWindowUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.SubscribeWindow(domain.EventCanvasesChanged, "w1", func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Emit(context.Background(), domain.EventCanvasesChanged, "w1", nil)
	bus.Drain()
	unsub()
	bus.Emit(context.Background(), domain.EventCanvasesChanged, "w1", nil)
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 delivery before unsubscribe, got %d", got.Load())
	}
}

func TestEmitDropsUnencodablePayload(t *testing.T) {
	var logs strings.Builder
	bus := New(slog.New(slog.NewTextHandler(&logs, nil)))

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { got.Add(1) })

	bus.Emit(context.Background(), domain.EventCanvasesChanged, "w1", make(chan int))
	bus.Close()

	if got.Load() != 0 {
		t.Fatalf("expected no delivery, got %d", got.Load())
	}
	if !strings.Contains(logs.String(), "event encode failed") {
		t.Errorf("encode failure not logged: %s", logs.String())
	}
}
