// Package plugin wires the annotation resolver into the viewer's plugin
// lifecycle: mount and canvas-change signals in, a transparent wrapper view out.
package plugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"wa-resolver/internal/domain"
)

// Registration of the web annotations plugin with the viewer.
const (
	WebAnnotationsName   = "WebAnnotationsPlugin"
	WebAnnotationsTarget = "WindowCanvasNavigationControls"
)

// Trigger is the resolver surface the plugin drives.
type Trigger interface {
	OnActivate(ctx context.Context)
	OnVisibleSetChanged(ctx context.Context, previous, current []*domain.Canvas) bool
}

// Component is a view with a mount lifecycle.
type Component interface {
	domain.View
	Mount(ctx context.Context) error
	Unmount(ctx context.Context)
}

// Plugin is a viewer plugin that wraps a target view.
type Plugin interface {
	Manifest() domain.PluginManifest
	Wrap(inner domain.View) Component
}

// WebAnnotations fetches Web Annotations for the visible canvases of one window.
type WebAnnotations struct {
	windowID string
	trigger  Trigger
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewWebAnnotations creates the plugin for windowID. bus may be nil, in which
// case only the mount signal reaches the resolver.
func NewWebAnnotations(windowID string, trigger Trigger, bus domain.EventBus, logger *slog.Logger) *WebAnnotations {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebAnnotations{
		windowID: windowID,
		trigger:  trigger,
		bus:      bus,
		logger:   logger.With("plugin", WebAnnotationsName, "window", windowID),
	}
}

// Manifest implements Plugin.
func (p *WebAnnotations) Manifest() domain.PluginManifest {
	return domain.PluginManifest{
		Name:   WebAnnotationsName,
		Target: WebAnnotationsTarget,
		Mode:   domain.PluginModeWrap,
	}
}

// Wrap implements Plugin.
func (p *WebAnnotations) Wrap(inner domain.View) Component {
	return &Wrapper{plugin: p, inner: inner}
}

// Wrapper renders the inner view unchanged and drives the resolver from the
// host's lifecycle.
type Wrapper struct {
	plugin *WebAnnotations
	inner  domain.View

	mu      sync.Mutex
	mounted bool
	unsub   func()
}

// Mount subscribes to canvas changes of the plugin's window and resolves the
// current visible set. Mounting twice is a no-op.
func (w *Wrapper) Mount(ctx context.Context) error {
	w.mu.Lock()
	if w.mounted {
		w.mu.Unlock()
		return nil
	}
	w.mounted = true
	if w.plugin.bus != nil {
		w.unsub = w.plugin.bus.SubscribeWindow(domain.EventCanvasesChanged, w.plugin.windowID, w.onCanvasesChanged)
	}
	w.mu.Unlock()

	w.plugin.trigger.OnActivate(ctx)
	w.publish(ctx, domain.EventViewMounted)
	return nil
}

// Unmount stops reacting to canvas changes. In-flight fetches still deliver.
func (w *Wrapper) Unmount(ctx context.Context) {
	w.mu.Lock()
	if !w.mounted {
		w.mu.Unlock()
		return
	}
	w.mounted = false
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
	w.mu.Unlock()

	w.publish(ctx, domain.EventViewUnmounted)
}

// Render forwards props to the inner view untouched.
func (w *Wrapper) Render(ctx context.Context, props domain.Props) error {
	if w.inner == nil {
		return nil
	}
	return w.inner.Render(ctx, props)
}

func (w *Wrapper) onCanvasesChanged(ctx context.Context, ev domain.Event) {
	var p domain.CanvasesChangedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		w.plugin.logger.Warn("plugin: bad canvases.changed payload", "error", err)
		return
	}
	w.plugin.trigger.OnVisibleSetChanged(ctx, p.Previous, p.Current)
}

func (w *Wrapper) publish(ctx context.Context, typ domain.EventType) {
	if w.plugin.bus == nil {
		return
	}
	w.plugin.bus.Emit(ctx, typ, w.plugin.windowID, w.plugin.Manifest())
}
