// Package viewer is an in-memory stand-in for the host viewer's state: the
// visible canvases of each window. Changes are published on the event bus.
package viewer

import (
	"context"
	"slices"
	"sync"

	"wa-resolver/internal/domain"
)

// State tracks visible canvases per window. It implements domain.CanvasReader.
type State struct {
	mu      sync.RWMutex
	windows map[string][]*domain.Canvas
	bus     domain.EventBus
}

// NewState creates an empty State. bus may be nil.
func NewState(bus domain.EventBus) *State {
	return &State{
		windows: make(map[string][]*domain.Canvas),
		bus:     bus,
	}
}

// VisibleCanvases implements domain.CanvasReader. Unknown windows yield nil.
func (s *State) VisibleCanvases(windowID string) []*domain.Canvas {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.windows[windowID]
	if !ok {
		return nil
	}
	return slices.Clone(cur)
}

// SetVisible replaces a window's visible canvases and publishes
// canvases.changed carrying the previous and current sets. Like a host
// re-render, it publishes even when the set is unchanged.
func (s *State) SetVisible(ctx context.Context, windowID string, canvases []*domain.Canvas) {
	s.mu.Lock()
	prev := s.windows[windowID]
	s.windows[windowID] = slices.Clone(canvases)
	s.mu.Unlock()

	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, domain.EventCanvasesChanged, windowID, domain.CanvasesChangedPayload{
		Previous: prev,
		Current:  canvases,
	})
}

// CanvasesFromIDs builds canvas descriptors from raw ids.
func CanvasesFromIDs(ids []string) []*domain.Canvas {
	out := make([]*domain.Canvas, 0, len(ids))
	for _, id := range ids {
		out = append(out, &domain.Canvas{ID: id})
	}
	return out
}
