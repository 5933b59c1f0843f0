package sink

import (
	"context"
	"sort"
	"sync"

	"wa-resolver/internal/domain"
)

// Entry is the stored annotation state of one canvas.
type Entry struct {
	CanvasID    string                `json:"canvas_id"`
	EndpointURL string                `json:"endpoint_url"`
	Page        domain.AnnotationPage `json:"page"`
	Deliveries  int                   `json:"deliveries"`
}

// Store is the host's annotation state: one entry per canvas, last write wins.
// Duplicate and stale deliveries simply overwrite.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Deliver implements domain.AnnotationSink.
func (s *Store) Deliver(_ context.Context, canvasID, endpointURL string, page domain.AnnotationPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.NewDomainError("Store.Deliver", domain.ErrSinkClosed, canvasID)
	}
	e := s.entries[canvasID]
	s.entries[canvasID] = Entry{
		CanvasID:    canvasID,
		EndpointURL: endpointURL,
		Page:        page,
		Deliveries:  e.Deliveries + 1,
	}
	return nil
}

// Entries implements Lister.
func (s *Store) Entries(context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CanvasID < out[j].CanvasID })
	return out, nil
}

// Close rejects further deliveries. Stored entries stay readable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
