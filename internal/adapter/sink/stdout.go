package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"wa-resolver/internal/domain"
)

// Stdout writes one JSON line per delivered page to an io.Writer.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

type line struct {
	CanvasID    string                `json:"canvas_id"`
	EndpointURL string                `json:"endpoint_url"`
	Page        domain.AnnotationPage `json:"page"`
}

// Deliver implements domain.AnnotationSink.
func (s *Stdout) Deliver(_ context.Context, canvasID, endpointURL string, page domain.AnnotationPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(line{CanvasID: canvasID, EndpointURL: endpointURL, Page: page})
}

func (s *Stdout) Close() error { return nil }
