package domain

import "context"

// Canvas identifies a single page or image unit shown by the viewer.
// ID is the canvas's IIIF resource URL and is owned by the host.
type Canvas struct {
	ID    string `json:"id"    yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// CanvasIDs returns the ordered id sequence of canvases. Nil entries map to "".
func CanvasIDs(canvases []*Canvas) []string {
	ids := make([]string, len(canvases))
	for i, c := range canvases {
		if c != nil {
			ids[i] = c.ID
		}
	}
	return ids
}

// CanvasReader reads the host's visible canvases for a viewer window.
type CanvasReader interface {
	VisibleCanvases(windowID string) []*Canvas
}

// AnnotationSink is the host's ingestion point for fetched annotation pages.
// Implementations must tolerate concurrent, unordered, duplicate and stale
// deliveries for the same canvas id.
type AnnotationSink interface {
	Deliver(ctx context.Context, canvasID, endpointURL string, page AnnotationPage) error
}

// AnnotationSinkFunc adapts a plain function to AnnotationSink.
type AnnotationSinkFunc func(ctx context.Context, canvasID, endpointURL string, page AnnotationPage) error

// Deliver implements AnnotationSink.
func (f AnnotationSinkFunc) Deliver(ctx context.Context, canvasID, endpointURL string, page AnnotationPage) error {
	return f(ctx, canvasID, endpointURL, page)
}
