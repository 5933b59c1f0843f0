package sink

import (
	"context"
	"log/slog"

	"wa-resolver/internal/domain"
)

// Router fans out pages to all configured sinks. One sink error does not
// block the others; errors are logged and the first is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Deliver(ctx context.Context, canvasID, endpointURL string, page domain.AnnotationPage) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, canvasID, endpointURL, page); err != nil {
			r.logger.Warn("sink: deliver failed", "canvas", canvasID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
