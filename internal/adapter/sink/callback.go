package sink

import (
	"context"

	"wa-resolver/internal/domain"
)

// Callback delivers pages through an in-process function, the path a host
// embedding the resolver uses to feed its own state container.
type Callback struct {
	fn domain.AnnotationSinkFunc
}

// NewCallback creates a Callback sink. A nil fn discards deliveries.
func NewCallback(fn domain.AnnotationSinkFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Deliver(ctx context.Context, canvasID, endpointURL string, page domain.AnnotationPage) error {
	if c.fn != nil {
		return c.fn(ctx, canvasID, endpointURL, page)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
