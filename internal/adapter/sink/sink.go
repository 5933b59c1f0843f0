// Package sink holds host-side ingestion points for annotation pages.
package sink

import (
	"context"

	"wa-resolver/internal/domain"
)

// Sink is an AnnotationSink that can be closed.
type Sink interface {
	domain.AnnotationSink
	Close() error
}

// Lister is a sink whose stored entries can be read back, ordered by canvas id.
type Lister interface {
	Entries(ctx context.Context) ([]Entry, error)
}
