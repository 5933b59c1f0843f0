// Package resolver turns the viewer's visible canvases into annotation pages.
//
// Every resolve round fans out one independent fetch per canvas. Rounds are
// never deduplicated or cancelled, results arrive in any order, and failures
// stay local to their canvas: they are logged and published as
// annotation.failed events but the sink is not told.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"wa-resolver/internal/domain"
	"wa-resolver/internal/infra/tracer"
)

// Fetcher retrieves the raw annotation document behind an endpoint URL.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (json.RawMessage, error)
}

// Config holds the collaborators of a Resolver.
type Config struct {
	WindowID string
	Reader   domain.CanvasReader
	Sink     domain.AnnotationSink
	Fetcher  Fetcher
	Bus      domain.EventBus // optional
	Logger   *slog.Logger
}

// Resolver derives, fetches and delivers annotation pages for canvases.
type Resolver struct {
	windowID string
	reader   domain.CanvasReader
	sink     domain.AnnotationSink
	fetcher  Fetcher
	bus      domain.EventBus
	logger   *slog.Logger

	// inflight counts running fetches. Unlike a WaitGroup it may grow while
	// Wait is blocked, which overlapping rounds do.
	flightMu sync.Mutex
	inflight int
	settled  *sync.Cond
}

// New creates a Resolver. Reader, Sink and Fetcher are required.
func New(cfg Config) (*Resolver, error) {
	if cfg.Reader == nil || cfg.Sink == nil || cfg.Fetcher == nil {
		return nil, domain.NewDomainError("resolver.New", domain.ErrInvalidInput, "reader, sink and fetcher are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		windowID: cfg.WindowID,
		reader:   cfg.Reader,
		sink:     cfg.Sink,
		fetcher:  cfg.Fetcher,
		bus:      cfg.Bus,
		logger:   logger,
	}
	r.settled = sync.NewCond(&r.flightMu)
	return r, nil
}

// OnActivate resolves the full visible set when the view is first shown.
func (r *Resolver) OnActivate(ctx context.Context) {
	r.Resolve(ctx, r.reader.VisibleCanvases(r.windowID))
}

// OnVisibleSetChanged re-resolves current when its ordered id sequence differs
// from previous. It reports whether a round was started.
func (r *Resolver) OnVisibleSetChanged(ctx context.Context, previous, current []*domain.Canvas) bool {
	if slices.Equal(domain.CanvasIDs(previous), domain.CanvasIDs(current)) {
		return false
	}
	r.logger.Info("annotation: visible canvases changed, fetching",
		"window", r.windowID, "canvases", len(current))
	r.Resolve(ctx, current)
	return true
}

// Resolve starts one fetch per non-nil canvas and returns without waiting.
// A nil slice is a no-op. Fetches outlive cancellation of ctx.
func (r *Resolver) Resolve(ctx context.Context, canvases []*domain.Canvas) {
	if canvases == nil {
		return
	}

	round := ulid.Make().String()
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.StartSpan(ctx, "annotation.resolve",
		trace.WithAttributes(
			tracer.StringAttr(tracer.AttrRound, round),
			tracer.IntAttr(tracer.AttrCanvasCount, len(canvases)),
		),
	)
	defer span.End()

	for _, canvas := range canvases {
		if canvas == nil {
			continue
		}
		endpoint, err := DeriveEndpoint(canvas.ID)
		if err != nil {
			r.fail(ctx, round, canvas.ID, "", err)
			continue
		}

		r.started()
		go func(canvasID, endpoint string) {
			defer r.finished()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("annotation: fetch panicked",
						"round", round, "canvas", canvasID, "panic", p)
				}
			}()
			r.fetch(ctx, round, canvasID, endpoint)
		}(canvas.ID, endpoint)
	}
}

func (r *Resolver) fetch(ctx context.Context, round, canvasID, endpoint string) {
	ctx, span := tracer.StartSpan(ctx, "annotation.canvas",
		trace.WithAttributes(
			tracer.StringAttr(tracer.AttrCanvasID, canvasID),
			tracer.StringAttr(tracer.AttrEndpointURL, endpoint),
		),
	)
	defer span.End()

	doc, err := r.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrFetch, err)
		tracer.RecordError(span, err)
		r.fail(ctx, round, canvasID, endpoint, err)
		return
	}

	page := domain.NewAnnotationPage(endpoint, doc)
	if err := r.sink.Deliver(ctx, canvasID, endpoint, page); err != nil {
		tracer.RecordError(span, err)
		r.logger.Warn("annotation: sink rejected page",
			"round", round, "canvas", canvasID, "url", endpoint, "error", err)
		return
	}
	tracer.SetOK(span)

	r.logger.Debug("annotation: delivered", "round", round, "canvas", canvasID, "url", endpoint)
	r.emit(ctx, domain.EventAnnotationReceived, domain.AnnotationOutcomePayload{
		Round:       round,
		CanvasID:    canvasID,
		EndpointURL: endpoint,
	})
}

// fail logs a per-canvas failure and publishes it. The sink is not informed.
func (r *Resolver) fail(ctx context.Context, round, canvasID, endpoint string, err error) {
	code := domain.ErrorCodeOf(err)
	r.logger.Warn("annotation: canvas skipped",
		"round", round, "canvas", canvasID, "url", endpoint, "code", string(code), "error", err)
	r.emit(ctx, domain.EventAnnotationFailed, domain.AnnotationOutcomePayload{
		Round:       round,
		CanvasID:    canvasID,
		EndpointURL: endpoint,
		ErrorCode:   code,
		Error:       err.Error(),
	})
}

func (r *Resolver) emit(ctx context.Context, typ domain.EventType, payload domain.AnnotationOutcomePayload) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(ctx, typ, r.windowID, payload)
}

func (r *Resolver) started() {
	r.flightMu.Lock()
	r.inflight++
	r.flightMu.Unlock()
}

func (r *Resolver) finished() {
	r.flightMu.Lock()
	r.inflight--
	if r.inflight == 0 {
		r.settled.Broadcast()
	}
	r.flightMu.Unlock()
}

// Wait blocks until no fetch is running. It is safe to call concurrently with
// Resolve; fetches started while Wait blocks are waited for too.
func (r *Resolver) Wait() {
	r.flightMu.Lock()
	for r.inflight > 0 {
		r.settled.Wait()
	}
	r.flightMu.Unlock()
}
