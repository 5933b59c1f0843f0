// Package annotation is the HTTP client for Web Annotation endpoints.
package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"wa-resolver/internal/domain"
	"wa-resolver/internal/infra/config"
	"wa-resolver/internal/infra/tracer"
)

const subsystem = "annotation"

// Client GETs annotation documents and checks that they are JSON, optionally
// conforming to a JSON Schema.
// It is safe for concurrent use.
type Client struct {
	client  *http.Client
	ua      string
	maxBody int64
	limiter *rate.Limiter
	breaker *config.CircuitBreakerConfig
	schema  *jsonschema.Schema
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[json.RawMessage]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithUserAgent sets the User-Agent header. Empty sends none.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.ua = ua }
}

// WithMaxBodyBytes caps the response body size. n <= 0 reads bodies of any size.
func WithMaxBodyBytes(n int64) Option {
	return func(cl *Client) {
		if n < 0 {
			n = 0
		}
		cl.maxBody = n
	}
}

// WithRateLimit throttles outbound requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker enables a circuit breaker per endpoint host.
func WithCircuitBreaker(cfg config.CircuitBreakerConfig) Option {
	return func(cl *Client) {
		if !cfg.Enabled {
			cl.breaker = nil
			return
		}
		c := cfg
		cl.breaker = &c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New creates a Client. By default it has no timeout, no throttling, no
// breaker and adds no request headers.
func New(opts ...Option) *Client {
	c := &Client{
		client:   &http.Client{},
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[json.RawMessage]),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewFromConfig creates a Client from the fetch section of the config.
func NewFromConfig(cfg config.FetchConfig, logger *slog.Logger) (*Client, error) {
	opts := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithUserAgent(cfg.UserAgent),
		WithMaxBodyBytes(cfg.MaxBodyBytes),
		WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		WithCircuitBreaker(cfg.Breaker),
		WithLogger(logger),
	}
	if cfg.SchemaFile != "" {
		schema, err := LoadSchema(cfg.SchemaFile)
		if err != nil {
			return nil, domain.NewSubSystemError(subsystem, "NewFromConfig", domain.ErrConfigLoad, err.Error())
		}
		opts = append(opts, WithSchema(schema))
	}
	return New(opts...), nil
}

// Fetch GETs endpoint and returns the body if the response is 2xx and valid JSON.
func (c *Client) Fetch(ctx context.Context, endpoint string) (json.RawMessage, error) {
	ctx, span := tracer.StartSpan(ctx, "annotation.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracer.StringAttr(tracer.AttrEndpointURL, endpoint)),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			err = domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrRateLimit, err.Error())
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	doc, err := c.execute(endpoint, func() (json.RawMessage, error) {
		return c.get(ctx, span, endpoint)
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return doc, nil
}

func (c *Client) execute(endpoint string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	if c.breaker == nil {
		return fn()
	}
	cb := c.breakerFor(hostOf(endpoint))
	doc, err := cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrCircuitOpen, cb.Name())
	}
	return doc, err
}

func (c *Client) get(ctx context.Context, span trace.Span, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrInvalidInput, err.Error())
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrTimeout, err.Error())
		}
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrFetch, err.Error())
	}
	defer resp.Body.Close()

	span.SetAttributes(tracer.IntAttr(tracer.AttrStatusCode, resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrNotFound, detail)
		}
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrFetch, detail)
	}

	var r io.Reader = resp.Body
	if c.maxBody > 0 {
		r = io.LimitReader(resp.Body, c.maxBody+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrFetch, "read body: "+err.Error())
	}
	if c.maxBody > 0 && int64(len(body)) > c.maxBody {
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrInvalidInput,
			fmt.Sprintf("body exceeds %d bytes", c.maxBody))
	}
	if !json.Valid(body) {
		return nil, domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrInvalidInput, "response is not JSON")
	}
	if err := c.validate(body); err != nil {
		return nil, err
	}

	c.logger.Debug("annotation: fetched", "url", endpoint, "status", resp.StatusCode, "size", len(body))
	return json.RawMessage(body), nil
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker[json.RawMessage] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	maxFailures := c.breaker.MaxFailures
	logger := c.logger
	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "annotation:" + host,
		MaxRequests: 1, // one trial request while half-open
		Interval:    c.breaker.Interval,
		Timeout:     c.breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A missing or malformed annotation document is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrInvalidInput)
		},
	})
	c.breakers[host] = cb
	return cb
}

// BreakerState returns the breaker state for an endpoint's host. Without a
// configured breaker it always reports closed.
func (c *Client) BreakerState(endpoint string) gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breakerFor(hostOf(endpoint)).State()
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
