package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateFetch(cfg, ve)
	validateViewer(cfg, ve)
	validateSink(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is not one of text, json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not supported", cfg.Tracer.Exporter)
	}
}

func validateFetch(cfg *Config, ve *ValidationError) {
	f := cfg.Fetch
	if f.Timeout < 0 {
		ve.Add("fetch.timeout must be >= 0")
	}
	if f.MaxBodyBytes < 0 {
		ve.Add("fetch.max_body_bytes must be >= 0")
	}
	if f.Breaker.Enabled {
		if f.Breaker.MaxFailures == 0 {
			ve.Add("fetch.circuit_breaker.max_failures must be > 0")
		}
		if f.Breaker.Timeout <= 0 {
			ve.Add("fetch.circuit_breaker.timeout must be > 0")
		}
	}
	if f.RateLimit.RequestsPerSecond < 0 {
		ve.Add("fetch.rate_limit.requests_per_second must be >= 0")
	}
	if f.RateLimit.RequestsPerSecond > 0 && f.RateLimit.Burst <= 0 {
		ve.Add("fetch.rate_limit.burst must be > 0 when rate limiting is enabled")
	}
}

func validateViewer(cfg *Config, ve *ValidationError) {
	if cfg.Viewer.WindowID == "" {
		ve.Add("viewer.window_id is required")
	}
	for i, id := range cfg.Viewer.Canvases {
		if strings.TrimSpace(id) == "" {
			ve.Add("viewer.canvases[%d] is empty", i)
		}
	}
}

func validateSink(cfg *Config, ve *ValidationError) {
	switch cfg.Sink.Type {
	case "stdout", "memory":
	case "sqlite":
		if cfg.Sink.Path == "" {
			ve.Add("sink.path is required for sink.type sqlite")
		}
	default:
		ve.Add("sink.type %q is not one of stdout, memory, sqlite", cfg.Sink.Type)
	}
}
