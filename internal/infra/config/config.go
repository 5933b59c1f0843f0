package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Viewer ViewerConfig `yaml:"viewer"`
	Sink   SinkConfig   `yaml:"sink"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// FetchConfig controls the annotation endpoint HTTP client.
type FetchConfig struct {
	// Timeout of a single GET. Zero leaves the transport default (no timeout).
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // 0 reads bodies of any size
	// UserAgent is sent only when set; requests carry no extra headers by default.
	UserAgent string `yaml:"user_agent"`
	// SchemaFile, when set, is a JSON Schema every fetched document must satisfy.
	SchemaFile string               `yaml:"schema_file"`
	Breaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit  RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig configures the per-host circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// RateLimitConfig throttles outbound GETs. RequestsPerSecond 0 disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ViewerConfig describes the viewer window the plugin is mounted in.
type ViewerConfig struct {
	WindowID string   `yaml:"window_id"`
	Canvases []string `yaml:"canvases"`
}

// SinkConfig selects where annotation pages are delivered.
type SinkConfig struct {
	Type   string `yaml:"type"`   // stdout | memory | sqlite
	Output string `yaml:"output"` // stdout | stderr | file path, for type stdout
	Path   string `yaml:"path"`   // database file, for type sqlite
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Fetch: FetchConfig{
			Breaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{Burst: 1},
		},
		Viewer: ViewerConfig{
			WindowID: "window-1",
		},
		Sink: SinkConfig{
			Type:   "stdout",
			Output: "stdout",
		},
	}
}

// Load reads a YAML config file over Defaults, applies env var overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides config values from WA_* environment variables.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WA_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("WA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("WA_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("WA_FETCH_USER_AGENT"); v != "" {
		cfg.Fetch.UserAgent = v
	}
	if v := os.Getenv("WA_FETCH_SCHEMA_FILE"); v != "" {
		cfg.Fetch.SchemaFile = v
	}
	if v := os.Getenv("WA_FETCH_CIRCUIT_BREAKER_ENABLED"); v == "true" {
		cfg.Fetch.Breaker.Enabled = true
	}
	if v := os.Getenv("WA_FETCH_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Fetch.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("WA_VIEWER_WINDOW_ID"); v != "" {
		cfg.Viewer.WindowID = v
	}
	if v := os.Getenv("WA_VIEWER_CANVASES"); v != "" {
		cfg.Viewer.Canvases = splitList(v)
	}
	if v := os.Getenv("WA_SINK_TYPE"); v != "" {
		cfg.Sink.Type = v
	}
	if v := os.Getenv("WA_SINK_PATH"); v != "" {
		cfg.Sink.Path = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
