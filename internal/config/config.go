// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and NOCAPTCHA_ environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store backends understood by the collector.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Predictive model variants understood by the feature extractor.
const (
	PredictiveLiteral  = "literal"
	PredictiveForecast = "forecast"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// EndpointURL is where the transport posts payloads.
	EndpointURL string `koanf:"endpoint_url"`

	// IPLookupURL returns {"ip": "..."} for the caller.
	IPLookupURL string `koanf:"ip_lookup_url"`

	// GeoLookupURL is a template with one %s for the ip address.
	GeoLookupURL string `koanf:"geo_lookup_url"`

	// LookupTimeoutMS bounds each external lookup.
	LookupTimeoutMS int `koanf:"lookup_timeout_ms"`

	// SubmitTimeoutMS bounds one payload submission.
	SubmitTimeoutMS int `koanf:"submit_timeout_ms"`

	// BufferCapacity bounds each capture buffer; 0 keeps every sample.
	BufferCapacity int `koanf:"buffer_capacity"`

	// PredictiveModel is literal or forecast.
	PredictiveModel string `koanf:"predictive_model"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the session id deduplication window.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the repository backend: memory, postgres or redis.
	Store string `koanf:"store"`

	// PostgresDSN is the lib/pq connection string for the postgres store.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr is host:port of the redis store.
	RedisAddr string `koanf:"redis_addr"`

	// MetricsEnabled turns prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS is how often sampled gauges are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`

	// AllowedOrigins lists CORS origins, comma separated in env.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":8000",
		EndpointURL:      "http://localhost:8000/submit-data/",
		IPLookupURL:      "https://api.ipify.org?format=json",
		GeoLookupURL:     "https://ipapi.co/%s/json/",
		LookupTimeoutMS:  3000,
		SubmitTimeoutMS:  5000,
		BufferCapacity:   0,
		PredictiveModel:  PredictiveLiteral,
		QueueSize:        10_000,
		WorkerCount:      runtime.NumCPU(),
		DedupeSize:       100_000,
		Store:            StoreMemory,
		RedisAddr:        "localhost:6379",
		MetricsEnabled:   true,
		MetricsRefreshMS: 10_000,
		AllowedOrigins:   []string{"http://localhost:5173"},
	}
}

// LookupTimeout returns LookupTimeoutMS as a duration.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMS) * time.Millisecond
}

// SubmitTimeout returns SubmitTimeoutMS as a duration.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.BufferCapacity < 0:
		return fmt.Errorf("%w: buffer_capacity must not be negative", ErrInvalidConfig)
	case c.LookupTimeoutMS <= 0 || c.SubmitTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	}

	switch c.PredictiveModel {
	case PredictiveLiteral, PredictiveForecast:
	default:
		return fmt.Errorf("%w: predictive_model %q", ErrInvalidConfig, c.PredictiveModel)
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for postgres store", ErrInvalidConfig)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr required for redis store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: store %q", ErrInvalidConfig, c.Store)
	}

	if !strings.Contains(c.GeoLookupURL, "%s") {
		return fmt.Errorf("%w: geo_lookup_url must contain %%s", ErrInvalidConfig)
	}
	return nil
}
