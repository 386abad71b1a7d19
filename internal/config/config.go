// Package config loads, interpolates, and validates the engine
// configuration from YAML files with environment variable interpolation
// (${VAR} syntax) and sensible defaults.
package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/fanout"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/llm"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/orchestrator"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/pool"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/store"
)

// Config is the root engine configuration.
type Config struct {
	Engine  orchestrator.Config `yaml:"engine" mapstructure:"engine"`
	Pool    pool.Config         `yaml:"pool" mapstructure:"pool"`
	Sources SourcesConfig       `yaml:"sources" mapstructure:"sources"`
	Store   StoreConfig         `yaml:"store" mapstructure:"store"`
	LLM     llm.ProviderConfig  `yaml:"llm" mapstructure:"llm"`
	Logging LoggingConfig       `yaml:"logging" mapstructure:"logging"`

	// CatalogPath overrides the embedded capability catalog.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// SourcesConfig configures the data fan-out layer.
type SourcesConfig struct {
	// Endpoints lists the primary data sources.
	Endpoints []SourceConfig `yaml:"endpoints" mapstructure:"endpoints" validate:"omitempty,dive"`

	// Fallback is the aggregator source tried when all primaries fail.
	Fallback *SourceConfig `yaml:"fallback,omitempty" mapstructure:"fallback"`

	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// SourceConfig configures one government data source adapter.
type SourceConfig struct {
	Name    string        `yaml:"name" mapstructure:"name" validate:"required"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// BreakerConfig mirrors the circuit breaker knobs in config form.
type BreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	Cooldown            time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests" mapstructure:"half_open_max_requests"`
}

// ToCircuitBreaker converts to the fan-out layer's config, applying defaults
// for unset fields.
func (b BreakerConfig) ToCircuitBreaker() fanout.CircuitBreakerConfig {
	cfg := fanout.DefaultCircuitBreakerConfig()
	if b.FailureThreshold > 0 {
		cfg.FailureThreshold = b.FailureThreshold
	}
	if b.Cooldown > 0 {
		cfg.Cooldown = b.Cooldown
	}
	if b.HalfOpenMaxRequests > 0 {
		cfg.HalfOpenMaxRequests = b.HalfOpenMaxRequests
	}
	return cfg
}

// StoreConfig configures event persistence.
type StoreConfig struct {
	// Enabled turns the SQLite sink on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite database file.
	Path string `yaml:"path" mapstructure:"path"`
}

// ToStore converts to the store layer's config.
func (s StoreConfig) ToStore() store.Config {
	return store.DefaultConfig(s.Path)
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// NewLogger builds a slog logger per the logging configuration.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine: orchestrator.DefaultConfig(),
		Pool:   pool.DefaultConfig(),
		Sources: SourcesConfig{
			Breaker: BreakerConfig{
				FailureThreshold:    5,
				Cooldown:            30 * time.Second,
				HalfOpenMaxRequests: 1,
			},
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    "sindica.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
