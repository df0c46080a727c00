// Package config provides configuration management for the stac-layer service.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Builder BuilderConfig `envPrefix:"BUILDER_"`
	Tiler   TilerConfig   `envPrefix:"TILER_"`
	Fetch   FetchConfig   `envPrefix:"FETCH_"`
	Presets PresetsConfig `envPrefix:"PRESETS_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// CORSOrigins lists the allowed browser origins.
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// BuilderConfig contains the layer builder settings.
type BuilderConfig struct {
	// Timeout bounds image loads, tile checks and raster opens.
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"5s"`
	UserAgent     string        `env:"USER_AGENT" envDefault:"stac-layer/1.0"`
	MaxImageBytes int64         `env:"MAX_IMAGE_BYTES" envDefault:"33554432"`
}

// TilerConfig holds the tile server defaults applied when a request sets none.
type TilerConfig struct {
	URLTemplate string `env:"URL_TEMPLATE"`
	TiTilerURL  string `env:"TITILER_URL"`
	// UseAsFallback only uses tile layers when raster rendering fails.
	UseAsFallback bool `env:"USE_AS_FALLBACK" envDefault:"true"`
}

// FetchConfig contains the STAC document fetcher settings.
type FetchConfig struct {
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
	CacheSize int           `env:"CACHE_SIZE" envDefault:"256"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	MaxBytes  int64         `env:"MAX_BYTES" envDefault:"16777216"`
}

// PresetsConfig points at a directory of visualization presets.
type PresetsConfig struct {
	Dir string `env:"DIR"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Builder.Timeout <= 0 {
		return fmt.Errorf("builder timeout must be positive, got %s", c.Builder.Timeout)
	}

	if c.Builder.MaxImageBytes <= 0 {
		return fmt.Errorf("builder max image bytes must be positive, got %d", c.Builder.MaxImageBytes)
	}

	if t := c.Tiler.URLTemplate; t != "" && !strings.Contains(t, "{z}") {
		return fmt.Errorf("tile url template %q must contain {z}, {x} and {y}", t)
	}

	if c.Tiler.TiTilerURL != "" {
		u, err := url.Parse(c.Tiler.TiTilerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("titiler url must be an http(s) url, got %q", c.Tiler.TiTilerURL)
		}
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}

	if c.Fetch.CacheTTL <= 0 {
		return fmt.Errorf("fetch cache ttl must be positive, got %s", c.Fetch.CacheTTL)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /, got %q", c.Metrics.Path)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"text":    true,
		"console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text, console", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
