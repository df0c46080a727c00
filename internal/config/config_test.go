package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Test defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}

	if cfg.Builder.Timeout != 5*time.Second {
		t.Errorf("expected default builder timeout 5s, got %s", cfg.Builder.Timeout)
	}

	if !cfg.Tiler.UseAsFallback {
		t.Error("expected tile layers to be a fallback by default")
	}

	if cfg.Fetch.CacheSize != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.Fetch.CacheSize)
	}

	if !slices.Equal(cfg.Server.CORSOrigins, []string{"*"}) {
		t.Errorf("expected default CORS origins [*], got %v", cfg.Server.CORSOrigins)
	}

	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected metrics on /metrics, got %+v", cfg.Metrics)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_READ_TIMEOUT", "60s")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("BUILDER_TIMEOUT", "2s")
	t.Setenv("TILER_TITILER_URL", "https://titiler.example.com")
	t.Setenv("TILER_USE_AS_FALLBACK", "false")
	t.Setenv("FETCH_CACHE_TTL", "1m")
	t.Setenv("PRESETS_DIR", "/etc/stac-layer/presets")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %s", cfg.Server.ReadTimeout)
	}

	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.Server.CORSOrigins)
	}

	if cfg.Builder.Timeout != 2*time.Second {
		t.Errorf("expected builder timeout 2s, got %s", cfg.Builder.Timeout)
	}

	if cfg.Tiler.TiTilerURL != "https://titiler.example.com" || cfg.Tiler.UseAsFallback {
		t.Errorf("unexpected tiler config %+v", cfg.Tiler)
	}

	if cfg.Fetch.CacheTTL != time.Minute {
		t.Errorf("expected cache ttl 1m, got %s", cfg.Fetch.CacheTTL)
	}

	if cfg.Presets.Dir != "/etc/stac-layer/presets" {
		t.Errorf("expected presets dir, got %q", cfg.Presets.Dir)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}

	if cfg.Logging.Format != "console" {
		t.Errorf("expected log format console, got %s", cfg.Logging.Format)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unknown log format")
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Builder: BuilderConfig{
			Timeout:       5 * time.Second,
			MaxImageBytes: 1 << 20,
		},
		Fetch: FetchConfig{
			Timeout:   10 * time.Second,
			CacheSize: 16,
			CacheTTL:  time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			modify:    func(*Config) {},
			wantError: false,
		},
		{
			name: "valid tiler settings",
			modify: func(c *Config) {
				c.Tiler.URLTemplate = "https://tiles.example.com/{z}/{x}/{y}.png?url={url}"
				c.Tiler.TiTilerURL = "http://localhost:8000"
			},
			wantError: false,
		},
		{
			name:      "invalid port",
			modify:    func(c *Config) { c.Server.Port = 0 },
			wantError: true,
		},
		{
			name:      "port too large",
			modify:    func(c *Config) { c.Server.Port = 70000 },
			wantError: true,
		},
		{
			name:      "invalid read timeout",
			modify:    func(c *Config) { c.Server.ReadTimeout = 0 },
			wantError: true,
		},
		{
			name:      "invalid shutdown timeout",
			modify:    func(c *Config) { c.Server.ShutdownTimeout = -time.Second },
			wantError: true,
		},
		{
			name:      "invalid builder timeout",
			modify:    func(c *Config) { c.Builder.Timeout = 0 },
			wantError: true,
		},
		{
			name:      "invalid max image bytes",
			modify:    func(c *Config) { c.Builder.MaxImageBytes = 0 },
			wantError: true,
		},
		{
			name:      "tile template without placeholders",
			modify:    func(c *Config) { c.Tiler.URLTemplate = "https://tiles.example.com/static.png" },
			wantError: true,
		},
		{
			name:      "titiler url without scheme",
			modify:    func(c *Config) { c.Tiler.TiTilerURL = "titiler.example.com" },
			wantError: true,
		},
		{
			name:      "invalid fetch timeout",
			modify:    func(c *Config) { c.Fetch.Timeout = 0 },
			wantError: true,
		},
		{
			name:      "invalid cache ttl",
			modify:    func(c *Config) { c.Fetch.CacheTTL = 0 },
			wantError: true,
		},
		{
			name:      "relative metrics path",
			modify:    func(c *Config) { c.Metrics.Path = "metrics" },
			wantError: true,
		},
		{
			name: "metrics path ignored when disabled",
			modify: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.Path = ""
			},
			wantError: false,
		},
		{
			name:      "invalid log level",
			modify:    func(c *Config) { c.Logging.Level = "trace" },
			wantError: true,
		},
		{
			name:      "invalid log format",
			modify:    func(c *Config) { c.Logging.Format = "xml" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestServerConfigAddress(t *testing.T) {
	cfg := ServerConfig{
		Host: "localhost",
		Port: 3000,
	}

	addr := cfg.Address()
	expected := "localhost:3000"
	if addr != expected {
		t.Errorf("Address() = %s, expected %s", addr, expected)
	}
}

func writePreset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write preset: %v", err)
	}
}

func TestLoadPresets(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "sentinel-2.json", `{
		"id": "sentinel-2-true-color",
		"title": "Sentinel-2 true color",
		"options": {"bands": [3, 2, 1], "displayPreview": true}
	}`)
	writePreset(t, dir, "landsat.JSON", `{"id": "landsat", "options": {"resolution": 64}}`)
	writePreset(t, dir, "README.md", "not a preset")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	registry, err := LoadPresets(dir)
	if err != nil {
		t.Fatalf("LoadPresets() failed: %v", err)
	}

	if registry.Count() != 2 {
		t.Errorf("expected 2 presets, got %d", registry.Count())
	}
	if ids := registry.IDs(); !slices.Equal(ids, []string{"landsat", "sentinel-2-true-color"}) {
		t.Errorf("unexpected IDs %v", ids)
	}
	p := registry.Get("sentinel-2-true-color")
	if p == nil || p.Title != "Sentinel-2 true color" {
		t.Fatalf("unexpected preset %+v", p)
	}
	if registry.Get("missing") != nil {
		t.Error("expected nil for an unknown preset")
	}
}

func TestLoadPresetsEmptyDir(t *testing.T) {
	registry, err := LoadPresets("")
	if err != nil {
		t.Fatalf("LoadPresets() failed: %v", err)
	}
	if registry.Count() != 0 {
		t.Errorf("expected an empty registry, got %d presets", registry.Count())
	}
}

func TestLoadPresetsErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "missing id", files: map[string]string{"a.json": `{"options": {}}`}},
		{name: "options not an object", files: map[string]string{"a.json": `{"id": "a", "options": [1]}`}},
		{name: "missing options", files: map[string]string{"a.json": `{"id": "a"}`}},
		{name: "invalid json", files: map[string]string{"a.json": `{"id":`}},
		{
			name: "duplicate id",
			files: map[string]string{
				"a.json": `{"id": "same", "options": {}}`,
				"b.json": `{"id": "same", "options": {}}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writePreset(t, dir, name, content)
			}
			if _, err := LoadPresets(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadPresets(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
