// Package server provides a public API for embedding the stac-layer service.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rkm/stac-layer/internal/api"
	"github.com/rkm/stac-layer/internal/builder"
	"github.com/rkm/stac-layer/internal/config"
	"github.com/rkm/stac-layer/internal/engine"
	"github.com/rkm/stac-layer/internal/fetch"
	"github.com/rkm/stac-layer/internal/metrics"
	"github.com/rkm/stac-layer/internal/raster"
)

// Options configures the embedded server.
type Options struct {
	// BuilderTimeout bounds image loads, tile checks and raster opens.
	// Default: 5s
	BuilderTimeout time.Duration

	// UserAgent is sent with every outgoing request.
	// Default: "stac-layer/1.0"
	UserAgent string

	// MaxImageBytes caps downloaded preview images.
	// Default: 32MiB
	MaxImageBytes int64

	// TileURLTemplate is the default tile server template, e.g.
	// "https://tiles.example.com/{z}/{x}/{y}.png?url={url}".
	TileURLTemplate string

	// TiTilerURL is the default TiTiler endpoint.
	TiTilerURL string

	// PreferTileLayer renders tiles up front instead of only after a raster
	// failure.
	PreferTileLayer bool

	// FetchTimeout bounds remote STAC document downloads.
	// Default: 10s
	FetchTimeout time.Duration

	// CacheSize is the number of fetched documents kept. Negative disables
	// the cache.
	// Default: 256
	CacheSize int

	// CacheTTL is how long a fetched document stays cached.
	// Default: 5m
	CacheTTL time.Duration

	// PresetsDir is the path to visualization preset JSON files.
	// Default: "" (no presets)
	PresetsDir string

	// CORSOrigins lists the allowed browser origins.
	// Default: ["*"]
	CORSOrigins []string

	// Metrics enables the Prometheus endpoint on MetricsPath.
	Metrics     bool
	MetricsPath string
	Build       metrics.BuildInfo

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// FromConfig maps the environment configuration to server options.
func FromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		BuilderTimeout:  cfg.Builder.Timeout,
		UserAgent:       cfg.Builder.UserAgent,
		MaxImageBytes:   cfg.Builder.MaxImageBytes,
		TileURLTemplate: cfg.Tiler.URLTemplate,
		TiTilerURL:      cfg.Tiler.TiTilerURL,
		PreferTileLayer: !cfg.Tiler.UseAsFallback,
		FetchTimeout:    cfg.Fetch.Timeout,
		CacheSize:       cfg.Fetch.CacheSize,
		CacheTTL:        cfg.Fetch.CacheTTL,
		PresetsDir:      cfg.Presets.Dir,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Metrics:         cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
		Logger:          logger,
	}
}

// Server is a stac-layer service that can be embedded in another application.
type Server struct {
	router  chi.Router
	engine  *engine.Engine
	fetcher *fetch.Client
	presets *config.PresetRegistry
}

// New wires the builders, the engine, the document fetcher and the HTTP
// router.
func New(opts Options) (*Server, error) {
	if opts.BuilderTimeout == 0 {
		opts.BuilderTimeout = builder.DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = builder.DefaultUserAgent
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	presets, err := config.LoadPresets(opts.PresetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}

	var (
		provider *metrics.Provider
		m        *metrics.Engine
	)
	if opts.Metrics {
		provider = metrics.Init(metrics.Config{Enabled: true, Path: opts.MetricsPath, Build: opts.Build})
		m = metrics.NewEngine(provider)
	}

	bcfg := builder.Config{
		Timeout:       opts.BuilderTimeout,
		UserAgent:     opts.UserAgent,
		MaxImageBytes: opts.MaxImageBytes,
	}
	client := builder.NewHTTPClient(opts.BuilderTimeout)
	eng := engine.New(engine.Builders{
		Image:  builder.NewImageBuilder(client, bcfg, opts.Logger),
		Tile:   builder.NewTileBuilder(client, bcfg, opts.Logger),
		Raster: builder.NewRasterBuilder(raster.NewHTTPOpener(client, opts.UserAgent, opts.Logger), bcfg, opts.Logger),
	}, opts.Logger, m).WithAttemptTimeout(opts.BuilderTimeout)

	fetcher := fetch.NewClient(fetch.Config{
		Timeout:   opts.FetchTimeout,
		CacheSize: opts.CacheSize,
		CacheTTL:  opts.CacheTTL,
		UserAgent: opts.UserAgent,
	}).WithLogger(opts.Logger).WithMetrics(m)

	handlers := api.NewHandlers(eng, fetcher, presets, config.TilerConfig{
		URLTemplate:   opts.TileURLTemplate,
		TiTilerURL:    opts.TiTilerURL,
		UseAsFallback: !opts.PreferTileLayer,
	}, opts.Logger)

	rcfg := api.RouterConfig{
		Logger:      opts.Logger,
		Metrics:     m,
		CORSOrigins: opts.CORSOrigins,
	}
	if provider != nil {
		rcfg.MetricsHandler = provider.Handler()
		rcfg.MetricsPath = opts.MetricsPath
	}

	opts.Logger.Info("stac-layer server ready",
		"presets", presets.Count(),
		"tile_template", opts.TileURLTemplate != "",
		"titiler", opts.TiTilerURL != "",
		"metrics", opts.Metrics,
	)

	return &Server{
		router:  api.NewRouter(handlers, rcfg),
		engine:  eng,
		fetcher: fetcher,
		presets: presets,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine returns the visualization engine for in-process use.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Close drops the cached documents.
func (s *Server) Close() {
	if s.fetcher != nil {
		s.fetcher.Purge()
	}
}
