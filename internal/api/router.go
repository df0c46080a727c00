package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rkm/stac-layer/internal/metrics"
)

// RouterConfig holds the router dependencies besides the handlers.
type RouterConfig struct {
	Logger *slog.Logger
	// Metrics records request counts and latencies. May be nil.
	Metrics *metrics.Engine
	// MetricsHandler is mounted on MetricsPath when both are set.
	MetricsHandler http.Handler
	MetricsPath    string
	CORSOrigins    []string
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(middleware.RealIP)
	r.Use(Observe(logger, cfg.Metrics))
	r.Use(Recovery(logger))
	r.Use(middleware.Compress(5))
	r.Use(ContentTypeJSON)

	// Map clients call the service from the browser.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "If-None-Match"},
		ExposedHeaders:   []string{"ETag", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/presets", h.Presets)

	r.Route("/visualize", func(r chi.Router) {
		r.Get("/", h.VisualizeURL)
		r.Post("/", h.Visualize)
		r.Post("/click", h.Click)
	})

	if cfg.MetricsHandler != nil && cfg.MetricsPath != "" {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.MetricsHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}
