package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of strategy attempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Engine collects visualization metrics. A nil *Engine records nothing.
type Engine struct {
	attempts    *prometheus.CounterVec
	fallbacks   prometheus.Counter
	duration    *prometheus.HistogramVec
	layers      *prometheus.CounterVec
	cache       *prometheus.CounterVec
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// NewEngine creates the engine collectors and registers them with p.
// A nil provider leaves them unregistered.
func NewEngine(p *Provider) *Engine {
	m := &Engine{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stac_layer_strategy_attempts_total",
				Help: "Layer selection strategy attempts by outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stac_layer_fallbacks_total",
				Help: "Raster layers replaced by a tile layer after a rendering error.",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stac_layer_visualize_duration_seconds",
				Help:    "Duration of visualize calls in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"kind"},
		),
		layers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stac_layer_layers_total",
				Help: "Layers added to composites by kind.",
			},
			[]string{"kind"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stac_layer_fetch_cache_results_total",
				Help: "Document cache results by outcome.",
			},
			[]string{"outcome"},
		),
		httpReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"method", "route", "status"},
		),
	}
	if p != nil {
		p.Register(m.attempts, m.fallbacks, m.duration, m.layers, m.cache, m.httpReqs, m.httpLatency)
	}
	return m
}

func (m *Engine) ObserveAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(strategy, outcome).Inc()
}

func (m *Engine) IncFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Engine) ObserveVisualize(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Engine) IncLayer(kind string) {
	if m == nil {
		return
	}
	m.layers.WithLabelValues(kind).Inc()
}

func (m *Engine) IncCacheHit() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("hit").Inc()
}

func (m *Engine) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

func (m *Engine) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	st := strconv.Itoa(status)
	m.httpReqs.WithLabelValues(method, route, st).Inc()
	m.httpLatency.WithLabelValues(method, route, st).Observe(d.Seconds())
}
