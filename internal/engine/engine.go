// Package engine selects and builds the layers that visualize a catalog
// entity. Strategies are tried in a fixed priority order until one yields a
// layer; raster layers fall back to tile layers when they fail to render.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/builder"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/logger"
	"github.com/rkm/stac-layer/internal/metrics"
	"github.com/rkm/stac-layer/internal/stac"
)

// ImageBuilder builds verified image overlays. A nil result means the image
// could not be loaded.
type ImageBuilder interface {
	BuildImageOverlay(ctx context.Context, url string, b bounds.LatLngBounds, crossOrigin string) *layer.ImageOverlay
}

// TileBuilder builds tile layers, probing the template when bounds are
// known.
type TileBuilder interface {
	BuildTileLayer(ctx context.Context, template string, b *bounds.LatLngBounds, opts builder.TileOptions) (*layer.TileLayer, error)
}

// RasterBuilder opens GeoTIFF assets as raster layers.
type RasterBuilder interface {
	BuildRasterLayer(ctx context.Context, asset *stac.Asset, opts builder.RasterOptions) (*layer.RasterLayer, error)
}

// Builders groups the layer builders. All of them are required.
type Builders struct {
	Image  ImageBuilder
	Tile   TileBuilder
	Raster RasterBuilder
}

// Engine visualizes catalog entities.
type Engine struct {
	builders Builders
	logger   *slog.Logger
	metrics  *metrics.Engine
	timeout  time.Duration
}

// New creates an engine. metrics may be nil.
func New(b Builders, logger *slog.Logger, m *metrics.Engine) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		builders: b,
		logger:   logger,
		metrics:  m,
		timeout:  builder.DefaultTimeout,
	}
}

// WithAttemptTimeout sets how long a raster attempt or an added image waits
// for its load or error signal.
func (e *Engine) WithAttemptTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Visualize classifies input and builds its composite layer. input is raw
// JSON ([]byte, json.RawMessage or string), a stac.Entity, or any value that
// marshals to STAC JSON.
//
// Only input errors are returned: FormatNotSupported for unrecognized input
// and LocationMissing for a bare image asset without bounds. Every other
// failure is absorbed and leaves the composite with less content. Visualize
// returns once every strategy has settled; the loaded event is queued by
// then and the composite is sealed.
func (e *Engine) Visualize(ctx context.Context, input any, opts Options) (*layer.Composite, error) {
	start := time.Now()
	opts.normalize()
	log := logger.ForDebugLevel(e.logger, opts.DebugLevel)
	log.InfoContext(ctx, "starting")

	entity, err := classify(input, &opts)
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "classified input",
		slog.String("kind", string(entity.Kind())),
		slog.String("id", entity.ID()),
		slog.String("url", entity.AbsoluteURL()))

	if entity.Kind() == stac.KindCatalog {
		log.InfoContext(ctx, "catalogs don't have spatial information, you may see an empty map")
	}
	if opts.BBox != nil {
		if err := bounds.Validate(opts.BBox); err != nil {
			log.InfoContext(ctx, "the provided bbox is invalid", slog.String("error", err.Error()))
		}
	}

	r := &run{
		engine:   e,
		ctx:      ctx,
		opts:     opts,
		log:      log,
		comp:     layer.NewComposite(entity, log),
		entity:   entity,
		channels: opts.channels(log),
	}

	switch ent := entity.(type) {
	case *stac.ItemCollection:
		r.visualizeCollection(ent)
	case *stac.Asset:
		if err := r.visualizeAsset(ent); err != nil {
			r.comp.Release()
			return nil, err
		}
	default:
		r.visualizeEntity(ent, opts.resolveAssets(ent, log))
	}

	r.wait()
	r.addFootprint()
	r.comp.NotifyLoaded()
	r.comp.Seal()

	e.metrics.ObserveVisualize(string(entity.Kind()), time.Since(start))
	log.InfoContext(ctx, "visualization settled",
		slog.Int("layers", r.comp.Len()),
		slog.Int("attempts", r.attemptCount()),
		slog.Duration("elapsed", time.Since(start)))
	return r.comp, nil
}

// classify turns the input into an entity. An array of asset objects is
// visualized as forced assets over an empty catalog.
func classify(input any, opts *Options) (stac.Entity, error) {
	var data []byte
	switch v := input.(type) {
	case nil:
		return nil, stac.ErrNoData
	case stac.Entity:
		return v, nil
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input: %w", err)
		}
		data = b
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		cat := stac.NewEmptyCatalog(opts.BaseURL)
		assets, err := stac.ParseAssets(data, cat)
		if err != nil {
			return nil, err
		}
		for _, a := range assets {
			opts.Assets = append(opts.Assets, AssetRef{Asset: a})
		}
		return cat, nil
	}
	return stac.Parse(data, opts.BaseURL)
}

// run holds the state of one Visualize call.
type run struct {
	engine   *Engine
	ctx      context.Context
	opts     Options
	log      *slog.Logger
	comp     *layer.Composite
	entity   stac.Entity
	channels []int
	forced   []*stac.Asset

	wg sync.WaitGroup

	mu           sync.Mutex
	attempts     []Attempt
	triedAssets  map[*stac.Asset]bool
	rasterBounds *bounds.LatLngBounds
}

// spawn runs fn as a task joined by wait. Panics are logged.
func (r *run) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("visualization task failed", slog.String("error", fmt.Sprint(p)))
			}
		}()
		fn()
	}()
}

func (r *run) wait() { r.wg.Wait() }

// add appends l to the composite. A sealed composite releases l instead.
func (r *run) add(l layer.Layer, data any) bool {
	if err := r.comp.Add(l, data); err != nil {
		r.log.Debug("discarding late layer", slog.String("error", err.Error()))
		l.Release()
		return false
	}
	r.engine.metrics.IncLayer(string(l.Kind()))
	return true
}

// replace swaps prev for next; prev may be nil or already removed.
func (r *run) replace(prev, next layer.Layer, data any) {
	r.comp.Replace(prev, next, data)
	r.engine.metrics.IncLayer(string(next.Kind()))
}

func (r *run) noteRasterBounds(b *bounds.LatLngBounds) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rasterBounds == nil {
		cp := *b
		r.rasterBounds = &cp
	}
}

func (r *run) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

func (r *run) record(a Attempt) {
	outcome := metrics.OutcomeFailure
	switch {
	case a.Succeeded:
		outcome = metrics.OutcomeSuccess
	case len(a.Assets) == 0:
		outcome = metrics.OutcomeSkipped
	}
	r.engine.metrics.ObserveAttempt(a.Strategy, outcome)

	attrs := []any{slog.String("strategy", a.Strategy), slog.String("outcome", outcome)}
	for _, asset := range a.Assets {
		attrs = append(attrs, slog.String("asset", asset.Href))
	}
	if a.Err != nil {
		attrs = append(attrs, slog.String("error", a.Err.Error()))
	}
	r.log.Debug("strategy attempt", attrs...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}
