package engine

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/builder"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/stac"
)

// addGeoTIFF shows a GeoTIFF asset. With a preferred tile layer only the tile
// layer is tried. Otherwise the raster layer is added and its first error
// replaces it by a tile layer. The returned layer is the one in place when
// the attempt settles, or nil.
func (r *run) addGeoTIFF(asset *stac.Asset) layer.Layer {
	if r.opts.preferTileLayer() {
		tl := r.buildTileLayer(r.ctx, asset)
		if tl == nil || !r.add(tl, asset) {
			return nil
		}
		r.notifyTileLayer(tl, asset)
		return tl
	}

	r.log.Debug("add geotiff", slog.String("href", asset.Href))
	rl, err := r.engine.builders.Raster.BuildRasterLayer(r.ctx, asset, builder.RasterOptions{
		Resolution: r.opts.Resolution,
		Channels:   r.channels,
		Bounds:     bounds.Resolve(asset, r.opts.boundsOptions()),
	})
	if err != nil {
		return r.fallback(context.WithoutCancel(r.ctx), asset, nil, err)
	}
	r.log.Info("successfully created raster layer", slog.String("href", asset.Href))
	r.noteRasterBounds(rl.Bounds())

	if !r.add(rl, asset) {
		return nil
	}
	r.comp.NotifyImageLayerAdded(layer.ImageLayerAddedEvent{
		Type:  layer.ImageTypeOverview,
		Layer: rl,
		Asset: asset,
	})

	loaded := make(chan struct{})
	fellBack := make(chan layer.Layer, 1)
	var (
		mu       sync.Mutex
		settled  bool
		fallback bool
	)

	// Renderers may report several errors before the layer is gone; only
	// the first one starts the fallback. While the attempt is pending the
	// fallback is a task of the run, so wait joins it.
	var loadOnce, errOnce sync.Once
	rl.OnError(func(err error) {
		errOnce.Do(func() {
			task := func() {
				fellBack <- r.fallback(context.WithoutCancel(r.ctx), asset, rl, err)
			}
			mu.Lock()
			defer mu.Unlock()
			r.comp.Remove(rl)
			if settled {
				go task()
				return
			}
			fallback = true
			r.spawn(task)
		})
	})
	rl.OnLoad(func() { loadOnce.Do(func() { close(loaded) }) })

	timer := time.NewTimer(r.engine.timeout)
	defer timer.Stop()
	select {
	case l := <-fellBack:
		return l
	case <-loaded:
	case <-timer.C:
	}

	mu.Lock()
	settled = true
	pending := fallback
	mu.Unlock()

	if r.comp.Has(rl) {
		return rl
	}
	if pending {
		return <-fellBack
	}
	return nil
}

// fallback replaces a failed raster attempt by a tile layer. prev is the
// detached raster layer, or nil when it was never built.
func (r *run) fallback(ctx context.Context, asset *stac.Asset, prev layer.Layer, cause error) layer.Layer {
	if !r.opts.useTileLayer() {
		r.log.Info("raster layer failed without a tile fallback",
			slog.String("href", asset.Href),
			slog.String("error", cause.Error()))
		return nil
	}
	r.engine.metrics.IncFallback()
	r.comp.NotifyFallback(layer.FallbackEvent{Asset: asset, Error: cause})

	tl := r.buildTileLayer(ctx, asset)
	if tl == nil {
		return nil
	}
	// Replacement also works once the composite is sealed.
	r.replace(prev, tl, asset)
	r.notifyTileLayer(tl, asset)
	return tl
}

// buildTileLayer builds the tile layer of asset, or returns nil.
func (r *run) buildTileLayer(ctx context.Context, asset *stac.Asset) *layer.TileLayer {
	r.log.Debug("add tile layer", slog.String("href", asset.Href))

	b := bounds.Resolve(asset, r.opts.boundsOptions())
	var (
		tpl    string
		params map[string]string
	)
	if fn := r.opts.BuildTileURLTemplate; fn != nil {
		tpl = fn(builder.TileContext{
			Href:   asset.Href,
			Key:    asset.Key,
			Asset:  asset,
			Entity: asset.Context(),
			Bounds: b,
			IsCOG:  asset.IsCOG(),
			Bands:  r.opts.Bands,
		})
		r.log.Debug("built tile url template", slog.String("template", tpl))
		params = map[string]string{"url": asset.Href}
	} else {
		tpl = r.opts.TileURLTemplate
		params = map[string]string{"url": url.QueryEscape(asset.Href)}
	}

	tl, err := r.engine.builders.Tile.BuildTileLayer(ctx, tpl, b, builder.TileOptions{Params: params})
	if err != nil {
		r.log.Info("failed to add tile layer",
			slog.String("href", asset.Href),
			slog.String("error", err.Error()))
		return nil
	}
	return tl
}

func (r *run) notifyTileLayer(tl *layer.TileLayer, asset *stac.Asset) {
	r.comp.NotifyImageLayerAdded(layer.ImageLayerAddedEvent{
		Type:  layer.ImageTypeTileLayer,
		Layer: tl,
		Asset: asset,
	})
}
