package engine

import (
	"errors"
	"log/slog"

	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/stac"
)

// errNoCandidate marks a strategy that found nothing to try.
var errNoCandidate = errors.New("no candidate asset")

// Attempt records the outcome of one strategy.
type Attempt struct {
	Strategy  string
	Assets    []*stac.Asset
	Succeeded bool
	Layer     layer.Layer
	Err       error
}

// Strategy names.
const (
	StrategyAssets      = "assets"
	StrategyOverview    = "overview"
	StrategyThumbnail   = "thumbnail"
	StrategyPreview     = "preview"
	StrategyVisual      = "visual"
	StrategyFirstRaster = "raster"
	StrategyChildren    = "children"
)

// strategy is one entry of the selection order.
type strategy struct {
	name    string
	enabled func(r *run) bool
	// exclusive strategies end the search whatever their outcome.
	exclusive bool
	run       func(r *run, e stac.Entity) Attempt
}

// strategies is the selection order for items and collections. The first
// attempt producing a layer ends the search.
var strategies = []strategy{
	{
		name:      StrategyAssets,
		enabled:   func(r *run) bool { return len(r.forced) > 0 },
		exclusive: true,
		run:       (*run).forcedAssets,
	},
	{
		name:    StrategyOverview,
		enabled: func(r *run) bool { return r.opts.DisplayOverview },
		run:     (*run).overview,
	},
	{
		name:    StrategyThumbnail,
		enabled: func(r *run) bool { return r.opts.DisplayPreview },
		run:     (*run).thumbnail,
	},
	{
		name:    StrategyPreview,
		enabled: func(r *run) bool { return r.opts.DisplayPreview },
		run:     (*run).previewLinks,
	},
	{
		name:    StrategyVisual,
		enabled: func(r *run) bool { return r.opts.DisplayOverview },
		run:     (*run).visual,
	},
	{
		name:    StrategyFirstRaster,
		enabled: func(r *run) bool { return r.opts.DisplayOverview },
		run:     (*run).firstRaster,
	},
}

// visualizeEntity runs the selection for items, collections and catalogs
// as one task.
func (r *run) visualizeEntity(e stac.Entity, forced []*stac.Asset) {
	r.forced = forced
	r.spawn(func() { r.selectLayers(e) })
}

// selectLayers drives the strategy table.
func (r *run) selectLayers(e stac.Entity) {
	for _, s := range strategies {
		if !s.enabled(r) {
			continue
		}
		a := s.run(r, e)
		a.Strategy = s.name
		if a.Err == nil && !a.Succeeded && len(a.Assets) == 0 {
			a.Err = errNoCandidate
		}
		r.record(a)
		if a.Succeeded || s.exclusive {
			return
		}
	}
	r.log.Info("no imagery could be added", slog.String("id", e.ID()))
}

// forcedAssets visualizes every forced asset concurrently. It succeeds when
// any of them produced a layer.
func (r *run) forcedAssets(stac.Entity) Attempt {
	results := make(chan layer.Layer, len(r.forced))
	for _, asset := range r.forced {
		r.spawn(func() { results <- r.addAsset(asset) })
	}

	a := Attempt{Assets: r.forced}
	for range r.forced {
		if l := <-results; l != nil && a.Layer == nil {
			a.Layer, a.Succeeded = l, true
		}
	}
	return a
}

// addAsset shows a forced or bare asset: GeoTIFFs as rasters, everything
// else as an image.
func (r *run) addAsset(asset *stac.Asset) layer.Layer {
	r.log.Debug("add asset", slog.String("key", asset.Key), slog.String("href", asset.Href))
	if asset.IsRaster() {
		return r.addGeoTIFF(asset)
	}
	return r.addImages([]*stac.Asset{asset}, layer.ImageTypePreview)
}

func (r *run) overview(e stac.Entity) Attempt {
	asset := stac.FindAssetByRole(e.Assets(), "overview")
	if asset == nil {
		return Attempt{}
	}
	a := Attempt{Assets: []*stac.Asset{asset}}
	switch {
	case asset.IsBrowserImage():
		a.Layer = r.addImages(a.Assets, layer.ImageTypeOverview)
	case asset.MatchesRaster(r.opts.DisplayGeoTiffByDefault):
		r.tried(asset)
		a.Layer = r.addGeoTIFF(asset)
	default:
		a.Err = errors.New("overview is neither an image nor an accepted GeoTIFF")
	}
	a.Succeeded = a.Layer != nil
	return a
}

func (r *run) thumbnail(e stac.Entity) Attempt {
	a := Attempt{Assets: thumbnails(e)}
	if len(a.Assets) > 0 {
		a.Layer = r.addImages(a.Assets, layer.ImageTypePreview)
		a.Succeeded = a.Layer != nil
	}
	return a
}

func (r *run) previewLinks(e stac.Entity) Attempt {
	a := Attempt{Assets: stac.PreviewLinks(e)}
	if len(a.Assets) > 0 {
		a.Layer = r.addImages(a.Assets, layer.ImageTypePreview)
		a.Succeeded = a.Layer != nil
	}
	return a
}

func (r *run) visual(e stac.Entity) Attempt {
	asset := stac.FindAssetByRole(e.Assets(), "visual")
	if asset == nil || !asset.MatchesRaster(r.opts.DisplayGeoTiffByDefault) || r.wasTried(asset) {
		return Attempt{}
	}
	r.tried(asset)
	a := Attempt{Assets: []*stac.Asset{asset}}
	a.Layer = r.addGeoTIFF(asset)
	a.Succeeded = a.Layer != nil
	return a
}

func (r *run) firstRaster(e stac.Entity) Attempt {
	asset := stac.FirstRaster(e.Assets(), r.opts.DisplayGeoTiffByDefault)
	if asset == nil || r.wasTried(asset) {
		return Attempt{}
	}
	r.tried(asset)
	a := Attempt{Assets: []*stac.Asset{asset}}
	a.Layer = r.addGeoTIFF(asset)
	a.Succeeded = a.Layer != nil
	return a
}

// thumbnails returns the browser-displayable thumbnail assets of e in
// declaration order.
func thumbnails(e stac.Entity) []*stac.Asset {
	var out []*stac.Asset
	for _, a := range e.Assets() {
		if !a.IsBrowserImage() {
			continue
		}
		if stac.FindAssetByRole([]*stac.Asset{a}, "thumbnail") != nil {
			out = append(out, a)
		}
	}
	return out
}

// tried remembers a raster asset so later strategies skip it.
func (r *run) tried(a *stac.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.triedAssets == nil {
		r.triedAssets = make(map[*stac.Asset]bool)
	}
	r.triedAssets[a] = true
}

func (r *run) wasTried(a *stac.Asset) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triedAssets[a]
}
