package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/raster"
	"github.com/rkm/stac-layer/internal/stac"
)

// ErrUnknownProjection is signalled by raster layers whose coordinate system
// could not be determined; they cannot be rendered.
var ErrUnknownProjection = errors.New("unknown raster projection")

// RasterOptions configures a raster layer.
type RasterOptions struct {
	Resolution int
	// Channels is the expanded band mapping; empty means default rendering.
	Channels []int
	// CalcStats forces the renderer to compute statistics.
	CalcStats bool
	// Bounds is used when the native extent cannot be reprojected.
	Bounds *bounds.LatLngBounds
}

// RasterBuilder opens GeoTIFFs and prepares raster layers.
type RasterBuilder struct {
	opener raster.Opener
	cfg    Config
	logger *slog.Logger
}

// NewRasterBuilder creates a raster builder reading files through opener.
func NewRasterBuilder(opener raster.Opener, cfg Config, logger *slog.Logger) *RasterBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RasterBuilder{opener: opener, cfg: cfg, logger: logger}
}

// BuildRasterLayer opens the asset's GeoTIFF. Open failures and timeouts are
// returned. A layer whose projection stays unknown is returned in the failed
// state so that its error listeners fire.
func (rb *RasterBuilder) BuildRasterLayer(ctx context.Context, asset *stac.Asset, opts RasterOptions) (*layer.RasterLayer, error) {
	r, err := WithTimeout(ctx, rb.cfg.timeout(), func(ctx context.Context) (*raster.Raster, error) {
		return rb.opener.Open(ctx, asset.Href)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", asset.Href, err)
	}

	if r.ProjectionUnknown() {
		if code, ok := raster.RecoverEPSG(r.Citation); ok {
			rb.logger.DebugContext(ctx, "recovered raster projection",
				slog.String("url", asset.Href),
				slog.Int("epsg", code))
			r.Projection = code
		}
	}

	lb := opts.Bounds
	if !r.ProjectionUnknown() {
		if bbox, err := r.GeographicBBox(); err == nil {
			if b, ok := bounds.FromBBox(bbox); ok {
				lb = &b
			}
		}
	}

	l := layer.NewRasterLayer(r, lb)
	l.Resolution = opts.Resolution
	l.Channels = opts.Channels
	l.Alphas = r.Alphas()

	if nd := asset.NoDataValues(); len(nd) > 0 {
		v := nd[0]
		l.NoData = &v
	} else {
		l.NoData = r.NoData
	}

	switch mins, maxs, ok := asset.Statistics(); {
	case r.HasStats():
		l.SetStats(r.Stats())
	case ok:
		l.SetStats(raster.NewStats(mins, maxs))
	case len(opts.Channels) > 0:
		l.CalcStats = true
	}
	if opts.CalcStats {
		l.CalcStats = true
	}

	if len(opts.Channels) > 0 {
		l.ColorFn = raster.NewColorFn(opts.Channels, l.Stats, l.Alphas)
	}

	if r.ProjectionUnknown() {
		l.Fail(fmt.Errorf("%w: %s", ErrUnknownProjection, asset.Href))
	} else {
		l.Load()
	}
	return l, nil
}
