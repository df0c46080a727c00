package engine

import (
	"log/slog"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/stac"
	"github.com/rkm/stac-layer/pkg/geojson"
)

// addFootprint adds the vector outline of the entity. Its fill becomes
// transparent while imagery is present.
func (r *run) addFootprint() {
	g := r.footprintGeometry()
	if g == nil {
		r.log.Debug("no footprint available")
		return
	}

	r.log.Info("adding footprint layer")
	v := layer.NewVectorFromGeometry(r.entity.ID(), g, layer.Style{})
	if !r.add(v, r.entity) {
		return
	}
	if err := r.comp.SetFootprint(v, r.opts.BoundsStyle); err != nil {
		r.log.Warn("failed to set footprint", slog.String("error", err.Error()))
	}
}

// footprintGeometry picks the entity geometry, its bounding box, the
// resolved bounds and finally the extent of the first raster layer.
func (r *run) footprintGeometry() *geojson.Geometry {
	switch e := r.entity.(type) {
	case *stac.ItemCollection:
		if g, err := geojson.NewPolygonFromBBox(e.BBox()); err == nil {
			return g
		}
	case *stac.Asset:
	default:
		if g := e.Geometry(); g != nil {
			return g
		}
		if g, err := geojson.NewPolygonFromBBox(e.BBox()); err == nil {
			return g
		}
	}

	b := bounds.Resolve(r.entity, r.opts.boundsOptions())
	if b == nil {
		r.mu.Lock()
		b = r.rasterBounds
		r.mu.Unlock()
	}
	if b == nil {
		return nil
	}
	r.log.Debug("no geometry found for footprint, falling back to bounds", slog.String("bounds", b.String()))
	g, err := geojson.NewPolygonFromBound(b.Bound())
	if err != nil {
		return nil
	}
	return g
}
