package raster

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ToWGS84 reprojects a native [xmin, ymin, xmax, ymax] extent to geographic
// coordinates. Only geographic WGS84 and Web Mercator are supported.
func ToWGS84(bbox []float64, epsg int) ([]float64, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values, got %d", len(bbox))
	}
	b := orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}

	switch epsg {
	case 4326, 4269, 4258:
	case 3857, 3785, 900913, 102100, 102113:
		b = project.Geometry(b.ToPolygon(), project.Mercator.ToWGS84).Bound()
	default:
		return nil, fmt.Errorf("%w: EPSG:%d", ErrUnsupportedProjection, epsg)
	}
	return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}, nil
}

// GeographicBBox returns the raster extent in WGS84.
func (r *Raster) GeographicBBox() ([]float64, error) {
	return ToWGS84(r.BBox(), r.Projection)
}
