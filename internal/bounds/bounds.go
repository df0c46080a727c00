// Package bounds derives rectangular geographic extents for catalog entities.
package bounds

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/rkm/stac-layer/internal/stac"
)

// LatLngBounds is a rectangle as [[south, west], [north, east]], the order map
// clients expect.
type LatLngBounds [2][2]float64

// FromBBox converts [west, south, east, north] into LatLngBounds. 3D boxes
// drop their elevation. It returns false for any other length.
func FromBBox(bbox []float64) (LatLngBounds, bool) {
	var w, s, e, n float64
	switch len(bbox) {
	case 4:
		w, s, e, n = bbox[0], bbox[1], bbox[2], bbox[3]
	case 6:
		w, s, e, n = bbox[0], bbox[1], bbox[3], bbox[4]
	default:
		return LatLngBounds{}, false
	}
	return LatLngBounds{{s, w}, {n, e}}, true
}

// FromBound converts an orb bound.
func FromBound(b orb.Bound) LatLngBounds {
	return LatLngBounds{{b.Min.Lat(), b.Min.Lon()}, {b.Max.Lat(), b.Max.Lon()}}
}

func (b LatLngBounds) South() float64 { return b[0][0] }
func (b LatLngBounds) West() float64  { return b[0][1] }
func (b LatLngBounds) North() float64 { return b[1][0] }
func (b LatLngBounds) East() float64  { return b[1][1] }

// BBox returns [west, south, east, north].
func (b LatLngBounds) BBox() []float64 {
	return []float64{b.West(), b.South(), b.East(), b.North()}
}

// Bound returns the rectangle as an orb bound in lon/lat order.
func (b LatLngBounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West(), b.South()},
		Max: orb.Point{b.East(), b.North()},
	}
}

// Center returns the center point as lon/lat.
func (b LatLngBounds) Center() orb.Point {
	return b.Bound().Center()
}

// Extend returns the smallest rectangle covering both b and o.
func (b LatLngBounds) Extend(o LatLngBounds) LatLngBounds {
	return FromBound(b.Bound().Union(o.Bound()))
}

func (b LatLngBounds) String() string {
	return fmt.Sprintf("[[%g,%g],[%g,%g]]", b[0][0], b[0][1], b[1][0], b[1][1])
}

// IsBoundingBox reports whether bbox is a valid geographic [west, south,
// east, north] rectangle: four finite numbers, min < max on both axes and
// within [-180,180]x[-90,90].
func IsBoundingBox(bbox []float64) bool {
	if len(bbox) != 4 {
		return false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return bbox[0] < bbox[2] && bbox[1] < bbox[3] &&
		bbox[0] >= -180 && bbox[1] >= -90 && bbox[2] <= 180 && bbox[3] <= 90
}

// Validate returns an InvalidBoundingBox error for an unusable bbox.
func Validate(bbox []float64) error {
	if IsBoundingBox(bbox) {
		return nil
	}
	return stac.NewError(stac.CodeInvalidBoundingBox,
		"bounding box must be [west, south, east, north] within [-180,180]x[-90,90]",
		map[string]any{"bbox": bbox})
}

// Options carries the caller-provided extents.
type Options struct {
	// Explicit wins over BBox and is used without validation.
	Explicit *LatLngBounds
	BBox     []float64
}

// Resolve derives the extent used to place imagery for e. The owning
// context's bbox of an asset wins, then explicit bounds, then a valid bbox
// option. It returns nil when no extent is known.
func Resolve(e stac.Entity, opts Options) *LatLngBounds {
	if a, ok := e.(*stac.Asset); ok && a.Context() != nil {
		if bbox := a.Context().BBox(); IsBoundingBox(bbox) {
			b, _ := FromBBox(bbox)
			return &b
		}
	}
	if opts.Explicit != nil {
		b := *opts.Explicit
		return &b
	}
	if IsBoundingBox(opts.BBox) {
		b, _ := FromBBox(opts.BBox)
		return &b
	}
	return nil
}

// OfEntity returns the extent of the entity's own bbox, or nil.
func OfEntity(e stac.Entity) *LatLngBounds {
	if e == nil {
		return nil
	}
	if b, ok := FromBBox(e.BBox()); ok {
		return &b
	}
	return nil
}

// MarshalJSON keeps the nested array form.
func (b LatLngBounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]float64(b))
}
