// Package geojson provides the GeoJSON geometry handling used for footprints
// and click hit-testing. Coordinates are kept raw until they are needed and
// are then converted to orb geometries.
package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// FromAny converts a decoded geometry value (a map, raw JSON or *Geometry)
// into a Geometry. It returns nil, nil for a nil input.
func FromAny(v any) (*Geometry, error) {
	switch g := v.(type) {
	case nil:
		return nil, nil
	case *Geometry:
		return g, nil
	case Geometry:
		return &g, nil
	case json.RawMessage:
		return parse(g)
	case []byte:
		return parse(g)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal geometry: %w", err)
		}
		return parse(data)
	}
}

func parse(data []byte) (*Geometry, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var g Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geometry: %w", err)
	}
	if g.Type == "" {
		return nil, fmt.Errorf("geometry has no type")
	}
	return &g, nil
}

// Point returns the coordinates as a Point [lon, lat].
// Returns error if geometry is not a Point.
func (g *Geometry) Point() ([]float64, error) {
	if g.Type != "Point" {
		return nil, fmt.Errorf("geometry is not a Point, got %s", g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("invalid Point coordinates: expected at least 2 values, got %d", len(coords))
	}
	return coords, nil
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// Orb converts the geometry into its orb equivalent.
// Supports Point, Polygon and MultiPolygon.
func (g *Geometry) Orb() (orb.Geometry, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return nil, err
		}
		return orb.Point{coords[0], coords[1]}, nil
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		return toPolygon(coords), nil
	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return nil, err
		}
		mp := make(orb.MultiPolygon, 0, len(coords))
		for _, p := range coords {
			mp = append(mp, toPolygon(p))
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}
}

func toPolygon(coords [][][]float64) orb.Polygon {
	poly := make(orb.Polygon, 0, len(coords))
	for _, ring := range coords {
		r := make(orb.Ring, 0, len(ring))
		for _, point := range ring {
			if len(point) < 2 {
				continue
			}
			r = append(r, orb.Point{point[0], point[1]})
		}
		poly = append(poly, r)
	}
	return poly
}

// BBox computes the bounding box of the geometry.
// Returns [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes the bounding box of a geometry.
// Returns [west, south, east, north].
func ComputeBBox(g *Geometry) ([]float64, error) {
	geom, err := g.Orb()
	if err != nil {
		return nil, err
	}

	bound := geom.Bound()
	if bound.IsEmpty() {
		return nil, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
	}

	return []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}, nil
}

// Contains reports whether the point lies inside the geometry.
// Only polygonal geometries can contain a point.
func (g *Geometry) Contains(p orb.Point) (bool, error) {
	geom, err := g.Orb()
	if err != nil {
		return false, err
	}

	switch v := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, p), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, p), nil
	default:
		return false, fmt.Errorf("geometry type %s cannot contain a point", g.Type)
	}
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	return NewPolygonFromBound(orb.Bound{
		Min: orb.Point{bbox[0], bbox[1]},
		Max: orb.Point{bbox[2], bbox[3]},
	})
}

// NewPolygonFromBound creates a rectangular polygon geometry covering bound.
func NewPolygonFromBound(bound orb.Bound) (*Geometry, error) {
	ring := bound.ToRing()
	coords := make([][]float64, 0, len(ring))
	for _, p := range ring {
		coords = append(coords, []float64{p[0], p[1]})
	}

	coordsJSON, err := json.Marshal([][][]float64{coords})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}

	return &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}, nil
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates an empty feature collection.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// Add appends a feature for the geometry. Nil geometries are skipped.
func (fc *FeatureCollection) Add(id string, g *Geometry) {
	if g == nil {
		return
	}
	fc.Features = append(fc.Features, &Feature{
		Type:       "Feature",
		ID:         id,
		Geometry:   g,
		Properties: map[string]any{},
	})
}

// Bound returns the combined extent of all features.
func (fc *FeatureCollection) Bound() (orb.Bound, bool) {
	var (
		out orb.Bound
		ok  bool
	)
	for _, f := range fc.Features {
		geom, err := f.Geometry.Orb()
		if err != nil {
			continue
		}
		if !ok {
			out, ok = geom.Bound(), true
			continue
		}
		out = out.Union(geom.Bound())
	}
	return out, ok
}
