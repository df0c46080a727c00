package geojson

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestPoint(t *testing.T) {
	coords := []float64{-122.4, 37.8}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "Point",
		Coordinates: coordsJSON,
	}

	result, err := g.Point()
	if err != nil {
		t.Fatalf("Point() error: %v", err)
	}

	if len(result) != 2 || result[0] != -122.4 || result[1] != 37.8 {
		t.Errorf("Point() = %v, want [-122.4, 37.8]", result)
	}
}

func TestPoint_WrongType(t *testing.T) {
	coords := [][]float64{{-122.4, 37.8}, {-122.5, 37.9}}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "LineString",
		Coordinates: coordsJSON,
	}

	_, err := g.Point()
	if err == nil {
		t.Error("Point() should return error for non-Point geometry")
	}
}

func TestPolygon(t *testing.T) {
	coords := [][][]float64{
		{{-122.4, 37.8}, {-122.5, 37.8}, {-122.5, 37.9}, {-122.4, 37.9}, {-122.4, 37.8}},
	}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}

	result, err := g.Polygon()
	if err != nil {
		t.Fatalf("Polygon() error: %v", err)
	}

	if len(result) != 1 || len(result[0]) != 5 {
		t.Errorf("Polygon() structure incorrect")
	}
}

func TestMultiPolygon(t *testing.T) {
	coords := [][][][]float64{
		{
			{{-122.4, 37.8}, {-122.5, 37.8}, {-122.5, 37.9}, {-122.4, 37.9}, {-122.4, 37.8}},
		},
		{
			{{-123.4, 38.8}, {-123.5, 38.8}, {-123.5, 38.9}, {-123.4, 38.9}, {-123.4, 38.8}},
		},
	}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "MultiPolygon",
		Coordinates: coordsJSON,
	}

	result, err := g.MultiPolygon()
	if err != nil {
		t.Fatalf("MultiPolygon() error: %v", err)
	}

	if len(result) != 2 {
		t.Errorf("MultiPolygon() length = %d, want 2", len(result))
	}
}

func TestComputeBBox_Point(t *testing.T) {
	coords := []float64{-122.4, 37.8}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "Point",
		Coordinates: coordsJSON,
	}

	bbox, err := ComputeBBox(g)
	if err != nil {
		t.Fatalf("ComputeBBox() error: %v", err)
	}

	expected := []float64{-122.4, 37.8, -122.4, 37.8}
	if !floatSlicesEqual(bbox, expected) {
		t.Errorf("ComputeBBox() = %v, want %v", bbox, expected)
	}
}

func TestComputeBBox_Polygon(t *testing.T) {
	coords := [][][]float64{
		{{-122.5, 37.8}, {-122.4, 37.8}, {-122.4, 37.9}, {-122.5, 37.9}, {-122.5, 37.8}},
	}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}

	bbox, err := ComputeBBox(g)
	if err != nil {
		t.Fatalf("ComputeBBox() error: %v", err)
	}

	expected := []float64{-122.5, 37.8, -122.4, 37.9}
	if !floatSlicesEqual(bbox, expected) {
		t.Errorf("ComputeBBox() = %v, want %v", bbox, expected)
	}
}

func TestComputeBBox_MultiPolygon(t *testing.T) {
	coords := [][][][]float64{
		{
			{{-122.5, 37.8}, {-122.4, 37.8}, {-122.4, 37.9}, {-122.5, 37.9}, {-122.5, 37.8}},
		},
		{
			{{-123.5, 38.8}, {-123.4, 38.8}, {-123.4, 38.9}, {-123.5, 38.9}, {-123.5, 38.8}},
		},
	}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{
		Type:        "MultiPolygon",
		Coordinates: coordsJSON,
	}

	bbox, err := ComputeBBox(g)
	if err != nil {
		t.Fatalf("ComputeBBox() error: %v", err)
	}

	// Should span both polygons
	expected := []float64{-123.5, 37.8, -122.4, 38.9}
	if !floatSlicesEqual(bbox, expected) {
		t.Errorf("ComputeBBox() = %v, want %v", bbox, expected)
	}
}

func TestNewPolygonFromBBox(t *testing.T) {
	bbox := []float64{-122.5, 37.8, -122.4, 37.9}

	g, err := NewPolygonFromBBox(bbox)
	if err != nil {
		t.Fatalf("NewPolygonFromBBox() error: %v", err)
	}

	if g.Type != "Polygon" {
		t.Errorf("NewPolygonFromBBox() Type = %s, want Polygon", g.Type)
	}

	coords, err := g.Polygon()
	if err != nil {
		t.Fatalf("Failed to parse created polygon: %v", err)
	}

	if len(coords) != 1 || len(coords[0]) != 5 {
		t.Errorf("NewPolygonFromBBox() created invalid polygon structure")
	}

	// Verify the polygon covers the bbox
	computedBBox, err := ComputeBBox(g)
	if err != nil {
		t.Fatalf("ComputeBBox() error: %v", err)
	}

	if !floatSlicesEqual(computedBBox, bbox) {
		t.Errorf("Computed bbox %v doesn't match original %v", computedBBox, bbox)
	}
}

func TestNewPolygonFromBBox_InvalidInput(t *testing.T) {
	bbox := []float64{-122.5, 37.8, -122.4} // Only 3 values

	_, err := NewPolygonFromBBox(bbox)
	if err == nil {
		t.Error("NewPolygonFromBBox() should return error for invalid bbox")
	}
}

func TestComputeBBox_NilGeometry(t *testing.T) {
	_, err := ComputeBBox(nil)
	if err == nil {
		t.Error("ComputeBBox(nil) should return error")
	}
}

func TestComputeBBox_UnsupportedType(t *testing.T) {
	coordsJSON := json.RawMessage(`[]`)
	g := &Geometry{
		Type:        "GeometryCollection",
		Coordinates: coordsJSON,
	}

	_, err := ComputeBBox(g)
	if err == nil {
		t.Error("ComputeBBox() should return error for unsupported type")
	}
}

func TestContains_PolygonWithHole(t *testing.T) {
	coords := [][][]float64{
		{{-122.5, 37.8}, {-122.4, 37.8}, {-122.4, 37.9}, {-122.5, 37.9}, {-122.5, 37.8}},
		{{-122.48, 37.82}, {-122.42, 37.82}, {-122.42, 37.88}, {-122.48, 37.88}, {-122.48, 37.82}},
	}
	coordsJSON, _ := json.Marshal(coords)
	g := &Geometry{Type: "Polygon", Coordinates: coordsJSON}

	tests := []struct {
		name  string
		point orb.Point
		want  bool
	}{
		{"inside exterior ring", orb.Point{-122.49, 37.85}, true},
		{"inside hole", orb.Point{-122.45, 37.85}, false},
		{"outside", orb.Point{-121.0, 37.85}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Contains(tt.point)
			if err != nil {
				t.Fatalf("Contains() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.point, got, tt.want)
			}
		})
	}
}

func TestContains_MultiPolygon(t *testing.T) {
	g := &Geometry{
		Type:        "MultiPolygon",
		Coordinates: json.RawMessage(`[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[10,10],[11,10],[11,11],[10,11],[10,10]]]]`),
	}

	ok, err := g.Contains(orb.Point{10.5, 10.5})
	if err != nil {
		t.Fatalf("Contains() error: %v", err)
	}
	if !ok {
		t.Error("point in second polygon should be contained")
	}
}

func TestContains_Point(t *testing.T) {
	g := &Geometry{Type: "Point", Coordinates: json.RawMessage(`[1, 2]`)}
	if _, err := g.Contains(orb.Point{1, 2}); err == nil {
		t.Error("Contains() on a Point should return error")
	}
}

func TestFromAny(t *testing.T) {
	decoded := map[string]any{
		"type":        "Point",
		"coordinates": []any{1.5, 2.5},
	}

	g, err := FromAny(decoded)
	if err != nil {
		t.Fatalf("FromAny() error: %v", err)
	}
	coords, err := g.Point()
	if err != nil {
		t.Fatalf("Point() error: %v", err)
	}
	if coords[0] != 1.5 || coords[1] != 2.5 {
		t.Errorf("FromAny() coordinates = %v", coords)
	}

	g, err = FromAny(nil)
	if err != nil || g != nil {
		t.Errorf("FromAny(nil) = %v, %v; want nil, nil", g, err)
	}

	if _, err := FromAny(map[string]any{"coordinates": []any{}}); err == nil {
		t.Error("FromAny() should reject a geometry without type")
	}
}

func TestFeatureCollection_Bound(t *testing.T) {
	fc := NewFeatureCollection()
	a, _ := NewPolygonFromBBox([]float64{0, 0, 1, 1})
	b, _ := NewPolygonFromBBox([]float64{5, -2, 6, 3})
	fc.Add("a", a)
	fc.Add("skipped", nil)
	fc.Add("b", b)

	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}

	bound, ok := fc.Bound()
	if !ok {
		t.Fatal("Bound() should report a bound")
	}
	got := []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
	if !floatSlicesEqual(got, []float64{0, -2, 6, 3}) {
		t.Errorf("Bound() = %v", got)
	}

	if _, ok := NewFeatureCollection().Bound(); ok {
		t.Error("empty collection should have no bound")
	}
}

// Helper function to compare float slices with tolerance
func floatSlicesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	const epsilon = 1e-9
	for i := range a {
		if math.Abs(a[i]-b[i]) > epsilon {
			return false
		}
	}
	return true
}
