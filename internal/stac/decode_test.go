package stac

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"
)

const itemJSON = `{
	"type": "Feature",
	"stac_version": "1.0.0",
	"id": "scene-1",
	"bbox": [10, 45, 12, 47],
	"geometry": {"type": "Polygon", "coordinates": [[[10,45],[12,45],[12,47],[10,47],[10,45]]]},
	"properties": {"datetime": "2024-01-01T00:00:00Z"},
	"links": [{"rel": "self", "href": "https://example.com/collections/c/items/scene-1.json"}],
	"assets": {
		"visual": {"href": "visual.tif", "type": "image/tiff; application=geotiff; profile=cloud-optimized", "roles": ["visual"]},
		"thumbnail": {"href": "thumb.png", "type": "image/png", "roles": ["thumbnail"]},
		"B04": {
			"href": "https://data.example.com/B04.tif",
			"type": "image/tiff; application=geotiff",
			"roles": ["data"],
			"eo:bands": [{"name": "B04", "common_name": "red"}],
			"raster:bands": [{"nodata": 0, "data_type": "uint16", "statistics": {"minimum": 1, "maximum": 10000}}]
		},
		"broken": {"type": "image/png"}
	}
}`

func TestParse_Item(t *testing.T) {
	e, err := Parse([]byte(itemJSON), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	item, ok := e.(*Item)
	if !ok {
		t.Fatalf("Parse() returned %T, want *Item", e)
	}
	if item.ID() != "scene-1" {
		t.Errorf("ID() = %s", item.ID())
	}
	if item.Geometry() == nil || item.Geometry().Type != "Polygon" {
		t.Errorf("Geometry() = %+v", item.Geometry())
	}

	keys := []string{}
	for _, a := range item.Assets() {
		keys = append(keys, a.Key)
	}
	want := []string{"visual", "thumbnail", "B04"}
	if len(keys) != len(want) {
		t.Fatalf("asset keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("asset keys = %v, want %v (declaration order)", keys, want)
		}
	}

	visual := AssetByKey(item, "visual")
	if visual.Href != "https://example.com/collections/c/items/visual.tif" {
		t.Errorf("visual href = %s", visual.Href)
	}
	if visual.Context() != item {
		t.Error("asset context should be the item")
	}

	b04 := AssetByKey(item, "B04")
	if len(b04.Bands) != 1 {
		t.Fatalf("B04 bands = %+v", b04.Bands)
	}
	band := b04.Bands[0]
	if band.CommonName != "red" || band.DataType != "uint16" {
		t.Errorf("merged band = %+v", band)
	}
	if nd := b04.NoDataValues(); len(nd) != 1 || nd[0] != 0 {
		t.Errorf("NoDataValues() = %v", nd)
	}
	mins, maxs, ok := b04.Statistics()
	if !ok || mins[0] != 1 || maxs[0] != 10000 {
		t.Errorf("Statistics() = %v %v %v", mins, maxs, ok)
	}
}

func TestParse_BaseURLOverridesSelfLink(t *testing.T) {
	e, err := Parse([]byte(itemJSON), "https://mirror.example.org/scene-1.json")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	thumb := AssetByKey(e, "thumbnail")
	if thumb.Href != "https://mirror.example.org/thumb.png" {
		t.Errorf("thumbnail href = %s", thumb.Href)
	}
}

func TestParse_ItemInvalidGeometryLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	data := `{"type": "Feature", "id": "bad-geom", "bbox": [0, 0, 1, 1],
		"geometry": {"coordinates": [1, 2]}, "properties": {}, "links": [], "assets": {}}`
	e, err := Parse([]byte(data), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if e.(*Item).Geometry() != nil {
		t.Error("Geometry() should be nil for an invalid geometry")
	}
	if bbox := e.BBox(); len(bbox) != 4 || bbox[2] != 1 {
		t.Errorf("BBox() = %v", bbox)
	}

	out := buf.String()
	if !strings.Contains(out, "failed to decode item geometry") || !strings.Contains(out, "id=bad-geom") {
		t.Errorf("missing debug log, got %q", out)
	}
}

func TestParse_Collection(t *testing.T) {
	data := `{
		"type": "Collection",
		"stac_version": "1.0.0",
		"id": "c",
		"description": "d",
		"license": "proprietary",
		"extent": {"spatial": {"bbox": [[-10, -5, 0, 5, 100, 200]]}, "temporal": {"interval": [[null, null]]}},
		"links": []
	}`

	e, err := Parse([]byte(data), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if e.Kind() != KindCollection {
		t.Fatalf("Kind() = %s", e.Kind())
	}
	bbox := e.BBox()
	if len(bbox) != 4 || bbox[0] != -10 || bbox[1] != -5 || bbox[2] != 5 || bbox[3] != 100 {
		t.Errorf("BBox() = %v, want elevation dropped", bbox)
	}
}

func TestParse_ItemCollection(t *testing.T) {
	data := `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "id": "a", "bbox": [0, 0, 1, 1], "geometry": null, "properties": {}, "links": [], "assets": {}},
			{"type": "Feature", "id": "b", "bbox": [2, -1, 3, 4], "geometry": null, "properties": {}, "links": [], "assets": {}}
		]
	}`

	e, err := Parse([]byte(data), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	ic, ok := e.(*ItemCollection)
	if !ok {
		t.Fatalf("Parse() returned %T", e)
	}
	if len(ic.Children) != 2 {
		t.Fatalf("children = %d", len(ic.Children))
	}
	bbox := ic.BBox()
	if bbox[0] != 0 || bbox[1] != -1 || bbox[2] != 3 || bbox[3] != 4 {
		t.Errorf("union bbox = %v", bbox)
	}
	if n := len(ic.FeatureCollection().Features); n != 2 {
		t.Errorf("feature collection has %d features", n)
	}
}

func TestParse_APICollections(t *testing.T) {
	data := `{
		"collections": [
			{"type": "Collection", "id": "north", "description": "", "license": "CC-BY-4.0",
			 "extent": {"spatial": {"bbox": [[0, 40, 10, 50]]}, "temporal": {"interval": [[null, null]]}}, "links": []},
			{"type": "Collection", "id": "south", "description": "", "license": "CC-BY-4.0",
			 "extent": {"spatial": {"bbox": [[5, -20, 15, -10]]}, "temporal": {"interval": [[null, null]]}}, "links": []}
		],
		"links": [{"rel": "self", "href": "https://example.com/collections"}]
	}`

	e, err := Parse([]byte(data), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	ic, ok := e.(*ItemCollection)
	if !ok {
		t.Fatalf("Parse() returned %T", e)
	}
	if len(ic.Children) != 2 {
		t.Fatalf("children = %d", len(ic.Children))
	}
	for i, want := range []string{"north", "south"} {
		if ic.Children[i].Kind() != KindCollection || ic.Children[i].ID() != want {
			t.Errorf("child %d = %s %s, want Collection %s", i, ic.Children[i].Kind(), ic.Children[i].ID(), want)
		}
	}
	bbox := ic.BBox()
	if bbox[0] != 0 || bbox[1] != -20 || bbox[2] != 15 || bbox[3] != 50 {
		t.Errorf("union bbox = %v", bbox)
	}
}

func TestParse_BareAsset(t *testing.T) {
	e, err := Parse([]byte(`{"href": "https://example.com/a.tif", "type": "image/tiff; application=geotiff"}`), "")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	a, ok := e.(*Asset)
	if !ok {
		t.Fatalf("Parse() returned %T", e)
	}
	if a.Context() != nil || !a.IsRaster() {
		t.Errorf("bare asset = %+v", a)
	}
}

func TestParse_BareAssetResolvesAgainstBaseURL(t *testing.T) {
	const base = "https://example.com/items/x.json"
	const want = "https://example.com/items/img/thumb.png"

	e, err := Parse([]byte(`{"href": "img/thumb.png", "type": "image/png"}`), base)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	a := e.(*Asset)
	if a.Href != want {
		t.Errorf("Href = %q, want %q", a.Href, want)
	}
	if a.Context() != nil {
		t.Error("bare asset should have no context")
	}

	assets, err := ParseAssets([]byte(`[{"href": "img/thumb.png", "type": "image/png"}]`), NewEmptyCatalog(base))
	if err != nil {
		t.Fatalf("ParseAssets() error: %v", err)
	}
	if assets[0].Href != a.Href {
		t.Errorf("array form Href = %q, single form %q", assets[0].Href, a.Href)
	}
}

func TestParse_Unsupported(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
	}{
		{"empty object", `{}`, ""},
		{"unknown type", `{"type": "Topology"}`, "Topology"},
		{"string", `"hello"`, "string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), "")
			if !IsCode(err, CodeFormatNotSupported) {
				t.Fatalf("Parse() error = %v, want FormatNotSupported", err)
			}
			se := err.(*Error)
			if se.Values["type"] != tt.wantType {
				t.Errorf("error type value = %v, want %q", se.Values["type"], tt.wantType)
			}
		})
	}

	if _, err := Parse(nil, ""); err != ErrNoData {
		t.Errorf("Parse(nil) error = %v, want ErrNoData", err)
	}
}

func TestParseAssets(t *testing.T) {
	ctx := NewEmptyCatalog("https://example.com/root/")
	assets, err := ParseAssets([]byte(`[{"href": "a.png", "type": "image/png"}, {"href": "b.tif"}]`), ctx)
	if err != nil {
		t.Fatalf("ParseAssets() error: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("got %d assets", len(assets))
	}
	if assets[0].Href != "https://example.com/root/a.png" {
		t.Errorf("href = %s", assets[0].Href)
	}
}

func TestNoDataValue(t *testing.T) {
	if v, ok := noDataValue("nan"); !ok || !math.IsNaN(v) {
		t.Errorf("noDataValue(nan) = %v, %v", v, ok)
	}
	if v, ok := noDataValue(float64(-9999)); !ok || v != -9999 {
		t.Errorf("noDataValue(-9999) = %v, %v", v, ok)
	}
	if _, ok := noDataValue(nil); ok {
		t.Error("noDataValue(nil) should not be ok")
	}
}
