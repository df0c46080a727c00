package stac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"

	gostac "github.com/planetlabs/go-stac"

	"github.com/rkm/stac-layer/pkg/geojson"
)

// envelope holds the fields used to tell the variants apart.
type envelope struct {
	Type        string          `json:"type"`
	Href        *string         `json:"href"`
	Features    json.RawMessage `json:"features"`
	Collections json.RawMessage `json:"collections"`
	Extent      json.RawMessage `json:"extent"`
	License     *string         `json:"license"`
	Assets      json.RawMessage `json:"assets"`
	Links       []*Link         `json:"links"`
}

// Parse classifies a raw STAC document into an Entity. baseURL, if set,
// overrides the document's self link for resolving relative hrefs.
// Unrecognized input yields a FormatNotSupported error.
func Parse(data []byte, baseURL string) (Entity, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrNoData
	}
	if data[0] != '{' {
		return nil, FormatNotSupported(jsonKind(data))
	}

	var p envelope
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, FormatNotSupported("invalid JSON")
	}

	switch {
	case p.Type == "Feature":
		return parseItem(data, p, baseURL, "")
	case p.Type == "FeatureCollection" || p.Features != nil:
		return parseFeatures(p, baseURL)
	case p.Type == "Collection" || (p.License != nil && p.Extent != nil):
		return parseCollection(data, p, baseURL, "")
	case p.Collections != nil:
		return parseCollections(p, baseURL)
	case p.Type == "Catalog":
		return parseCatalog(data, p, baseURL)
	case p.Href != nil:
		// A bare asset has no owner; only its href uses baseURL.
		a, err := ParseAsset(data, "", nil)
		if err != nil {
			return nil, err
		}
		a.Href = ToAbsolute(a.Href, baseURL)
		return a, nil
	}

	return nil, FormatNotSupported(p.Type)
}

// ParseAssets decodes a JSON array of asset objects owned by context.
func ParseAssets(data []byte, context Entity) ([]*Asset, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, FormatNotSupported(jsonKind(data))
	}
	out := make([]*Asset, 0, len(raws))
	for i, raw := range raws {
		a, err := ParseAsset(raw, strconv.Itoa(i), context)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ParseAsset decodes a single asset object.
func ParseAsset(data []byte, key string, context Entity) (*Asset, error) {
	var raw gostac.Asset
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode asset: %w", err)
	}
	if raw.Href == "" {
		return nil, FormatNotSupported("asset without href")
	}

	a := NewAsset(key, raw.Href, raw.Type, raw.Roles, context)
	a.Title = raw.Title
	a.Raw = &raw
	a.Bands = parseBands(data)
	return a, nil
}

func parseItem(data []byte, p envelope, baseURL, fallback string) (*Item, error) {
	var raw gostac.Item
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}

	it := &Item{Raw: &raw}
	it.id = raw.Id
	it.links = raw.Links
	it.url = absoluteURL(baseURL, raw.Links)
	if it.url == "" {
		it.url = fallback
	}

	geom, err := geojson.FromAny(raw.Geometry)
	if err != nil {
		slog.Debug("failed to decode item geometry", slog.String("id", raw.Id), slog.String("error", err.Error()))
	} else {
		it.geometry = geom
	}
	it.bbox = normalizeBBox(raw.Bbox)
	if it.bbox == nil && geom != nil {
		if bbox, err := geom.BBox(); err == nil {
			it.bbox = bbox
		}
	}

	assets, err := orderedAssets(p.Assets, it)
	if err != nil {
		return nil, err
	}
	it.assets = assets
	return it, nil
}

func parseCollection(data []byte, p envelope, baseURL, fallback string) (*Collection, error) {
	var raw gostac.Collection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}

	c := &Collection{Raw: &raw}
	c.id = raw.Id
	c.links = raw.Links
	c.url = absoluteURL(baseURL, raw.Links)
	if c.url == "" {
		c.url = fallback
	}
	if raw.Extent != nil && raw.Extent.Spatial != nil && len(raw.Extent.Spatial.Bbox) > 0 {
		c.bbox = normalizeBBox(raw.Extent.Spatial.Bbox[0])
	}

	assets, err := orderedAssets(p.Assets, c)
	if err != nil {
		return nil, err
	}
	c.assets = assets
	return c, nil
}

func parseCatalog(data []byte, p envelope, baseURL string) (*Catalog, error) {
	var raw gostac.Catalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{Raw: &raw}
	c.id = raw.Id
	c.links = raw.Links
	c.url = absoluteURL(baseURL, raw.Links)
	return c, nil
}

func parseFeatures(p envelope, baseURL string) (*ItemCollection, error) {
	var features []json.RawMessage
	if err := json.Unmarshal(p.Features, &features); err != nil {
		return nil, FormatNotSupported(p.Type)
	}

	root := absoluteURL(baseURL, p.Links)
	children := make([]Entity, 0, len(features))
	for i, f := range features {
		var fp envelope
		if err := json.Unmarshal(f, &fp); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		item, err := parseItem(f, fp, baseURL, root)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		children = append(children, item)
	}
	return NewItemCollection(children, p.Links, root), nil
}

func parseCollections(p envelope, baseURL string) (*ItemCollection, error) {
	var collections []json.RawMessage
	if err := json.Unmarshal(p.Collections, &collections); err != nil {
		return nil, FormatNotSupported(p.Type)
	}

	root := absoluteURL(baseURL, p.Links)
	children := make([]Entity, 0, len(collections))
	for i, raw := range collections {
		var cp envelope
		if err := json.Unmarshal(raw, &cp); err != nil {
			return nil, fmt.Errorf("collection %d: %w", i, err)
		}
		c, err := parseCollection(raw, cp, baseURL, root)
		if err != nil {
			return nil, fmt.Errorf("collection %d: %w", i, err)
		}
		children = append(children, c)
	}
	return NewItemCollection(children, p.Links, root), nil
}

// orderedAssets decodes the assets object keeping the declaration order,
// which a Go map would lose.
func orderedAssets(data json.RawMessage, context Entity) ([]*Asset, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("assets must be an object")
	}

	var out []*Asset
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read asset key: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to read asset %q: %w", key, err)
		}

		a, err := ParseAsset(raw, key, context)
		if err != nil {
			// An asset without href cannot be shown; keep the rest.
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type rawBand struct {
	Name         string `json:"name"`
	CommonName   string `json:"common_name"`
	EOCommonName string `json:"eo:common_name"`
	DataType     string `json:"data_type"`
	NoData       any    `json:"nodata"`
	Statistics   *struct {
		Minimum *float64 `json:"minimum"`
		Maximum *float64 `json:"maximum"`
	} `json:"statistics"`
}

type rawBands struct {
	EO     []rawBand `json:"eo:bands"`
	Raster []rawBand `json:"raster:bands"`
	Bands  []rawBand `json:"bands"`
}

// parseBands merges eo:bands, raster:bands and bands by index.
func parseBands(data []byte) []Band {
	var rb rawBands
	if err := json.Unmarshal(data, &rb); err != nil {
		return nil
	}

	n := max(len(rb.EO), len(rb.Raster), len(rb.Bands))
	if n == 0 {
		return nil
	}

	bands := make([]Band, n)
	for _, list := range [][]rawBand{rb.EO, rb.Raster, rb.Bands} {
		for i, r := range list {
			b := &bands[i]
			if r.Name != "" {
				b.Name = r.Name
			}
			if r.CommonName != "" {
				b.CommonName = r.CommonName
			}
			if r.EOCommonName != "" {
				b.CommonName = r.EOCommonName
			}
			if r.DataType != "" {
				b.DataType = r.DataType
			}
			if v, ok := noDataValue(r.NoData); ok {
				b.NoData = &v
			}
			if r.Statistics != nil {
				if r.Statistics.Minimum != nil {
					b.Minimum = r.Statistics.Minimum
				}
				if r.Statistics.Maximum != nil {
					b.Maximum = r.Statistics.Maximum
				}
			}
		}
	}
	return bands
}

func noDataValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		switch strings.ToLower(n) {
		case "nan":
			return math.NaN(), true
		case "inf":
			return math.Inf(1), true
		case "-inf":
			return math.Inf(-1), true
		}
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// normalizeBBox drops elevation from 3D boxes and rejects other lengths.
func normalizeBBox(bbox []float64) []float64 {
	switch len(bbox) {
	case 4:
		return bbox
	case 6:
		return []float64{bbox[0], bbox[1], bbox[3], bbox[4]}
	}
	return nil
}

// absoluteURL picks the base for resolving hrefs: the explicit base URL or
// the self link.
func absoluteURL(baseURL string, links []*Link) string {
	if baseURL != "" {
		return baseURL
	}
	for _, l := range links {
		if l != nil && l.Rel == "self" {
			if u, err := url.Parse(l.Href); err == nil && u.IsAbs() {
				return l.Href
			}
		}
	}
	return ""
}

// ToAbsolute resolves href against baseURL. Unparseable input is returned as is.
func ToAbsolute(href, baseURL string) string {
	if baseURL == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	b, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func jsonKind(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}
