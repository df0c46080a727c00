package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/builder"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/raster"
	"github.com/rkm/stac-layer/internal/stac"
)

// DefaultResolution is the raster rendering resolution used when none is set.
const DefaultResolution = 32

// Options configures a visualization. Start from DefaultOptions; the zero
// value disables the overview strategies.
type Options struct {
	// DisplayGeoTiffByDefault accepts any GeoTIFF where otherwise only
	// cloud-optimized ones are used.
	DisplayGeoTiffByDefault bool `json:"displayGeoTiffByDefault"`
	DisplayPreview          bool `json:"displayPreview"`
	DisplayOverview         bool `json:"displayOverview"`
	Resolution              int  `json:"resolution"`

	UseTileLayerAsFallback bool   `json:"useTileLayerAsFallback"`
	TileURLTemplate        string `json:"tileUrlTemplate,omitempty"`
	// BuildTileURLTemplate wins over TileURLTemplate.
	BuildTileURLTemplate builder.TemplateFunc `json:"-"`
	// TiTilerURL installs a TiTiler BuildTileURLTemplate when none is set.
	TiTilerURL string `json:"titilerUrl,omitempty"`

	Assets AssetRefs `json:"assets,omitempty"`
	// Bands are zero-based band indices, 1 to 4 of them.
	Bands []int `json:"bands,omitempty"`

	BBox         []float64            `json:"bbox,omitempty"`
	LatLngBounds *bounds.LatLngBounds `json:"latLngBounds,omitempty"`
	BaseURL      string               `json:"baseUrl,omitempty"`
	CrossOrigin  string               `json:"crossOrigin,omitempty"`

	BoundsStyle     layer.Style `json:"boundsStyle"`
	CollectionStyle layer.Style `json:"collectionStyle"`

	// DebugLevel is 0 (warnings), 1 (info) or 2 (debug).
	DebugLevel int `json:"debugLevel"`
}

// DefaultOptions returns the options used when the caller sets none.
func DefaultOptions() Options {
	return Options{
		DisplayOverview: true,
		Resolution:      DefaultResolution,
	}
}

// collectionStyle is applied over the caller's collection style.
var collectionStyle = layer.Style{
	FillOpacity: layer.Float(0),
	Weight:      layer.Float(1),
	Color:       "#ff8833",
}

func (o *Options) normalize() {
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.BuildTileURLTemplate == nil && o.TiTilerURL != "" {
		o.BuildTileURLTemplate = builder.TiTilerTemplate(o.TiTilerURL)
	}
	o.CollectionStyle = o.CollectionStyle.Merge(collectionStyle)
}

func (o *Options) useTileLayer() bool {
	return o.TileURLTemplate != "" || o.BuildTileURLTemplate != nil
}

// preferTileLayer puts the tile layer before the raster layer instead of
// using it as a fallback.
func (o *Options) preferTileLayer() bool {
	return o.useTileLayer() && !o.UseTileLayerAsFallback
}

func (o *Options) boundsOptions() bounds.Options {
	return bounds.Options{Explicit: o.LatLngBounds, BBox: o.BBox}
}

// channels expands Bands into an RGB(A) mapping, or nil for default
// rendering.
func (o *Options) channels(logger *slog.Logger) []int {
	if len(o.Bands) == 0 {
		return nil
	}
	ch, err := raster.ExpandBands(o.Bands)
	if err != nil {
		logger.Info("ignoring bands option", slog.String("error", err.Error()))
		return nil
	}
	return ch
}

// resolveAssets turns the forced asset references into assets of e.
// References that cannot be resolved are logged and dropped.
func (o *Options) resolveAssets(e stac.Entity, logger *slog.Logger) []*stac.Asset {
	var out []*stac.Asset
	for _, ref := range o.Assets {
		switch {
		case ref.Asset != nil:
			out = append(out, ref.Asset)
		case ref.Key != "":
			a := stac.AssetByKey(e, ref.Key)
			if a == nil {
				logger.Info("can't find asset with the given key", slog.String("key", ref.Key))
				continue
			}
			out = append(out, a)
		case len(ref.Object) > 0:
			a, err := stac.ParseAsset(ref.Object, "", e)
			if err != nil {
				logger.Info("invalid asset provided", slog.String("error", err.Error()))
				continue
			}
			out = append(out, a)
		}
	}
	return out
}

// AssetRef references a forced asset by key, by asset object or by an
// already decoded asset.
type AssetRef struct {
	Key    string
	Object json.RawMessage
	Asset  *stac.Asset
}

// AssetRefs accepts a single key or an array of keys and asset objects.
type AssetRefs []AssetRef

// AssetKeys references assets by key.
func AssetKeys(keys ...string) AssetRefs {
	refs := make(AssetRefs, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, AssetRef{Key: k})
	}
	return refs
}

func (r *AssetRefs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}

	if data[0] == '"' {
		var key string
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		*r = AssetKeys(key)
		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("assets must be a key or an array: %w", err)
	}
	refs := make(AssetRefs, 0, len(raws))
	for i, raw := range raws {
		raw = bytes.TrimSpace(raw)
		switch {
		case len(raw) > 0 && raw[0] == '"':
			var key string
			if err := json.Unmarshal(raw, &key); err != nil {
				return fmt.Errorf("asset %d: %w", i, err)
			}
			refs = append(refs, AssetRef{Key: key})
		case len(raw) > 0 && raw[0] == '{':
			refs = append(refs, AssetRef{Object: raw})
		default:
			return fmt.Errorf("asset %d: expected a key or an object", i)
		}
	}
	*r = refs
	return nil
}

func (r AssetRef) MarshalJSON() ([]byte, error) {
	switch {
	case r.Key != "":
		return json.Marshal(r.Key)
	case len(r.Object) > 0:
		return r.Object, nil
	case r.Asset != nil:
		return json.Marshal(r.Asset.Raw)
	}
	return []byte("null"), nil
}
