// Package stac provides the catalog entity model consumed by the layer
// selection engine. Raw STAC JSON is classified once, at the boundary, into a
// closed set of variants; the core types come from planetlabs/go-stac.
package stac

import (
	"strings"

	gostac "github.com/planetlabs/go-stac"

	"github.com/rkm/stac-layer/pkg/geojson"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Link = gostac.Link
)

// Kind tags the entity variants.
type Kind string

const (
	KindCatalog        Kind = "Catalog"
	KindCollection     Kind = "Collection"
	KindItem           Kind = "Item"
	KindItemCollection Kind = "ItemCollection"
	KindAsset          Kind = "Asset"
)

// Entity is a classified catalog entity. Implementations are *Catalog,
// *Collection, *Item, *ItemCollection and *Asset; consumers switch on the
// concrete type.
type Entity interface {
	Kind() Kind
	ID() string
	// BBox returns [west, south, east, north] or nil.
	BBox() []float64
	// Geometry returns the vector footprint or nil.
	Geometry() *geojson.Geometry
	// Assets returns the assets in declaration order.
	Assets() []*Asset
	Links() []*Link
	// AbsoluteURL is the location relative hrefs are resolved against.
	AbsoluteURL() string
}

type base struct {
	id       string
	bbox     []float64
	geometry *geojson.Geometry
	assets   []*Asset
	links    []*Link
	url      string
}

func (b *base) ID() string                  { return b.id }
func (b *base) BBox() []float64             { return b.bbox }
func (b *base) Geometry() *geojson.Geometry { return b.geometry }
func (b *base) Assets() []*Asset            { return b.assets }
func (b *base) Links() []*Link              { return b.links }
func (b *base) AbsoluteURL() string         { return b.url }

// Item is a STAC Item (GeoJSON Feature).
type Item struct {
	base
	Raw *gostac.Item
}

func (*Item) Kind() Kind { return KindItem }

// Collection is a STAC Collection.
type Collection struct {
	base
	Raw *gostac.Collection
}

func (*Collection) Kind() Kind { return KindCollection }

// Catalog is a STAC Catalog. Catalogs carry no spatial information.
type Catalog struct {
	base
	Raw *gostac.Catalog
}

func (*Catalog) Kind() Kind { return KindCatalog }

// NewEmptyCatalog returns a catalog without id, links or assets. It is the
// context for assets passed on their own.
func NewEmptyCatalog(baseURL string) *Catalog {
	return &Catalog{base: base{url: baseURL}, Raw: &gostac.Catalog{}}
}

// ItemCollection is an ItemCollection, a STAC API items response or a STAC
// API collections response. Children are Items or Collections.
type ItemCollection struct {
	base
	Children []Entity
}

func (*ItemCollection) Kind() Kind { return KindItemCollection }

// NewItemCollection builds an ItemCollection over the given children. The
// bounding box is the union of the children's boxes.
func NewItemCollection(children []Entity, links []*Link, url string) *ItemCollection {
	ic := &ItemCollection{
		base:     base{links: links, url: url},
		Children: children,
	}
	for _, child := range children {
		ic.bbox = unionBBox(ic.bbox, child.BBox())
	}
	return ic
}

// FeatureCollection returns the union of all child footprints. Children
// without geometry contribute their bounding box.
func (ic *ItemCollection) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, child := range ic.Children {
		g := child.Geometry()
		if g == nil && child.BBox() != nil {
			g, _ = geojson.NewPolygonFromBBox(child.BBox())
		}
		fc.Add(child.ID(), g)
	}
	return fc
}

func unionBBox(a, b []float64) []float64 {
	if len(b) != 4 {
		return a
	}
	if len(a) != 4 {
		return append([]float64(nil), b...)
	}
	return []float64{
		min(a[0], b[0]),
		min(a[1], b[1]),
		max(a[2], b[2]),
		max(a[3], b[3]),
	}
}

// Band describes one band of an asset, merged from eo:bands, raster:bands
// and the STAC 1.1 bands array.
type Band struct {
	Name       string   `json:"name,omitempty"`
	CommonName string   `json:"common_name,omitempty"`
	DataType   string   `json:"data_type,omitempty"`
	NoData     *float64 `json:"nodata,omitempty"`
	Minimum    *float64 `json:"minimum,omitempty"`
	Maximum    *float64 `json:"maximum,omitempty"`
}

// Asset is a downloadable resource of an entity. It is also an Entity in its
// own right so that a bare asset can be visualized.
type Asset struct {
	Key       string
	Href      string
	MediaType string
	Title     string
	Roles     []string
	Bands     []Band
	Raw       *gostac.Asset

	context Entity
}

// NewAsset creates an asset owned by context. href is resolved against the
// context's absolute URL.
func NewAsset(key, href, mediaType string, roles []string, context Entity) *Asset {
	baseURL := ""
	if context != nil {
		baseURL = context.AbsoluteURL()
	}
	return &Asset{
		Key:       key,
		Href:      ToAbsolute(href, baseURL),
		MediaType: mediaType,
		Roles:     roles,
		Raw:       &gostac.Asset{Href: href, Type: mediaType, Roles: roles},
		context:   context,
	}
}

func (*Asset) Kind() Kind                    { return KindAsset }
func (a *Asset) ID() string                  { return a.Key }
func (a *Asset) BBox() []float64             { return nil }
func (a *Asset) Geometry() *geojson.Geometry { return nil }
func (a *Asset) Assets() []*Asset            { return nil }
func (a *Asset) Links() []*Link              { return nil }
func (a *Asset) AbsoluteURL() string         { return a.Href }

// Context returns the entity owning the asset, or nil for a bare asset.
func (a *Asset) Context() Entity { return a.context }

// HasRole reports whether the asset carries role, case-insensitively.
func (a *Asset) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// NoDataValues returns the declared no-data value of every band that has one.
func (a *Asset) NoDataValues() []float64 {
	var out []float64
	for _, b := range a.Bands {
		if b.NoData != nil {
			out = append(out, *b.NoData)
		}
	}
	return out
}

// Statistics returns per-band minimum and maximum values when every band
// declares both, and false otherwise.
func (a *Asset) Statistics() (mins, maxs []float64, ok bool) {
	if len(a.Bands) == 0 {
		return nil, nil, false
	}
	for _, b := range a.Bands {
		if b.Minimum == nil || b.Maximum == nil {
			return nil, nil, false
		}
		mins = append(mins, *b.Minimum)
		maxs = append(maxs, *b.Maximum)
	}
	return mins, maxs, true
}

// AssetByKey returns the asset of e with the given key, or nil.
func AssetByKey(e Entity, key string) *Asset {
	for _, a := range e.Assets() {
		if a.Key == key {
			return a
		}
	}
	return nil
}
