package builder

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/stac"
)

// TileContext describes the asset a tile URL template is built for.
type TileContext struct {
	Href   string
	Key    string
	Asset  *stac.Asset
	Entity stac.Entity
	Bounds *bounds.LatLngBounds
	IsCOG  bool
	// Bands are the zero-based band indices requested for display.
	Bands []int
}

// TemplateFunc builds a tile URL template for an asset.
type TemplateFunc func(TileContext) string

// TiTilerTemplate returns a TemplateFunc rendering COGs through the TiTiler
// instance at base.
func TiTilerTemplate(base string) TemplateFunc {
	base = strings.TrimRight(base, "/")
	return func(tc TileContext) string {
		q := "url=" + url.QueryEscape(tc.Href)
		seen := make(map[int]bool)
		for _, b := range tc.Bands {
			if seen[b] {
				continue
			}
			seen[b] = true
			q += "&bidx=" + strconv.Itoa(b+1)
		}
		return base + "/cog/tiles/WebMercatorQuad/{z}/{x}/{y}?" + q
	}
}
