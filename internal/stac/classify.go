package stac

import (
	"mime"
	"strings"
)

// Media types that browsers render directly.
var browserImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Media types of GeoTIFF containers without parameters.
var geoTIFFTypes = map[string]bool{
	"application/geotiff":    true,
	"image/vnd.stac.geotiff": true,
}

func parseMediaType(mediaType string) (string, map[string]string) {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return "", nil
	}
	mt, params, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt, _, _ = strings.Cut(mediaType, ";")
		return strings.ToLower(strings.TrimSpace(mt)), nil
	}
	return mt, params
}

// IsBrowserImageType reports whether the media type can be shown as a plain
// image overlay.
func IsBrowserImageType(mediaType string) bool {
	mt, _ := parseMediaType(mediaType)
	return browserImageTypes[mt]
}

// IsRasterType reports whether the media type declares a GeoTIFF.
func IsRasterType(mediaType string) bool {
	mt, params := parseMediaType(mediaType)
	if geoTIFFTypes[mt] {
		return true
	}
	return mt == "image/tiff" && strings.EqualFold(params["application"], "geotiff")
}

// IsCOGType reports whether the media type declares a cloud-optimized GeoTIFF.
func IsCOGType(mediaType string) bool {
	if !IsRasterType(mediaType) {
		return false
	}
	_, params := parseMediaType(mediaType)
	return strings.EqualFold(params["profile"], "cloud-optimized") ||
		strings.EqualFold(params["cloud-optimized"], "true")
}

// IsBrowserImage reports whether the asset can be shown as a plain image.
func (a *Asset) IsBrowserImage() bool { return IsBrowserImageType(a.MediaType) }

// IsRaster reports whether the asset is a GeoTIFF.
func (a *Asset) IsRaster() bool { return IsRasterType(a.MediaType) }

// IsCOG reports whether the asset is a cloud-optimized GeoTIFF.
func (a *Asset) IsCOG() bool { return IsCOGType(a.MediaType) }

// MatchesRaster applies the raster acceptance policy: cloud-optimized only
// unless any GeoTIFF is allowed.
func (a *Asset) MatchesRaster(anyGeoTIFF bool) bool {
	if anyGeoTIFF {
		return a.IsRaster()
	}
	return a.IsCOG()
}

// FindAssetByRole returns the first asset in declaration order whose key
// equals role or whose roles contain role, case-insensitively. Each asset is
// tested for a key match and then a role match before moving on, so
// declaration order wins over the kind of match.
func FindAssetByRole(assets []*Asset, role string) *Asset {
	for _, a := range assets {
		if strings.EqualFold(a.Key, role) {
			return a
		}
		if a.HasRole(role) {
			return a
		}
	}
	return nil
}

// FirstRaster returns the first asset in declaration order accepted by the
// raster policy.
func FirstRaster(assets []*Asset, anyGeoTIFF bool) *Asset {
	for _, a := range assets {
		if a.MatchesRaster(anyGeoTIFF) {
			return a
		}
	}
	return nil
}

// PreviewLinks returns the links with relation "preview" as assets owned by
// e. Links with a declared type that browsers cannot render are skipped.
func PreviewLinks(e Entity) []*Asset {
	var out []*Asset
	for _, l := range e.Links() {
		if l == nil || !strings.EqualFold(l.Rel, "preview") {
			continue
		}
		if l.Type != "" && !IsBrowserImageType(l.Type) {
			continue
		}
		a := NewAsset("preview", l.Href, l.Type, []string{"preview"}, e)
		a.Title = l.Title
		out = append(out, a)
	}
	return out
}
