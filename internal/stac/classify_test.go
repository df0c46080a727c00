package stac

import "testing"

func TestMediaTypePredicates(t *testing.T) {
	tests := []struct {
		mediaType string
		browser   bool
		raster    bool
		cog       bool
	}{
		{"image/png", true, false, false},
		{"image/jpeg", true, false, false},
		{"IMAGE/JPG", true, false, false},
		{"image/tiff", false, false, false},
		{"image/tiff; application=geotiff", false, true, false},
		{"image/tiff; application=geotiff;", false, true, false},
		{"image/tiff; application=geotiff; profile=cloud-optimized", false, true, true},
		{"image/vnd.stac.geotiff; cloud-optimized=true", false, true, true},
		{"application/geotiff", false, true, false},
		{"application/json", false, false, false},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			if got := IsBrowserImageType(tt.mediaType); got != tt.browser {
				t.Errorf("IsBrowserImageType() = %v, want %v", got, tt.browser)
			}
			if got := IsRasterType(tt.mediaType); got != tt.raster {
				t.Errorf("IsRasterType() = %v, want %v", got, tt.raster)
			}
			if got := IsCOGType(tt.mediaType); got != tt.cog {
				t.Errorf("IsCOGType() = %v, want %v", got, tt.cog)
			}
		})
	}
}

func TestFindAssetByRole_DeclarationOrderWins(t *testing.T) {
	assets := []*Asset{
		{Key: "data", Roles: []string{"overview"}},
		{Key: "overview", Roles: []string{}},
	}

	got := FindAssetByRole(assets, "overview")
	if got != assets[0] {
		t.Fatalf("FindAssetByRole() = %+v, want the first asset", got)
	}
}

func TestFindAssetByRole(t *testing.T) {
	assets := []*Asset{
		{Key: "B01", Roles: []string{"data"}},
		{Key: "Thumbnail", Roles: nil},
		{Key: "preview", Roles: []string{"THUMBNAIL"}},
	}

	if got := FindAssetByRole(assets, "thumbnail"); got != assets[1] {
		t.Errorf("key match should be case-insensitive, got %+v", got)
	}
	if got := FindAssetByRole(assets, "data"); got != assets[0] {
		t.Errorf("role match failed, got %+v", got)
	}
	if got := FindAssetByRole(assets, "visual"); got != nil {
		t.Errorf("expected no match, got %+v", got)
	}
	if got := FindAssetByRole(nil, "visual"); got != nil {
		t.Errorf("expected no match on empty list, got %+v", got)
	}
}

func TestFirstRaster(t *testing.T) {
	assets := []*Asset{
		{Key: "thumb", MediaType: "image/png"},
		{Key: "plain", MediaType: "image/tiff; application=geotiff"},
		{Key: "cog", MediaType: "image/tiff; application=geotiff; profile=cloud-optimized"},
	}

	if got := FirstRaster(assets, false); got == nil || got.Key != "cog" {
		t.Errorf("FirstRaster(cog only) = %v, want cog", got)
	}
	if got := FirstRaster(assets, true); got == nil || got.Key != "plain" {
		t.Errorf("FirstRaster(any) = %v, want plain", got)
	}
	if got := FirstRaster(assets[:1], true); got != nil {
		t.Errorf("FirstRaster() = %v, want nil", got)
	}
}

func TestPreviewLinks(t *testing.T) {
	item := &Item{}
	item.url = "https://example.com/items/a.json"
	item.links = []*Link{
		{Rel: "self", Href: "https://example.com/items/a.json"},
		{Rel: "preview", Href: "preview.png", Type: "image/png"},
		{Rel: "preview", Href: "preview.html", Type: "text/html"},
		{Rel: "Preview", Href: "https://cdn.example.com/p.jpg"},
	}

	got := PreviewLinks(item)
	if len(got) != 2 {
		t.Fatalf("PreviewLinks() returned %d assets, want 2", len(got))
	}
	if got[0].Href != "https://example.com/items/preview.png" {
		t.Errorf("relative preview href not resolved: %s", got[0].Href)
	}
	if got[1].Context() != item {
		t.Error("preview asset should be owned by the item")
	}
}
