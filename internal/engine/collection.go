package engine

import (
	"slices"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/stac"
)

// visualizeCollection adds the union of the children's footprints, resolving
// clicks to the children under the point, and, with previews enabled, one
// image per child.
func (r *run) visualizeCollection(ic *stac.ItemCollection) {
	v := layer.NewVector(ic.FeatureCollection(), r.opts.CollectionStyle)
	v.SetClickData(layer.ItemCollectionClickData(ic, r.log))
	r.add(v, ic)

	if !r.opts.DisplayPreview {
		return
	}
	for _, child := range ic.Children {
		r.spawn(func() {
			candidates := childImages(child)
			a := Attempt{Strategy: StrategyChildren, Assets: candidates}
			if len(candidates) > 0 {
				a.Layer = r.addImages(candidates, layer.ImageTypePreview)
				a.Succeeded = a.Layer != nil
			}
			r.record(a)
		})
	}
}

// childImages returns the thumbnail and then the overview of a child, when
// browsers can show them.
func childImages(child stac.Entity) []*stac.Asset {
	var out []*stac.Asset
	for _, role := range []string{"thumbnail", "overview"} {
		a := stac.FindAssetByRole(child.Assets(), role)
		if a != nil && a.IsBrowserImage() && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// visualizeAsset shows a bare asset. An image needs known bounds; without
// them the call fails with LocationMissing.
func (r *run) visualizeAsset(a *stac.Asset) error {
	if !a.IsRaster() && bounds.Resolve(a, r.opts.boundsOptions()) == nil {
		return stac.LocationMissing(a.Href)
	}
	r.spawn(func() {
		at := Attempt{Strategy: StrategyAssets, Assets: []*stac.Asset{a}}
		at.Layer = r.addAsset(a)
		at.Succeeded = at.Layer != nil
		r.record(at)
	})
	return nil
}
