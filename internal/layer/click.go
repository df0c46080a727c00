package layer

import (
	"log/slog"

	"github.com/rkm/stac-layer/internal/stac"
	"github.com/rkm/stac-layer/pkg/geojson"
)

// DataKind classifies clicked data.
type DataKind string

const (
	DataCollection DataKind = "Collection"
	DataFeature    DataKind = "Feature"
	DataAssets     DataKind = "Assets"
	DataAsset      DataKind = "Asset"
	DataUnknown    DataKind = ""
)

// ClassifyData returns the kind of clicked data.
func ClassifyData(data any) DataKind {
	switch d := data.(type) {
	case *stac.Catalog, *stac.Collection, *stac.ItemCollection:
		return DataCollection
	case *stac.Item, *geojson.Feature:
		return DataFeature
	case []*stac.Asset:
		return DataAssets
	case *stac.Asset:
		if d != nil {
			return DataAsset
		}
	}
	return DataUnknown
}

// ItemCollectionClickData resolves clicks on an item collection footprint to
// the children containing the point: several matches are delivered as a new
// collection, a single match as that child. If nothing matches or a
// containment test fails, the feature hit by the renderer is delivered.
func ItemCollectionClickData(ic *stac.ItemCollection, logger *slog.Logger) func(Hit) any {
	return func(h Hit) any {
		var matches []stac.Entity
		for _, child := range ic.Children {
			g := child.Geometry()
			if g == nil {
				if bbox := child.BBox(); bbox != nil {
					g, _ = geojson.NewPolygonFromBBox(bbox)
				}
			}
			if g == nil {
				continue
			}
			ok, err := g.Contains(h.Point)
			if err != nil {
				logger.Debug("point in polygon test failed",
					slog.String("id", child.ID()),
					slog.String("error", err.Error()))
				return defaultHit(h)
			}
			if ok {
				matches = append(matches, child)
			}
		}

		switch len(matches) {
		case 0:
			return defaultHit(h)
		case 1:
			return matches[0]
		default:
			return stac.NewItemCollection(matches, nil, ic.AbsoluteURL())
		}
	}
}

func defaultHit(h Hit) any {
	if h.Feature == nil {
		return nil
	}
	return h.Feature
}
