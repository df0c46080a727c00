package layer

import (
	"math"
	"strconv"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/raster"
	"github.com/rkm/stac-layer/internal/stac"
	"github.com/rkm/stac-layer/pkg/geojson"
)

// Plan is the serializable form of a composite: what a map client needs to
// render it.
type Plan struct {
	Bounds *bounds.LatLngBounds `json:"bounds"`
	Layers []PlanLayer           `json:"layers"`
	Events []PlanEvent           `json:"events"`
}

// PlanLayer describes one sub-layer. ZIndex follows insertion order.
type PlanLayer struct {
	ID        string               `json:"id"`
	Type      Kind                 `json:"type"`
	ZIndex    int                  `json:"zIndex"`
	Footprint bool                 `json:"footprint,omitempty"`
	Bounds    *bounds.LatLngBounds `json:"bounds,omitempty"`
	Data      *PlanData            `json:"data,omitempty"`

	URL         string            `json:"url,omitempty"`
	CrossOrigin string            `json:"crossOrigin,omitempty"`
	Template    string            `json:"template,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	Subdomains  []string          `json:"subdomains,omitempty"`

	Resolution int                  `json:"resolution,omitempty"`
	Bands      []int                `json:"bands,omitempty"`
	CalcStats  bool                 `json:"calcStats,omitempty"`
	NoData     any                  `json:"nodata,omitempty"`
	Projection int                  `json:"projection,omitempty"`
	Stats      *raster.Stats        `json:"stats,omitempty"`
	Alphas     map[int]raster.Alpha `json:"alphas,omitempty"`

	Style    *Style `json:"style,omitempty"`
	GeoJSON  any    `json:"geojson,omitempty"`
	Features int    `json:"features,omitempty"`
}

// PlanData identifies the data bound to a layer.
type PlanData struct {
	Kind DataKind `json:"kind"`
	ID   string   `json:"id,omitempty"`
	Href string   `json:"href,omitempty"`
}

// PlanEvent summarizes an emitted event.
type PlanEvent struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Layer string `json:"layer,omitempty"`
	Asset string `json:"asset,omitempty"`
	Error string `json:"error,omitempty"`
}

// BuildPlan captures the current state of c.
func BuildPlan(c *Composite) *Plan {
	p := &Plan{
		Bounds: c.Bounds(),
		Layers: make([]PlanLayer, 0, c.Len()),
		Events: make([]PlanEvent, 0),
	}

	footprint := c.Footprint()
	for i, l := range c.Layers() {
		pl := PlanLayer{
			ID:        l.ID(),
			Type:      l.Kind(),
			ZIndex:    i,
			Footprint: footprint != nil && Layer(footprint) == l,
			Bounds:    l.Bounds(),
			Data:      DescribeData(l.Data()),
		}

		switch v := l.(type) {
		case *ImageOverlay:
			pl.URL = v.URL
			pl.CrossOrigin = v.CrossOrigin
		case *TileLayer:
			pl.Template = v.Template
			pl.Params = v.Params
			pl.Subdomains = v.Subdomains
		case *RasterLayer:
			if v.Raster != nil {
				pl.URL = v.Raster.URL
				pl.Projection = v.Raster.Projection
			}
			pl.Resolution = v.Resolution
			pl.Bands = v.Channels
			pl.CalcStats = v.CalcStats
			pl.NoData = jsonNumber(v.NoData)
			if s := v.Stats(); len(s.Mins) > 0 {
				pl.Stats = &s
			}
			if len(v.Alphas) > 0 {
				pl.Alphas = v.Alphas
			}
		case *Vector:
			style := v.Style()
			pl.Style = &style
			pl.GeoJSON = v.Features
			pl.Features = len(v.Features.Features)
		}
		p.Layers = append(p.Layers, pl)
	}

	for _, r := range c.History() {
		p.Events = append(p.Events, describeEvent(r))
	}
	return p
}

// DescribeData identifies clicked or bound data.
func DescribeData(data any) *PlanData {
	kind := ClassifyData(data)
	if kind == DataUnknown {
		return nil
	}
	d := &PlanData{Kind: kind}
	switch v := data.(type) {
	case *stac.Asset:
		d.ID, d.Href = v.Key, v.Href
	case stac.Entity:
		d.ID, d.Href = v.ID(), v.AbsoluteURL()
	case *geojson.Feature:
		d.ID = v.ID
	case []*stac.Asset:
		d.ID = strconv.Itoa(len(v))
	}
	return d
}

func describeEvent(r Record) PlanEvent {
	ev := PlanEvent{Name: r.Name}
	switch v := r.Payload.(type) {
	case ImageLayerAddedEvent:
		ev.Type = v.Type
		if v.Layer != nil {
			ev.Layer = v.Layer.ID()
		}
		if v.Asset != nil {
			ev.Asset = v.Asset.Key
		}
	case FallbackEvent:
		if v.Asset != nil {
			ev.Asset = v.Asset.Key
		}
		ev.Error = errString(v.Error)
	case ClickEvent:
		if v.Layer != nil {
			ev.Layer = v.Layer.ID()
		}
		ev.Type = string(v.Kind)
	}
	return ev
}

// jsonNumber keeps non-finite values representable in JSON.
func jsonNumber(v *float64) any {
	if v == nil {
		return nil
	}
	switch {
	case math.IsNaN(*v):
		return "nan"
	case math.IsInf(*v, 1):
		return "inf"
	case math.IsInf(*v, -1):
		return "-inf"
	}
	return *v
}
