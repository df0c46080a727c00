// Package layer models map layers and the composite layer handed back to
// callers. Layers are descriptions a map client can render; each one carries
// load and error signals fed by whoever renders or verifies it.
package layer

import (
	"sync"

	"github.com/paulmach/orb"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/raster"
	"github.com/rkm/stac-layer/pkg/geojson"
)

// Kind identifies the layer primitive.
type Kind string

const (
	KindImage  Kind = "image"
	KindTile   Kind = "tile"
	KindRaster Kind = "raster"
	KindVector Kind = "vector"
)

// Hit describes a click on a layer. Feature is the feature under the point
// for vector layers.
type Hit struct {
	Point   orb.Point
	Feature *geojson.Feature
}

// Layer is a renderable layer.
type Layer interface {
	ID() string
	Kind() Kind
	Bounds() *bounds.LatLngBounds
	// Data returns the entity or asset the layer was built for.
	Data() any
	// ClickData resolves the data delivered with a click on the layer.
	ClickData(h Hit) any
	// HitTest reports whether the point falls on the layer.
	HitTest(p orb.Point) (Hit, bool)

	OnLoad(fn func())
	OnError(fn func(error))
	OnClick(fn func(Hit))
	Click(h Hit)

	// Release drops all listeners. Signals after release are ignored.
	Release()

	base() *Base
}

// Base implements the signal and data plumbing shared by all layers.
// Load and error signals are sticky: listeners registered after a signal
// still observe it.
type Base struct {
	mu sync.Mutex

	id        string
	bounds    *bounds.LatLngBounds
	data      any
	clickData func(Hit) any

	loaded   bool
	errs     []error
	released bool

	onLoad  []func()
	onError []func(error)
	onClick []func(Hit)
}

func (b *Base) base() *Base { return b }

// ID returns the identifier assigned by the owning composite.
func (b *Base) ID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

func (b *Base) setID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.id == "" {
		b.id = id
	}
}

// Bounds returns the layer extent, or nil.
func (b *Base) Bounds() *bounds.LatLngBounds { return b.bounds }

// SetBounds sets the layer extent.
func (b *Base) SetBounds(lb *bounds.LatLngBounds) { b.bounds = lb }

// Data returns the entity bound to the layer.
func (b *Base) Data() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// SetData binds the entity delivered with clicks.
func (b *Base) SetData(data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
}

// SetClickData installs a resolver computing click data from the hit, used
// when the clicked data depends on the point.
func (b *Base) SetClickData(fn func(Hit) any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clickData = fn
}

// ClickData resolves the data delivered with a click at h.
func (b *Base) ClickData(h Hit) any {
	b.mu.Lock()
	fn, data := b.clickData, b.data
	b.mu.Unlock()
	if fn != nil {
		return fn(h)
	}
	return data
}

// HitTest matches points within the layer bounds.
func (b *Base) HitTest(p orb.Point) (Hit, bool) {
	if b.bounds == nil {
		return Hit{}, false
	}
	return Hit{Point: p}, b.bounds.Bound().Contains(p)
}

// Loaded reports whether the load signal fired.
func (b *Base) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Errors returns the errors signalled so far.
func (b *Base) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.errs...)
}

// OnLoad registers fn for the load signal, calling it at once if the
// layer already loaded.
func (b *Base) OnLoad(fn func()) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.onLoad = append(b.onLoad, fn)
	loaded := b.loaded
	b.mu.Unlock()

	if loaded {
		fn()
	}
}

// OnError registers fn for error signals, replaying the errors seen so far.
func (b *Base) OnError(fn func(error)) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.onError = append(b.onError, fn)
	errs := append([]error(nil), b.errs...)
	b.mu.Unlock()

	for _, err := range errs {
		fn(err)
	}
}

// OnClick registers fn for clicks on the layer.
func (b *Base) OnClick(fn func(Hit)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.released {
		b.onClick = append(b.onClick, fn)
	}
}

// Load fires the load signal once.
func (b *Base) Load() {
	b.mu.Lock()
	if b.loaded || b.released {
		b.mu.Unlock()
		return
	}
	b.loaded = true
	fns := append([]func(){}, b.onLoad...)
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Fail fires the error signal. Renderers may fail repeatedly.
func (b *Base) Fail(err error) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.errs = append(b.errs, err)
	fns := append([]func(error){}, b.onError...)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// Click delivers a click to the registered listeners.
func (b *Base) Click(h Hit) {
	b.mu.Lock()
	fns := append([]func(Hit){}, b.onClick...)
	b.mu.Unlock()

	for _, fn := range fns {
		fn(h)
	}
}

// Release drops all listeners.
func (b *Base) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	b.onLoad, b.onError, b.onClick = nil, nil, nil
}

// Released reports whether Release was called.
func (b *Base) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// ImageOverlay is an image stretched over a rectangle.
type ImageOverlay struct {
	Base
	URL         string
	CrossOrigin string
	Width       int
	Height      int
	Format      string
}

// NewImageOverlay creates an image overlay bound to b.
func NewImageOverlay(url string, b bounds.LatLngBounds, crossOrigin string) *ImageOverlay {
	l := &ImageOverlay{URL: url, CrossOrigin: crossOrigin}
	l.bounds = &b
	return l
}

// Kind returns KindImage.
func (*ImageOverlay) Kind() Kind { return KindImage }

// TileLayer is an XYZ tile layer.
type TileLayer struct {
	Base
	Template string
	// Params fill the non-coordinate placeholders of the template.
	Params     map[string]string
	Subdomains []string
}

// NewTileLayer creates a tile layer. b may be nil.
func NewTileLayer(template string, b *bounds.LatLngBounds, params map[string]string) *TileLayer {
	l := &TileLayer{Template: template, Params: params}
	l.bounds = b
	return l
}

// Kind returns KindTile.
func (*TileLayer) Kind() Kind { return KindTile }

// RasterLayer renders a GeoTIFF client-side.
type RasterLayer struct {
	Base
	Raster     *raster.Raster
	Resolution int
	// CalcStats asks the renderer to compute statistics from pixel data.
	CalcStats bool
	NoData    *float64
	Channels  []int
	Alphas    map[int]raster.Alpha
	ColorFn   raster.ColorFn

	statsMu sync.RWMutex
	stats   raster.Stats
}

// NewRasterLayer creates a raster layer over r.
func NewRasterLayer(r *raster.Raster, b *bounds.LatLngBounds) *RasterLayer {
	l := &RasterLayer{Raster: r}
	l.bounds = b
	return l
}

// Kind returns KindRaster.
func (*RasterLayer) Kind() Kind { return KindRaster }

// Stats returns the current band statistics.
func (l *RasterLayer) Stats() raster.Stats {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()
	return l.stats
}

// SetStats replaces the band statistics, as a renderer does once it has
// computed them.
func (l *RasterLayer) SetStats(s raster.Stats) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	l.stats = s
}

// Vector is a GeoJSON layer.
type Vector struct {
	Base
	Features *geojson.FeatureCollection

	styleMu sync.RWMutex
	style   Style
}

// NewVector creates a vector layer. Its bounds are the extent of the
// features.
func NewVector(fc *geojson.FeatureCollection, style Style) *Vector {
	var b *bounds.LatLngBounds
	if bound, ok := fc.Bound(); ok {
		lb := bounds.FromBound(bound)
		b = &lb
	}
	v := &Vector{Features: fc, style: style}
	v.bounds = b
	return v
}

// NewVectorFromGeometry wraps a single geometry.
func NewVectorFromGeometry(id string, g *geojson.Geometry, style Style) *Vector {
	fc := geojson.NewFeatureCollection()
	fc.Add(id, g)
	return NewVector(fc, style)
}

// Kind returns KindVector.
func (*Vector) Kind() Kind { return KindVector }

// Style returns the current style.
func (v *Vector) Style() Style {
	v.styleMu.RLock()
	defer v.styleMu.RUnlock()
	return v.style
}

// SetStyle replaces the style.
func (v *Vector) SetStyle(s Style) {
	v.styleMu.Lock()
	defer v.styleMu.Unlock()
	v.style = s
}

// HitTest returns the first feature containing the point.
func (v *Vector) HitTest(p orb.Point) (Hit, bool) {
	for _, f := range v.Features.Features {
		ok, err := f.Geometry.Contains(p)
		if err == nil && ok {
			return Hit{Point: p, Feature: f}, true
		}
	}
	return Hit{}, false
}

// Style holds path styling options of vector layers.
type Style struct {
	Color       string   `json:"color,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	FillColor   string   `json:"fillColor,omitempty"`
	FillOpacity *float64 `json:"fillOpacity,omitempty"`
}

// Merge returns s overridden by the fields set in o.
func (s Style) Merge(o Style) Style {
	if o.Color != "" {
		s.Color = o.Color
	}
	if o.Weight != nil {
		s.Weight = o.Weight
	}
	if o.Opacity != nil {
		s.Opacity = o.Opacity
	}
	if o.FillColor != "" {
		s.FillColor = o.FillColor
	}
	if o.FillOpacity != nil {
		s.FillOpacity = o.FillOpacity
	}
	return s
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
