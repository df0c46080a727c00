package engine

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/builder"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/raster"
	"github.com/rkm/stac-layer/internal/stac"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeImages loads every image unless told otherwise.
type fakeImages struct {
	mu    sync.Mutex
	calls []string
	// null makes the builder return nil for the URL.
	null map[string]bool
	// broken makes the returned layer signal an error.
	broken map[string]error
	built  []*layer.ImageOverlay
}

func (f *fakeImages) BuildImageOverlay(_ context.Context, url string, b bounds.LatLngBounds, crossOrigin string) *layer.ImageOverlay {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.null[url] {
		return nil
	}
	l := layer.NewImageOverlay(url, b, crossOrigin)
	if err := f.broken[url]; err != nil {
		l.Fail(err)
	} else {
		l.Load()
	}
	f.built = append(f.built, l)
	return l
}

func (f *fakeImages) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type tileCall struct {
	template string
	bounds   *bounds.LatLngBounds
	params   map[string]string
}

type fakeTiles struct {
	mu    sync.Mutex
	calls []tileCall
	err   error
	// delay stalls every build.
	delay time.Duration
}

func (f *fakeTiles) BuildTileLayer(_ context.Context, template string, b *bounds.LatLngBounds, opts builder.TileOptions) (*layer.TileLayer, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tileCall{template: template, bounds: b, params: opts.Params})
	if f.err != nil {
		return nil, f.err
	}
	l := layer.NewTileLayer(template, b, opts.Params)
	l.Load()
	return l, nil
}

func (f *fakeTiles) Calls() []tileCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type fakeRasters struct {
	mu    sync.Mutex
	calls []string
	opts  []builder.RasterOptions
	// errs makes the build itself fail for the URL.
	errs map[string]error
	// failWith returns layers already in the failed state, or failing
	// after failAfter when set.
	failWith  error
	failAfter time.Duration
	built     []*layer.RasterLayer
}

func (f *fakeRasters) BuildRasterLayer(_ context.Context, asset *stac.Asset, opts builder.RasterOptions) (*layer.RasterLayer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, asset.Href)
	f.opts = append(f.opts, opts)
	if err := f.errs[asset.Href]; err != nil {
		return nil, err
	}
	l := layer.NewRasterLayer(&raster.Raster{URL: asset.Href, Projection: 4326}, opts.Bounds)
	l.Resolution = opts.Resolution
	l.Channels = opts.Channels
	switch {
	case f.failWith != nil && f.failAfter > 0:
		err := f.failWith
		time.AfterFunc(f.failAfter, func() { l.Fail(err) })
	case f.failWith != nil:
		l.Fail(f.failWith)
	default:
		l.Load()
	}
	f.built = append(f.built, l)
	return l, nil
}

func (f *fakeRasters) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeRasters) Built() []*layer.RasterLayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.built)
}

type fixture struct {
	images  *fakeImages
	tiles   *fakeTiles
	rasters *fakeRasters
	engine  *Engine
}

func newFixture() *fixture {
	f := &fixture{
		images:  &fakeImages{},
		tiles:   &fakeTiles{},
		rasters: &fakeRasters{},
	}
	f.engine = New(Builders{Image: f.images, Tile: f.tiles, Raster: f.rasters}, discardLogger(), nil).
		WithAttemptTimeout(200 * time.Millisecond)
	return f
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func layerURL(l layer.Layer) string {
	switch v := l.(type) {
	case *layer.ImageOverlay:
		return v.URL
	case *layer.TileLayer:
		return v.Template
	case *layer.RasterLayer:
		return v.Raster.URL
	}
	return ""
}

func kinds(c *layer.Composite) []layer.Kind {
	var out []layer.Kind
	for _, l := range c.Layers() {
		out = append(out, l.Kind())
	}
	return out
}

func eventNames(c *layer.Composite) []string {
	var out []string
	for _, r := range c.History() {
		out = append(out, r.Name)
	}
	return out
}

func countEvents(c *layer.Composite, name string) int {
	n := 0
	for _, r := range c.History() {
		if r.Name == name {
			n++
		}
	}
	return n
}
