package layer

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/stac"
)

var (
	// ErrSealed is returned when adding layers to a composite whose
	// visualization has completed.
	ErrSealed = errors.New("composite layer is sealed")
	// ErrNotMember is returned for operations on layers the composite does
	// not own.
	ErrNotMember = errors.New("layer is not part of the composite")
)

// Host is the map a composite is attached to.
type Host interface {
	AddLayer(l Layer)
	RemoveLayer(l Layer)
	BringToFront(l Layer)
	BringToBack(l Layer)
}

// Composite owns the sub-layers built for one visualization and exposes
// bounds, z-order and event operations over them.
type Composite struct {
	*Emitter

	data   stac.Entity
	logger *slog.Logger

	mu         sync.RWMutex
	layers     []Layer
	footprint  *Vector
	footStyle  Style
	sealed     bool
	host       Host
	nextID     int
	subscribed map[Layer]bool
}

// NewComposite creates an empty, orphaned composite for data.
func NewComposite(data stac.Entity, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{
		Emitter:    NewEmitter(logger),
		data:       data,
		logger:     logger,
		subscribed: make(map[Layer]bool),
	}
}

// Data returns the visualized entity.
func (c *Composite) Data() stac.Entity { return c.data }

// Layers returns the sub-layers in insertion order.
func (c *Composite) Layers() []Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.layers)
}

// Len returns the number of sub-layers.
func (c *Composite) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layers)
}

// Has reports whether l is a sub-layer.
func (c *Composite) Has(l Layer) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.layers, l)
}

// Add appends a sub-layer bound to data.
func (c *Composite) Add(l Layer, data any) error {
	c.mu.Lock()
	if c.sealed {
		c.mu.Unlock()
		return ErrSealed
	}
	c.insert(l, data, len(c.layers))
	host := c.host
	c.mu.Unlock()

	if host != nil {
		host.AddLayer(l)
	}
	c.restyleFootprint()
	return nil
}

// Remove detaches a sub-layer. Removal is allowed after sealing.
func (c *Composite) Remove(l Layer) bool {
	c.mu.Lock()
	i := slices.Index(c.layers, l)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.layers = slices.Delete(c.layers, i, i+1)
	if c.footprint != nil && Layer(c.footprint) == l {
		c.footprint = nil
	}
	host := c.host
	c.mu.Unlock()

	if host != nil {
		host.RemoveLayer(l)
	}
	c.restyleFootprint()
	return true
}

// Replace puts next in the place of prev, or appends it when prev was
// already removed. It is the only way to add layers after sealing.
func (c *Composite) Replace(prev, next Layer, data any) {
	c.mu.Lock()
	i := slices.Index(c.layers, prev)
	removed := i >= 0
	if removed {
		c.layers = slices.Delete(c.layers, i, i+1)
	} else {
		i = len(c.layers)
	}
	c.insert(next, data, i)
	host := c.host
	c.mu.Unlock()

	if host != nil {
		if removed {
			host.RemoveLayer(prev)
		}
		host.AddLayer(next)
	}
	c.restyleFootprint()
}

func (c *Composite) insert(l Layer, data any, at int) {
	c.nextID++
	b := l.base()
	b.setID(fmt.Sprintf("layer-%d", c.nextID))
	if data != nil {
		b.SetData(data)
	}
	if !c.subscribed[l] {
		c.subscribed[l] = true
		l.OnClick(func(h Hit) { c.routeClick(l, h) })
	}
	c.layers = slices.Insert(c.layers, at, l)
}

// SetFootprint designates v as the footprint layer. v must be a sub-layer.
// Its fill turns transparent whenever imagery is present.
func (c *Composite) SetFootprint(v *Vector, style Style) error {
	c.mu.Lock()
	if !slices.Contains(c.layers, Layer(v)) {
		c.mu.Unlock()
		return ErrNotMember
	}
	c.footprint = v
	c.footStyle = style
	c.mu.Unlock()

	c.restyleFootprint()
	return nil
}

// Footprint returns the footprint layer, or nil.
func (c *Composite) Footprint() *Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.footprint
}

// HasImagery reports whether any sub-layer besides the footprint exists.
func (c *Composite) HasImagery() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasImagery()
}

func (c *Composite) hasImagery() bool {
	for _, l := range c.layers {
		if l.Kind() != KindVector {
			return true
		}
	}
	return false
}

func (c *Composite) restyleFootprint() {
	c.mu.RLock()
	fp, style, imagery := c.footprint, c.footStyle, c.hasImagery()
	c.mu.RUnlock()
	if fp == nil {
		return
	}

	if imagery {
		style = style.Merge(Style{FillOpacity: Float(0)})
	}
	fp.SetStyle(style)
}

// NotifyImageLayerAdded emits imageLayerAdded and updates the footprint.
func (c *Composite) NotifyImageLayerAdded(ev ImageLayerAddedEvent) {
	c.restyleFootprint()
	c.emit(EventImageLayerAdded, ev)
}

// NotifyFallback emits fallback.
func (c *Composite) NotifyFallback(ev FallbackEvent) {
	c.logger.Info("activating fallback", slog.String("error", errString(ev.Error)))
	c.emit(EventFallback, ev)
}

// NotifyLoaded emits loaded.
func (c *Composite) NotifyLoaded() {
	c.emit(EventLoaded, LoadedEvent{Data: c.data})
}

// Seal makes the composite immutable except for removal and replacement.
func (c *Composite) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Sealed reports whether Seal was called.
func (c *Composite) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// Bounds returns the extent of the first vector sub-layer, or nil when the
// composite has none.
func (c *Composite) Bounds() *bounds.LatLngBounds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		if l.Kind() == KindVector && l.Bounds() != nil {
			b := *l.Bounds()
			return &b
		}
	}
	c.logger.Info("unable to get bounds without a vector layer")
	return nil
}

// AddTo attaches the composite to host and flushes queued events.
func (c *Composite) AddTo(host Host) {
	c.mu.Lock()
	c.host = host
	layers := slices.Clone(c.layers)
	c.mu.Unlock()

	for _, l := range layers {
		host.AddLayer(l)
	}
	c.attach()
}

// RemoveFrom detaches the composite from its host. Later events are queued
// again.
func (c *Composite) RemoveFrom() {
	c.mu.Lock()
	host := c.host
	c.host = nil
	layers := slices.Clone(c.layers)
	c.mu.Unlock()

	if host != nil {
		for _, l := range layers {
			host.RemoveLayer(l)
		}
	}
	c.detach()
}

// BringToFront raises every sub-layer in order.
func (c *Composite) BringToFront() {
	c.mu.RLock()
	host, layers := c.host, slices.Clone(c.layers)
	c.mu.RUnlock()
	if host == nil {
		return
	}
	for _, l := range layers {
		host.BringToFront(l)
	}
}

// BringToBack lowers every sub-layer in order.
func (c *Composite) BringToBack() {
	c.mu.RLock()
	host, layers := c.host, slices.Clone(c.layers)
	c.mu.RUnlock()
	if host == nil {
		return
	}
	for _, l := range layers {
		host.BringToBack(l)
	}
}

// Release detaches the composite and drops every listener.
func (c *Composite) Release() {
	c.RemoveFrom()
	c.mu.Lock()
	layers := slices.Clone(c.layers)
	c.mu.Unlock()
	for _, l := range layers {
		l.Release()
	}
	c.release()
}

func (c *Composite) routeClick(l Layer, h Hit) {
	data := l.ClickData(h)
	c.emit(EventClick, ClickEvent{
		Point: h.Point,
		Layer: l,
		Data:  data,
		Kind:  ClassifyData(data),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
