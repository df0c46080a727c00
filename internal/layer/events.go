package layer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/rkm/stac-layer/internal/stac"
)

// Event names.
const (
	EventClick           = "click"
	EventFallback        = "fallback"
	EventImageLayerAdded = "imageLayerAdded"
	EventLoaded          = "loaded"
)

// ClickEvent is delivered for clicks on any sub-layer.
type ClickEvent struct {
	Point orb.Point
	Layer Layer
	Data  any
	Kind  DataKind
}

// FallbackEvent is delivered when a raster layer failed and is replaced by
// a tile layer.
type FallbackEvent struct {
	Asset *stac.Asset
	Error error
}

// Image layer types reported by ImageLayerAddedEvent.
const (
	ImageTypeOverview  = "overview"
	ImageTypePreview   = "preview"
	ImageTypeTileLayer = "tilelayer"
)

// ImageLayerAddedEvent is delivered when imagery was added to the composite.
type ImageLayerAddedEvent struct {
	Type  string
	Layer Layer
	Asset *stac.Asset
}

// LoadedEvent is delivered once every visualization task has settled.
type LoadedEvent struct {
	Data stac.Entity
}

// Record is an entry of the event history.
type Record struct {
	Name    string
	Payload any
}

// Emitter dispatches typed events to listeners. While orphaned (not attached
// to a host) events are queued and delivered in order on attachment.
// Listeners must not block; a panicking listener is logged and skipped.
type Emitter struct {
	logger *slog.Logger

	mu      sync.Mutex
	orphan  bool
	queue   []Record
	history []Record

	click    []func(ClickEvent)
	fallback []func(FallbackEvent)
	added    []func(ImageLayerAddedEvent)
	loaded   []func(LoadedEvent)

	// dispatch serializes delivery so that queued events keep their order
	// relative to events emitted during a flush.
	dispatch sync.Mutex
}

// NewEmitter creates an orphaned emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger, orphan: true}
}

// OnClick subscribes to clicks on any sub-layer.
func (e *Emitter) OnClick(fn func(ClickEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.click = append(e.click, fn)
}

// OnFallback subscribes to raster to tile layer fallbacks.
func (e *Emitter) OnFallback(fn func(FallbackEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = append(e.fallback, fn)
}

// OnImageLayerAdded subscribes to imagery being added.
func (e *Emitter) OnImageLayerAdded(fn func(ImageLayerAddedEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = append(e.added, fn)
}

// OnLoaded subscribes to the end of the visualization.
func (e *Emitter) OnLoaded(fn func(LoadedEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = append(e.loaded, fn)
}

// Orphan reports whether events are currently queued.
func (e *Emitter) Orphan() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orphan
}

// History returns every event emitted so far, in emission order.
func (e *Emitter) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Record(nil), e.history...)
}

func (e *Emitter) emit(name string, payload any) {
	e.mu.Lock()
	e.history = append(e.history, Record{Name: name, Payload: payload})
	if e.orphan {
		e.queue = append(e.queue, Record{Name: name, Payload: payload})
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.dispatch.Lock()
	defer e.dispatch.Unlock()
	e.deliver(Record{Name: name, Payload: payload})
}

// attach leaves the orphan state and flushes the queue.
func (e *Emitter) attach() {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	e.orphan = false
	queued := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, r := range queued {
		e.deliver(r)
	}
}

func (e *Emitter) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orphan = true
}

// release drops all listeners and queued events.
func (e *Emitter) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.click, e.fallback, e.added, e.loaded = nil, nil, nil, nil
	e.queue = nil
}

func (e *Emitter) deliver(r Record) {
	e.mu.Lock()
	click := append([]func(ClickEvent){}, e.click...)
	fallback := append([]func(FallbackEvent){}, e.fallback...)
	added := append([]func(ImageLayerAddedEvent){}, e.added...)
	loaded := append([]func(LoadedEvent){}, e.loaded...)
	e.mu.Unlock()

	switch ev := r.Payload.(type) {
	case ClickEvent:
		for _, fn := range click {
			e.call(r.Name, func() { fn(ev) })
		}
	case FallbackEvent:
		for _, fn := range fallback {
			e.call(r.Name, func() { fn(ev) })
		}
	case ImageLayerAddedEvent:
		for _, fn := range added {
			e.call(r.Name, func() { fn(ev) })
		}
	case LoadedEvent:
		for _, fn := range loaded {
			e.call(r.Name, func() { fn(ev) })
		}
	}
}

func (e *Emitter) call(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener failed",
				slog.String("event", name),
				slog.String("error", fmt.Sprint(r)))
		}
	}()
	fn()
}
