package layer

import (
	"slices"
	"sync"

	"github.com/paulmach/orb"
)

// Scene is an in-memory Host keeping layers in z-order, bottom first.
type Scene struct {
	mu    sync.Mutex
	stack []Layer
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{}
}

// AddLayer puts l on top. Adding a present layer is a no-op.
func (s *Scene) AddLayer(l Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.stack, l) {
		s.stack = append(s.stack, l)
	}
}

// RemoveLayer takes l off the scene.
func (s *Scene) RemoveLayer(l Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.stack, l); i >= 0 {
		s.stack = slices.Delete(s.stack, i, i+1)
	}
}

// BringToFront moves l to the top.
func (s *Scene) BringToFront(l Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.stack, l); i >= 0 {
		s.stack = append(slices.Delete(s.stack, i, i+1), l)
	}
}

// BringToBack moves l to the bottom.
func (s *Scene) BringToBack(l Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.stack, l); i >= 0 {
		s.stack = slices.Insert(slices.Delete(s.stack, i, i+1), 0, l)
	}
}

// Layers returns the layers bottom first.
func (s *Scene) Layers() []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.stack)
}

// Click delivers a click to the topmost layer under the point. It reports
// whether any layer was hit.
func (s *Scene) Click(p orb.Point) bool {
	s.mu.Lock()
	stack := slices.Clone(s.stack)
	s.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		if h, ok := stack[i].HitTest(p); ok {
			stack[i].Click(h)
			return true
		}
	}
	return false
}
