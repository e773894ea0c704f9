package analysis

import (
	"errors"
	"sync"

	"github.com/forest-guardian/ecosystem-dashboard/internal/cache"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/paulmach/orb"
)

var (
	ErrNoPolygon      = errors.New("no polygon loaded")
	ErrPolygonChanged = errors.New("polygon changed while the diagnostic was running")
)

// Session owns the polygon of interest, the last analysis context and the
// vector summary cache of one user.
type Session struct {
	mu          sync.RWMutex
	polygon     orb.Geometry
	context     *Context
	generation  int
	VectorCache *cache.MemoryCache[vector.Result]
}

func NewSession() *Session {
	return &Session{
		context:     &Context{},
		VectorCache: cache.NewMemoryCache[vector.Result](),
	}
}

// SetPolygon replaces the polygon and discards the previous analysis.
func (s *Session) SetPolygon(g orb.Geometry) error {
	if err := polygon.Validate(g); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polygon = orb.Clone(g)
	s.context = &Context{Polygon: s.polygon}
	s.generation++
	return nil
}

func (s *Session) ClearPolygon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polygon = nil
	s.context = &Context{}
	s.generation++
}

// Reset clears the polygon, the analysis and the vector cache.
func (s *Session) Reset() {
	s.ClearPolygon()
	s.VectorCache.Clear()
}

func (s *Session) Polygon() orb.Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polygon
}

// Context returns the current snapshot. Callers must not mutate it.
func (s *Session) Context() *Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

func (s *Session) snapshot() (orb.Geometry, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polygon, s.generation
}

// commit installs c unless the polygon was replaced after generation.
func (s *Session) commit(generation int, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return ErrPolygonChanged
	}
	s.context = c
	return nil
}
