package vector

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
)

var (
	ErrSourceMissing = errors.New("vector reference store not found")
	ErrLayerNotFound = errors.New("layer not found")
)

// Mode selects how features are matched against the polygon.
type Mode int

const (
	// ModeOverlay clips every feature to the polygon. Areas are those of the
	// clipped pieces.
	ModeOverlay Mode = iota
	// ModeIntersectsJoin keeps whole features touching the polygon, unclipped.
	// Areas overstate the overlap and are only meant as a degraded answer.
	ModeIntersectsJoin
)

func (m Mode) String() string {
	if m == ModeIntersectsJoin {
		return "intersects_join"
	}
	return "overlay"
}

// Intersection is the raw output of a layer query.
type Intersection struct {
	// Columns lists the layer attributes in schema order. Empty when the
	// source cannot tell; the feature attributes are used instead.
	Columns  []string
	Features []Feature
	// Failed counts features whose exact operation errored and were skipped.
	Failed int
}

// Source reads one layer of the reference store intersected with a polygon
// given in EPSG:4326.
type Source interface {
	Intersect(ctx context.Context, layerID string, g orb.Geometry, mode Mode) (Intersection, error)
}
