package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/cache"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/paulmach/orb"
)

// Result is what the aggregator memoizes per polygon and layer.
type Result struct {
	Summary  Summary  `json:"summary"`
	Location Location `json:"location"`
}

type Aggregator struct {
	source Source
	layers []properties.Layer
	mode   Mode
	cache  cache.CacheService[Result]
}

// NewAggregator binds a source to a session cache. A nil cache disables
// memoization.
func NewAggregator(source Source, layers []properties.Layer, c cache.CacheService[Result]) *Aggregator {
	return &Aggregator{source: source, layers: layers, mode: ModeOverlay, cache: c}
}

// WithMode returns a copy using mode. ModeIntersectsJoin is a degraded mode
// and has to be asked for explicitly.
func (a *Aggregator) WithMode(mode Mode) *Aggregator {
	clone := *a
	clone.mode = mode
	return &clone
}

func (a *Aggregator) Layers() []properties.Layer {
	return a.layers
}

// SummarizeLayer intersects layerID with g and groups the result. Invalid
// geometries and a missing reference store produce an empty summary, not an
// error.
func (a *Aggregator) SummarizeLayer(ctx context.Context, g orb.Geometry, layerID string) (Summary, Location, error) {
	layer, ok := properties.LayerByID(a.layers, layerID)
	if !ok {
		layer = properties.Layer{ID: layerID, Title: layerID}
	}
	empty := Summary{LayerID: layer.ID, Title: layer.Title}

	if err := polygon.Validate(g); err != nil {
		empty.Warnings = append(empty.Warnings, err.Error())
		return empty, Location{}, nil
	}

	var key string
	if a.cache != nil {
		key = a.cache.GenerateKey(polygon.CanonicalWKT(g), layerID, a.mode)
		if cached, ok := a.cache.Get(key); ok {
			return cached.Summary, cached.Location, nil
		}
	}

	intersection, err := a.source.Intersect(ctx, layerID, g, a.mode)
	if errors.Is(err, ErrSourceMissing) {
		empty.Warnings = append(empty.Warnings, err.Error())
		return empty, Location{}, nil
	}
	if err != nil {
		return empty, Location{}, fmt.Errorf("layer %s: %w", layerID, err)
	}

	summary := empty
	columns := intersection.Columns
	if len(columns) == 0 {
		columns = Columns(intersection.Features)
	}
	summary.Grouping = ResolveGroupingColumn(layer.Attribute, columns)
	summary.Rows = Summarize(intersection.Features, summary.Grouping)
	if intersection.Failed > 0 {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%d features skipped after a failed %s operation", intersection.Failed, a.mode))
	}
	location := Locate(intersection.Features)

	log.WithFields(log.Fields{
		"layer":    layerID,
		"mode":     a.mode.String(),
		"features": len(intersection.Features),
		"grouping": summary.Grouping.Kind.String(),
	}).Debug("layer summarized")

	if a.cache != nil {
		if err := a.cache.Set(key, Result{Summary: summary, Location: location}); err != nil {
			log.WithError(err).Warn("failed to cache layer summary")
		}
	}
	return summary, location, nil
}
