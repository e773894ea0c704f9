package raster

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/paulmach/orb"
)

const NoValidPixelsWarning = "no valid pixels under the polygon"

type Aggregator struct {
	reader Reader
}

func NewAggregator(reader Reader) *Aggregator {
	return &Aggregator{reader: reader}
}

// SummarizeRaster masks the raster to g and tallies its classes. Invalid
// geometries, a missing raster and empty masks yield an empty summary with a
// warning.
func (a *Aggregator) SummarizeRaster(ctx context.Context, g orb.Geometry) (Summary, error) {
	if err := polygon.Validate(g); err != nil {
		return Summary{Warnings: []string{err.Error()}}, nil
	}

	window, err := a.reader.Window(ctx, g)
	if errors.Is(err, ErrSourceMissing) {
		return Summary{Warnings: []string{err.Error()}}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("raster window: %w", err)
	}

	tally := Mask(window)
	if tally.Total() == 0 {
		return Summary{Warnings: []string{NoValidPixelsWarning}}, nil
	}

	log.WithFields(log.Fields{
		"pixels":     tally.Total(),
		"classes":    len(tally.Counts),
		"geographic": window.Geographic,
	}).Debug("raster summarized")

	return Summary{Rows: tally.Rows()}, nil
}
