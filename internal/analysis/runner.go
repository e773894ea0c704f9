package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/metrics"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

var ErrTimeout = errors.New("source timed out")

const (
	SourceRaster       = "raster"
	SourceBiodiversity = "biodiversity"
	SourceBiomass      = "biomass"
	SourceCanopy       = "canopy"
)

type RichnessFetcher interface {
	FetchRichness(ctx context.Context, g orb.Geometry) []biodiversity.GroupRichness
}

type SatelliteFetcher interface {
	FetchBiomass(ctx context.Context, g orb.Geometry) (satellite.Result, error)
	FetchCanopy(ctx context.Context, g orb.Geometry) (satellite.Result, error)
}

type RasterSummarizer interface {
	SummarizeRaster(ctx context.Context, g orb.Geometry) (raster.Summary, error)
}

type Notifier interface {
	SendPartialFailure(ctx context.Context, place string, failures []string) error
}

type Config struct {
	VectorSource vector.Source
	Layers       []properties.Layer
	VectorMode   vector.Mode
	Raster       RasterSummarizer
	Biodiversity RichnessFetcher
	Satellite    SatelliteFetcher
	Timeout      time.Duration
	Notifier     Notifier
}

type Runner struct {
	config   Config
	progress func(source string)
}

func NewRunner(config Config) *Runner {
	if config.Timeout <= 0 {
		config.Timeout = properties.SourceTimeout()
	}
	if config.Layers == nil {
		config.Layers = properties.DefaultLayers
	}
	return &Runner{config: config}
}

// OnProgress registers fn to be called once per finished source.
func (r *Runner) OnProgress(fn func(source string)) {
	r.progress = fn
}

// Steps is the number of progress callbacks a run produces.
func (r *Runner) Steps() int {
	return len(r.config.Layers) + 4
}

// within runs fn with its own deadline. A source that overruns returns
// ErrTimeout even if fn ignores its context.
func within[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return budgeted(ctx, timeout, false, fn)
}

// withinGDAL is within for sources that queue on the GDAL lock. Their
// deadline starts once the lock is held.
func withinGDAL[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return budgeted(ctx, timeout, true, fn)
}

func budgeted[T any](ctx context.Context, timeout time.Duration, deferred bool, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	start := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer == nil {
			timer = time.AfterFunc(timeout, func() { cancel(ErrTimeout) })
		}
	}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()
	if deferred {
		ctx = utils.WithDeferredClock(ctx, start)
	} else {
		start()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(ctx)
		done <- outcome{value, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(context.Cause(ctx), ErrTimeout) {
			return o.value, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

// Run computes every source for the session polygon concurrently and
// installs the resulting context. Failures are contained per source and
// reported as warnings.
func (r *Runner) Run(ctx context.Context, s *Session) (*Context, error) {
	g, generation := s.snapshot()
	if g == nil {
		return nil, ErrNoPolygon
	}

	var (
		mu        sync.Mutex
		result    = &Context{Polygon: g}
		summaries = make([]vector.Summary, len(r.config.Layers))
		locations = make([]vector.Location, len(r.config.Layers))
	)
	warn := func(source, message string, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		result.Warnings = append(result.Warnings, Warning{Source: source, Message: message, Failed: failed})
	}
	done := func(source string, start time.Time, err error) {
		outcome := "ok"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		} else if err != nil {
			outcome = "error"
		}
		metrics.ObserveSource(source, outcome, start)
		if err != nil {
			log.WithError(err).WithField("source", source).Warn("diagnostic source degraded")
			warn(source, err.Error(), true)
		}
		if r.progress != nil {
			mu.Lock()
			r.progress(source)
			mu.Unlock()
		}
	}

	aggregator := vector.NewAggregator(r.config.VectorSource, r.config.Layers, s.VectorCache).WithMode(r.config.VectorMode)

	eg, ctx := errgroup.WithContext(ctx)
	for i, layer := range r.config.Layers {
		i, layer := i, layer
		if r.config.VectorSource == nil {
			summaries[i] = vector.Summary{LayerID: layer.ID, Title: layer.Title}
			continue
		}
		eg.Go(func() error {
			start := time.Now()
			res, err := withinGDAL(ctx, r.config.Timeout, func(ctx context.Context) (vector.Result, error) {
				summary, location, err := aggregator.SummarizeLayer(ctx, g, layer.ID)
				return vector.Result{Summary: summary, Location: location}, err
			})
			if err != nil {
				res.Summary = vector.Summary{LayerID: layer.ID, Title: layer.Title}
			}
			for _, w := range res.Summary.Warnings {
				warn(layer.Title, w, false)
			}
			summaries[i], locations[i] = res.Summary, res.Location
			done(layer.Title, start, err)
			return nil
		})
	}

	if r.config.Raster != nil {
		eg.Go(func() error {
			start := time.Now()
			summary, err := withinGDAL(ctx, r.config.Timeout, func(ctx context.Context) (raster.Summary, error) {
				return r.config.Raster.SummarizeRaster(ctx, g)
			})
			for _, w := range summary.Warnings {
				warn(SourceRaster, w, false)
			}
			mu.Lock()
			result.Raster = summary
			mu.Unlock()
			done(SourceRaster, start, err)
			return nil
		})
	}

	if r.config.Biodiversity != nil {
		eg.Go(func() error {
			start := time.Now()
			table, err := within(ctx, r.config.Timeout, func(ctx context.Context) ([]biodiversity.GroupRichness, error) {
				return r.config.Biodiversity.FetchRichness(ctx, g), nil
			})
			for _, row := range table {
				if row.Error != "" {
					warn(SourceBiodiversity, fmt.Sprintf("%s: %s", row.Group, row.Error), true)
				}
			}
			mu.Lock()
			result.Biodiversity = table
			mu.Unlock()
			done(SourceBiodiversity, start, err)
			return nil
		})
	}

	if r.config.Satellite != nil {
		eg.Go(func() error {
			start := time.Now()
			biomass, err := within(ctx, r.config.Timeout, func(ctx context.Context) (satellite.Result, error) {
				return r.config.Satellite.FetchBiomass(ctx, g)
			})
			mu.Lock()
			result.Biomass = biomass
			mu.Unlock()
			done(SourceBiomass, start, err)
			return nil
		})
		eg.Go(func() error {
			start := time.Now()
			canopy, err := within(ctx, r.config.Timeout, func(ctx context.Context) (satellite.Result, error) {
				return r.config.Satellite.FetchCanopy(ctx, g)
			})
			mu.Lock()
			result.Canopy = canopy
			mu.Unlock()
			done(SourceCanopy, start, err)
			return nil
		})
	}

	_ = eg.Wait()

	result.Vector = summaries
	for _, location := range locations {
		if !location.IsZero() {
			result.Location = location
			break
		}
	}
	result.Processed = true
	result.GeneratedAt = time.Now()

	failures := result.Failures()
	outcome := "complete"
	if len(failures) > 0 {
		outcome = "partial"
		r.notify(result.Place(), failures)
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	log.WithFields(log.Fields{
		"place":    result.Place(),
		"layers":   len(result.IntersectedLayers()),
		"species":  result.TotalSpecies(),
		"failures": len(failures),
	}).Info("diagnostic finished")

	if err := s.commit(generation, result); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) notify(place string, failures []string) {
	if r.config.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.config.Notifier.SendPartialFailure(ctx, place, failures); err != nil {
		log.WithError(err).Warn("failed to send diagnostic notification")
	}
}
