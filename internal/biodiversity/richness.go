package biodiversity

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/cache"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/gammazero/workerpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

type GroupRichness struct {
	Group    string `json:"group" csv:"Grupo"`
	TaxonKey int    `json:"taxon_key" csv:"Taxon"`
	Species  int    `json:"species" csv:"Especies (GBIF)"`
	Error    string `json:"error,omitempty" csv:"-"`
}

func TotalSpecies(table []GroupRichness) int {
	total := 0
	for _, row := range table {
		total += row.Species
	}
	return total
}

type Fetcher struct {
	counter Counter
	taxa    []properties.Taxon
	workers int
	timeout time.Duration
	cache   cache.CacheService[int]
}

// NewFetcher builds a fetcher over the fixed taxon groups. timeout bounds each
// group query; c may be nil.
func NewFetcher(counter Counter, timeout time.Duration, c cache.CacheService[int]) *Fetcher {
	return &Fetcher{
		counter: counter,
		taxa:    properties.Taxa,
		workers: properties.BiodiversityWorkers,
		timeout: timeout,
		cache:   c,
	}
}

// QueryGeometry is the simplified, counter-clockwise WKT sent to GBIF.
func QueryGeometry(g orb.Geometry) string {
	simplified := polygon.Simplify(g, properties.SimplifyTolerance)
	return wkt.MarshalString(polygon.OrientCCW(simplified))
}

// FetchRichness queries every taxon group concurrently. A failing group
// counts zero species; the table is sorted by species descending.
func (f *Fetcher) FetchRichness(ctx context.Context, g orb.Geometry) []GroupRichness {
	if !polygon.IsValid(g) {
		return nil
	}
	query := QueryGeometry(g)

	var (
		mu      sync.Mutex
		results = make(map[int]GroupRichness, len(f.taxa))
	)

	wp := workerpool.New(f.workers)
	for _, taxon := range f.taxa {
		taxon := taxon
		wp.Submit(func() {
			row := GroupRichness{Group: taxon.Group, TaxonKey: taxon.Key}
			count, err := f.count(ctx, query, taxon.Key)
			if err != nil {
				log.WithError(err).WithField("group", taxon.Group).Warn("biodiversity query failed")
				row.Error = err.Error()
			} else {
				row.Species = count
			}

			mu.Lock()
			results[taxon.Key] = row
			mu.Unlock()
		})
	}
	wp.StopWait()

	table := make([]GroupRichness, 0, len(results))
	for _, taxon := range f.taxa {
		table = append(table, results[taxon.Key])
	}
	return utils.SortDesc(table, func(r GroupRichness) float64 { return float64(r.Species) }, func(r GroupRichness) string { return r.Group })
}

func (f *Fetcher) count(ctx context.Context, query string, taxonKey int) (int, error) {
	var key string
	if f.cache != nil {
		key = f.cache.GenerateKey(query, taxonKey)
		if count, ok := f.cache.Get(key); ok {
			return count, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	count, err := f.counter.SpeciesCount(ctx, query, taxonKey)
	if err != nil {
		return 0, err
	}

	if f.cache != nil {
		if err := f.cache.Set(key, count); err != nil {
			log.WithError(err).Warn("failed to cache species count")
		}
	}
	return count, nil
}
