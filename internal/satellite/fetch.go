package satellite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/paulmach/orb"
)

const (
	StatMeanBiomass  = "Media (Mg/ha)"
	StatTotalBiomass = "Biomasa Total (Mg)"
	StatCarbon       = "Carbono (Mg)"
	StatCO2          = "Captura Potencial CO2 (Mg)"
	StatMeanCanopy   = "Promedio (m)"
)

type Stat struct {
	Name  string  `json:"name" csv:"Indicador"`
	Value float64 `json:"value" csv:"Valor"`
}

// Result is a tile layer plus the summary statistics over the polygon.
// A zero Result means the product is unavailable.
type Result struct {
	TileURL string                `json:"tile_url,omitempty"`
	Stats   []Stat                `json:"stats,omitempty"`
	Vis     *properties.VisParams `json:"vis,omitempty"`
}

func (r Result) Empty() bool {
	return len(r.Stats) == 0 && r.TileURL == ""
}

func (r Result) Stat(name string) (float64, bool) {
	for _, s := range r.Stats {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

type Fetcher struct {
	engine Engine
}

func NewFetcher(engine Engine) *Fetcher {
	return &Fetcher{engine: engine}
}

// BiomassStats derives totals from the mean biomass density and the
// polygon area.
func BiomassStats(meanMgHa, areaHa float64) []Stat {
	total := meanMgHa * areaHa
	carbon := total * properties.CarbonFraction
	return []Stat{
		{Name: StatMeanBiomass, Value: utils.Round2(meanMgHa)},
		{Name: StatTotalBiomass, Value: utils.Round2(total)},
		{Name: StatCarbon, Value: utils.Round2(carbon)},
		{Name: StatCO2, Value: utils.Round2(carbon * properties.CO2PerCarbon)},
	}
}

func (f *Fetcher) FetchBiomass(ctx context.Context, g orb.Geometry) (Result, error) {
	if !polygon.IsValid(g) {
		return Result{}, polygon.Validate(g)
	}
	region, err := geometryValue(polygon.OrientCCW(g))
	if err != nil {
		return Result{}, err
	}
	image := clipped(biomassImage(region), region)

	mean, err := f.mean(ctx, image, region, properties.BiomassBand)
	if err != nil {
		return Result{}, fmt.Errorf("biomass statistics: %w", err)
	}
	vis := properties.BiomassVis
	return Result{
		TileURL: f.tileURL(ctx, image, properties.BiomassBand, vis),
		Stats:   BiomassStats(mean, polygon.AreaHa(g)),
		Vis:     &vis,
	}, nil
}

func (f *Fetcher) FetchCanopy(ctx context.Context, g orb.Geometry) (Result, error) {
	if !polygon.IsValid(g) {
		return Result{}, polygon.Validate(g)
	}
	region, err := geometryValue(polygon.OrientCCW(g))
	if err != nil {
		return Result{}, err
	}
	image := clipped(canopyImage(region), region)

	mean, err := f.mean(ctx, image, region, properties.CanopyBand)
	if err != nil {
		return Result{}, fmt.Errorf("canopy statistics: %w", err)
	}
	vis := properties.CanopyVis
	return Result{
		TileURL: f.tileURL(ctx, image, properties.CanopyBand, vis),
		Stats:   []Stat{{Name: StatMeanCanopy, Value: utils.Round2(mean)}},
		Vis:     &vis,
	}, nil
}

// mean reduces band over region. A null reduction, as returned when no
// pixel falls inside the polygon, counts as zero.
func (f *Fetcher) mean(ctx context.Context, image, region value, band string) (float64, error) {
	raw, err := f.engine.Compute(ctx, expression(meanOverRegion(image, region)))
	if err != nil {
		return 0, err
	}
	var values map[string]*float64
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &values); err != nil {
			return 0, fmt.Errorf("unexpected reduction result: %w", err)
		}
	}
	if v := values[band]; v != nil {
		return *v, nil
	}
	return 0, nil
}

// tileURL is best effort: the statistics are still useful without a map layer.
func (f *Fetcher) tileURL(ctx context.Context, image value, band string, vis properties.VisParams) string {
	url, err := f.engine.TileURL(ctx, expression(image), band, vis)
	if err != nil {
		log.WithError(err).WithField("band", band).Warn("earth engine tile layer unavailable")
		return ""
	}
	return url
}
