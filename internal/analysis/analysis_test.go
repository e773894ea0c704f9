package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = orb.Polygon{{{-75, 4}, {-74.9, 4}, {-74.9, 4.1}, {-75, 4.1}, {-75, 4}}}

var testLayers = []properties.Layer{
	{ID: "frontera", Attribute: "elemento", Title: "Frontera Agrícola"},
	{ID: "consejos", Attribute: "NOMBRE", Title: "Consejos Comunitarios"},
	{ID: "poblados", Attribute: "NOM_CPOB", Title: "Centros Poblados"},
}

type fakeSource struct {
	mu       sync.Mutex
	calls    int
	features map[string][]vector.Feature
	errs     map[string]error
}

func (f *fakeSource) Intersect(_ context.Context, layerID string, _ orb.Geometry, _ vector.Mode) (vector.Intersection, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.errs[layerID]; err != nil {
		return vector.Intersection{}, err
	}
	return vector.Intersection{Features: f.features[layerID]}, nil
}

type fakeRaster struct{ summary raster.Summary }

func (f fakeRaster) SummarizeRaster(context.Context, orb.Geometry) (raster.Summary, error) {
	return f.summary, nil
}

type fakeRichness struct{ table []biodiversity.GroupRichness }

func (f fakeRichness) FetchRichness(context.Context, orb.Geometry) []biodiversity.GroupRichness {
	return f.table
}

type fakeSatellite struct {
	biomass    satellite.Result
	canopyWait time.Duration
	biomassErr error
}

func (f fakeSatellite) FetchBiomass(context.Context, orb.Geometry) (satellite.Result, error) {
	return f.biomass, f.biomassErr
}

func (f fakeSatellite) FetchCanopy(ctx context.Context, _ orb.Geometry) (satellite.Result, error) {
	if f.canopyWait > 0 {
		time.Sleep(f.canopyWait)
	}
	return satellite.Result{Stats: []satellite.Stat{{Name: satellite.StatMeanCanopy, Value: 14.2}}}, nil
}

type fakeNotifier struct {
	place    string
	failures []string
}

func (f *fakeNotifier) SendPartialFailure(_ context.Context, place string, failures []string) error {
	f.place, f.failures = place, failures
	return nil
}

func attrs(kv ...string) map[string]string {
	m := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func newFixture() (*fakeSource, Config) {
	source := &fakeSource{
		features: map[string][]vector.Feature{
			"frontera": {
				{Attributes: attrs("elemento", "Frontera agrícola nacional"), AreaHa: 120.5},
			},
			"consejos": {
				{Attributes: attrs("NOMBRE", "Bajo Mira", "municipio", "Tumaco", "departamen", "Nariño"), AreaHa: 30},
			},
			"poblados": {
				{Attributes: attrs("NOM_CPOB", "La Guayacana", "municipio", "Barbacoas", "departamen", "Nariño"), AreaHa: 80},
			},
		},
	}
	config := Config{
		VectorSource: source,
		Layers:       testLayers,
		Raster: fakeRaster{summary: raster.Summary{Rows: []raster.Row{
			{Code: 1, Label: "Bosque Estable", Pixels: 100, AreaHa: 9, Percent: 25},
			{Code: 3, Label: "Regeneración", Pixels: 300, AreaHa: 27, Percent: 75},
		}}},
		Biodiversity: fakeRichness{table: []biodiversity.GroupRichness{
			{Group: "Aves", TaxonKey: 212, Species: 320},
			{Group: "Anfibios", TaxonKey: 131, Species: 31},
		}},
		Satellite: fakeSatellite{biomass: satellite.Result{Stats: satellite.BiomassStats(100, 50)}},
		Timeout:   time.Second,
	}
	return source, config
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	assert.Nil(t, s.Polygon())
	assert.False(t, s.Context().Processed)

	assert.Error(t, s.SetPolygon(orb.LineString{{0, 0}, {1, 1}}))
	require.NoError(t, s.SetPolygon(square))
	assert.Equal(t, square, s.Polygon())

	s.ClearPolygon()
	assert.Nil(t, s.Polygon())
	assert.Nil(t, s.Context().Polygon)
}

func TestSetPolygonCopiesInput(t *testing.T) {
	s := NewSession()
	input := orb.Polygon{{{-75, 4}, {-74.9, 4}, {-74.9, 4.1}, {-75, 4.1}, {-75, 4}}}
	require.NoError(t, s.SetPolygon(input))
	input[0][0] = orb.Point{0, 0}
	assert.Equal(t, orb.Point{-75, 4}, s.Polygon().(orb.Polygon)[0][0])
}

func TestRunWithoutPolygon(t *testing.T) {
	_, config := newFixture()
	_, err := NewRunner(config).Run(context.Background(), NewSession())
	assert.ErrorIs(t, err, ErrNoPolygon)
}

func TestRunBuildsContext(t *testing.T) {
	_, config := newFixture()
	s := NewSession()
	require.NoError(t, s.SetPolygon(square))

	var progressed []string
	runner := NewRunner(config)
	runner.OnProgress(func(source string) { progressed = append(progressed, source) })

	result, err := runner.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Same(t, result, s.Context())
	assert.Len(t, progressed, runner.Steps())

	assert.True(t, result.Processed)
	require.Len(t, result.Vector, 3)
	assert.Equal(t, "Frontera Agrícola", result.Vector[0].Title)
	assert.Equal(t, 120.5, result.Vector[0].TotalAreaHa())

	// first layer in table order with administrative attributes wins
	assert.Equal(t, vector.Location{Municipality: "Tumaco", Department: "Nariño"}, result.Location)
	assert.Equal(t, "Tumaco, Nariño", result.Place())

	assert.Equal(t, 9.0, result.ForestHa())
	assert.Equal(t, 351, result.TotalSpecies())
	mean, ok := result.Biomass.Stat(satellite.StatMeanBiomass)
	assert.True(t, ok)
	assert.Equal(t, 100.0, mean)
	assert.Empty(t, result.Failures())
}

func TestRunContainsFailures(t *testing.T) {
	source, config := newFixture()
	source.errs = map[string]error{"consejos": errors.New("corrupt layer")}
	config.Satellite = fakeSatellite{biomassErr: satellite.ErrUnavailable, canopyWait: 300 * time.Millisecond}
	config.Timeout = 50 * time.Millisecond
	notifier := &fakeNotifier{}
	config.Notifier = notifier

	s := NewSession()
	require.NoError(t, s.SetPolygon(square))
	result, err := NewRunner(config).Run(context.Background(), s)
	require.NoError(t, err)

	consejos, ok := result.Layer("Consejos Comunitarios")
	require.True(t, ok)
	assert.True(t, consejos.Empty())
	assert.Equal(t, "Barbacoas", result.Location.Municipality)

	assert.True(t, result.Biomass.Empty())
	assert.True(t, result.Canopy.Empty())
	assert.False(t, result.Vector[0].Empty())

	failures := result.Failures()
	assert.Len(t, failures, 3)
	assert.Equal(t, failures, notifier.failures)
	assert.Equal(t, "Barbacoas, Nariño", notifier.place)

	var timedOut bool
	for _, w := range result.Warnings {
		if w.Source == SourceCanopy {
			timedOut = true
			assert.Contains(t, w.Message, ErrTimeout.Error())
		}
	}
	assert.True(t, timedOut)
}

func TestWithinReportsTimeout(t *testing.T) {
	_, err := within(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)

	value, err := within(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

// gdalSource holds the GDAL lock for busy on every layer.
type gdalSource struct{ busy time.Duration }

func (f gdalSource) Intersect(ctx context.Context, layerID string, _ orb.Geometry, _ vector.Mode) (vector.Intersection, error) {
	var out vector.Intersection
	err := utils.WithGDAL(ctx, func() error {
		select {
		case <-time.After(f.busy):
		case <-ctx.Done():
			return ctx.Err()
		}
		out.Features = []vector.Feature{{Attributes: attrs("nombre", layerID), AreaHa: 1}}
		return nil
	})
	return out, err
}

type gdalRaster struct{ busy time.Duration }

func (f gdalRaster) SummarizeRaster(ctx context.Context, _ orb.Geometry) (raster.Summary, error) {
	var summary raster.Summary
	err := utils.WithGDAL(ctx, func() error {
		time.Sleep(f.busy)
		summary.Rows = []raster.Row{{Code: 1, Label: "Bosque Estable", Pixels: 1, AreaHa: 0.09, Percent: 100}}
		return nil
	})
	return summary, err
}

func TestRunQueuedGDALSourcesDoNotTimeOut(t *testing.T) {
	var layers []properties.Layer
	for _, id := range []string{"l1", "l2", "l3", "l4", "l5", "l6"} {
		layers = append(layers, properties.Layer{ID: id, Attribute: "nombre", Title: id})
	}
	notifier := &fakeNotifier{}
	config := Config{
		VectorSource: gdalSource{busy: 60 * time.Millisecond},
		Layers:       layers,
		Raster:       gdalRaster{busy: 60 * time.Millisecond},
		Timeout:      100 * time.Millisecond,
		Notifier:     notifier,
	}

	s := NewSession()
	require.NoError(t, s.SetPolygon(square))
	result, err := NewRunner(config).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Empty(t, result.Failures())
	assert.Nil(t, notifier.failures)
	for _, summary := range result.Vector {
		assert.False(t, summary.Empty(), summary.LayerID)
	}
	assert.False(t, result.Raster.Empty())
}

func TestWithinGDALTimesOutWhileHoldingTheLock(t *testing.T) {
	_, err := withinGDAL(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		return 0, utils.WithGDAL(ctx, func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunUsesSessionVectorCache(t *testing.T) {
	source, config := newFixture()
	s := NewSession()
	require.NoError(t, s.SetPolygon(square))
	runner := NewRunner(config)

	_, err := runner.Run(context.Background(), s)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 3, source.calls)

	s.Reset()
	assert.Zero(t, s.VectorCache.Len())
}

func TestContextJSONIncludesPolygon(t *testing.T) {
	c := Context{Polygon: square, Processed: true}
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, true, decoded["processed"])
	polygonJSON, ok := decoded["polygon"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Polygon", polygonJSON["type"])
}

func TestPlaceDefaults(t *testing.T) {
	assert.Equal(t, "Desconocido, Colombia", (&Context{}).Place())
}
