package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// around is a box in EPSG:4326 centred near the origin of EPSG:3116, so it
// covers roughly x 999170..1000830 and y 999490..1001150 in that CRS.
var around = orb.Polygon{{{-74.085, 4.595}, {-74.07, 4.595}, {-74.07, 4.61}, {-74.085, 4.61}, {-74.085, 4.595}}}

// writeLayer stores a GeoJSON FeatureCollection as a single-layer GeoPackage
// named layerID, with srs assigned to its coordinates.
func writeLayer(t *testing.T, layerID, srs, collection string) string {
	t.Helper()
	godal.RegisterAll()
	dir := t.TempDir()
	src := filepath.Join(dir, layerID+".geojson")
	require.NoError(t, os.WriteFile(src, []byte(collection), 0o644))

	ds, err := godal.Open(src, godal.VectorOnly())
	require.NoError(t, err)
	defer ds.Close()

	dst := filepath.Join(dir, "datos.gpkg")
	out, err := ds.VectorTranslate(dst, []string{"-f", "GPKG", "-nln", layerID, "-a_srs", srs})
	require.NoError(t, err)
	require.NoError(t, out.Close())
	return dst
}

const zonas = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"OBJECTID":1,"categoria":"A"},"geometry":{"type":"Polygon","coordinates":[[[1000000,1000000],[1000200,1000000],[1000200,1000100],[1000000,1000100],[1000000,1000000]]]}},
{"type":"Feature","properties":{"OBJECTID":2,"categoria":"A"},"geometry":{"type":"Polygon","coordinates":[[[1000000,1000100],[1000300,1000100],[1000300,1000200],[1000000,1000200],[1000000,1000100]]]}},
{"type":"Feature","properties":{"OBJECTID":3,"categoria":"B"},"geometry":{"type":"Polygon","coordinates":[[[1000000,1000200],[1000100,1000200],[1000100,1000300],[1000000,1000300],[1000000,1000200]]]}},
{"type":"Feature","properties":{"OBJECTID":4,"categoria":"C"},"geometry":{"type":"Polygon","coordinates":[[[1100000,1000000],[1100100,1000000],[1100100,1000100],[1100000,1000100],[1100000,1000000]]]}}
]}`

func TestGeoPackageSummarizesProjectedLayer(t *testing.T) {
	path := writeLayer(t, "zonas", "EPSG:3116", zonas)
	layers := []properties.Layer{{ID: "zonas", Attribute: "categoria", Title: "Zonas"}}
	agg := NewAggregator(NewGeoPackageSource(path), layers, nil)

	summary, _, err := agg.SummarizeLayer(context.Background(), around, "zonas")
	require.NoError(t, err)
	assert.Equal(t, Resolution{ResolvedConfigured, "categoria"}, summary.Grouping)
	assert.Equal(t, []Row{
		{Category: "A", AreaHa: 5, Count: 2},
		{Category: "B", AreaHa: 1, Count: 1},
	}, summary.Rows)
	assert.Empty(t, summary.Warnings)
}

func TestGeoPackageSkipsFeaturesOutsideBoundingBox(t *testing.T) {
	path := writeLayer(t, "zonas", "EPSG:3116", zonas)
	source := NewGeoPackageSource(path)

	for _, mode := range []Mode{ModeOverlay, ModeIntersectsJoin} {
		in, err := source.Intersect(context.Background(), "zonas", around, mode)
		require.NoError(t, err)
		assert.Len(t, in.Features, 3, mode.String())
		for _, f := range in.Features {
			assert.NotEqual(t, "C", f.Attributes["categoria"], mode.String())
		}
		assert.Zero(t, in.Failed)
	}
}

func TestGeoPackageColumnsFollowSchemaOrder(t *testing.T) {
	path := writeLayer(t, "zonas", "EPSG:3116", zonas)

	in, err := NewGeoPackageSource(path).Intersect(context.Background(), "zonas", around, ModeOverlay)
	require.NoError(t, err)
	objectID, category := -1, -1
	for i, column := range in.Columns {
		switch column {
		case "OBJECTID":
			objectID = i
		case "categoria":
			category = i
		}
	}
	require.GreaterOrEqual(t, objectID, 0)
	assert.Greater(t, category, objectID)

	agg := NewAggregator(NewGeoPackageSource(path), nil, nil)
	summary, _, err := agg.SummarizeLayer(context.Background(), around, "zonas")
	require.NoError(t, err)
	assert.Equal(t, Resolution{ResolvedGeneric, "OBJECTID"}, summary.Grouping)
}

func TestGeoPackageOverlayClipsAndJoinDoesNot(t *testing.T) {
	// 300 m x 100 m straddling the east edge of the query box
	path := writeLayer(t, "borde", "EPSG:3116", `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"nombre":"Borde"},"geometry":{"type":"Polygon","coordinates":[[[1000700,1000000],[1001000,1000000],[1001000,1000100],[1000700,1000100],[1000700,1000000]]]}}
]}`)
	source := NewGeoPackageSource(path)

	overlay, err := source.Intersect(context.Background(), "borde", around, ModeOverlay)
	require.NoError(t, err)
	require.Len(t, overlay.Features, 1)
	assert.Greater(t, overlay.Features[0].AreaHa, 0.5)
	assert.Less(t, overlay.Features[0].AreaHa, 2.0)

	join, err := source.Intersect(context.Background(), "borde", around, ModeIntersectsJoin)
	require.NoError(t, err)
	require.Len(t, join.Features, 1)
	assert.InDelta(t, 3.0, join.Features[0].AreaHa, 1e-6)
}

func TestGeoPackageGeographicLayerMeasuredInMeters(t *testing.T) {
	// 0.001 x 0.001 degrees near 4.6 N is about 110.9 m x 110.6 m
	path := writeLayer(t, "predios", "EPSG:4326", `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"nombre":"Lote"},"geometry":{"type":"Polygon","coordinates":[[[-74.078,4.600],[-74.077,4.600],[-74.077,4.601],[-74.078,4.601],[-74.078,4.600]]]}}
]}`)

	in, err := NewGeoPackageSource(path).Intersect(context.Background(), "predios", around, ModeOverlay)
	require.NoError(t, err)
	require.Len(t, in.Features, 1)
	assert.InDelta(t, 1.227, in.Features[0].AreaHa, 0.02)
}

func TestGeoPackageMissingLayer(t *testing.T) {
	path := writeLayer(t, "zonas", "EPSG:3116", zonas)
	_, err := NewGeoPackageSource(path).Intersect(context.Background(), "no_existe", around, ModeOverlay)
	assert.ErrorIs(t, err, ErrLayerNotFound)

	_, err = NewGeoPackageSource(filepath.Join(t.TempDir(), "nada.gpkg")).Intersect(context.Background(), "zonas", around, ModeOverlay)
	assert.ErrorIs(t, err, ErrSourceMissing)
}
