package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = orb.Polygon{{{-75, 4}, {-74.9, 4}, {-74.9, 4.1}, {-75, 4.1}, {-75, 4}}}

func fullContext() *analysis.Context {
	return &analysis.Context{
		Polygon:   square,
		Processed: true,
		Location:  vector.Location{Municipality: "Mocoa", Department: "Putumayo"},
		Raster: raster.Summary{Rows: []raster.Row{
			{Code: 1, Label: "Bosque Estable", Pixels: 100, AreaHa: 9, Percent: 25},
			{Code: 4, Label: "No Bosque estable", Pixels: 300, AreaHa: 27, Percent: 75},
		}},
		Vector: []vector.Summary{
			{LayerID: "frontera_agricola_jun2025", Title: "Frontera Agrícola", Rows: []vector.Row{
				{Category: "A", AreaHa: 3, Count: 1},
				{Category: "B", AreaHa: 2, Count: 1},
				{Category: "C", AreaHa: 1, Count: 1},
				{Category: "D", AreaHa: 1, Count: 1},
				{Category: "E", AreaHa: 1, Count: 1},
				{Category: "F", AreaHa: 0.5, Count: 1},
			}},
			{LayerID: "ley_70_1993", Title: "Ley 70 de 1993"},
		},
		Biodiversity: []biodiversity.GroupRichness{{Group: "Aves", TaxonKey: 212, Species: 320}, {Group: "Anfibios", TaxonKey: 131, Species: 31}},
		Biomass:      satellite.Result{Stats: satellite.BiomassStats(1000, 10)},
		Canopy:       satellite.Result{Stats: []satellite.Stat{{Name: satellite.StatMeanCanopy, Value: 17.35}}},
		Warnings:     []analysis.Warning{{Source: "canopy", Message: "source timed out", Failed: true}},
	}
}

func TestGenerate(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	require.NoError(t, Generate(context.Background(), fullContext(), &buf, now))
	html := buf.String()

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "Bitácora Territorial del Siglo XXI")
	assert.Contains(t, html, "Tierra, Vida y Paz")
	assert.Contains(t, html, "<b>Fecha:</b> 2025-03-14")
	assert.Contains(t, html, "Mocoa, Putumayo")
	// forest rows match on the legend text
	assert.Contains(t, html, "cobertura boscosa de 36.0 hectáreas")
	assert.Contains(t, html, "18,350 toneladas de CO2e")
	assert.Contains(t, html, "Categorías identificadas: A, B, C, D, E.")
	assert.NotContains(t, html, "<h3>Ley 70 de 1993</h3>")
	assert.Contains(t, html, "es de 17.35 metros")
	assert.Contains(t, html, "351 especies")
	assert.Contains(t, html, "canopy: source timed out")
	assert.Equal(t, 3, strings.Count(html, `src="data:image/png;base64,`))
}

func TestGenerateEmptyAnalysis(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(context.Background(), &analysis.Context{Processed: true}, &buf, time.Now()))
	html := buf.String()

	assert.Contains(t, html, "Sin datos de cobertura boscosa.")
	assert.Contains(t, html, "El área no presenta intersecciones")
	assert.Contains(t, html, "No se encontraron registros biológicos directos.")
	assert.Contains(t, html, "Sin datos satelitales disponibles.")
	assert.Contains(t, html, "predio ubicado en No determinado")
	assert.NotContains(t, html, "data:image/png")
}

func TestGenerateRequiresProcessedContext(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Generate(context.Background(), &analysis.Context{}, &buf, time.Now()), ErrNotProcessed)
	assert.ErrorIs(t, Generate(context.Background(), nil, &buf, time.Now()), ErrNotProcessed)
}

func TestThousands(t *testing.T) {
	assert.Equal(t, "0", thousands(0.2))
	assert.Equal(t, "999", thousands(999))
	assert.Equal(t, "1,000", thousands(999.6))
	assert.Equal(t, "1,234,567", thousands(1234567.4))
	assert.Equal(t, "-12,000", thousands(-12000))
}

func TestExportTables(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tablas")
	paths, err := ExportTables(fullContext(), dir)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"coberturas.csv", "capa_frontera_agricola_jun2025.csv", "biodiversidad.csv", "satelite.csv"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "coberturas.csv"))
	require.NoError(t, err)
	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bosque Estable", rows[0]["Leyenda"])
	assert.Equal(t, "9", rows[0]["Área (ha)"])

	data, err = os.ReadFile(filepath.Join(dir, "satelite.csv"))
	require.NoError(t, err)
	rows, err = gocsv.CSVToMaps(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, "Dosel", rows[4]["Producto"])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "runap_registro_unico_nacional_ap", fileName("runap__registro_unico_nacional_ap"))
	assert.Equal(t, "ley_70_1993", fileName("Ley 70 1993"))
}
