package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/paulmach/orb/geojson"
)

// CreateContextGeoJSON writes the analyzed polygon as a one-feature
// collection whose properties carry the headline figures.
func CreateContextGeoJSON(c *analysis.Context, outputPath string) (string, error) {
	if c == nil || c.Polygon == nil {
		return "", analysis.ErrNoPolygon
	}

	feature := geojson.NewFeature(c.Polygon)
	feature.Properties["municipio"] = c.Location.Municipality
	feature.Properties["departamento"] = c.Location.Department
	feature.Properties["bosque_ha"] = c.ForestHa()
	feature.Properties["especies"] = c.TotalSpecies()
	if co2, ok := c.Biomass.Stat(satellite.StatCO2); ok {
		feature.Properties["co2_mg"] = co2
	}
	if canopy, ok := c.Canopy.Stat(satellite.StatMeanCanopy); ok {
		feature.Properties["dosel_m"] = canopy
	}
	layers := map[string]float64{}
	for _, layer := range c.IntersectedLayers() {
		layers[layer.Title] = layer.TotalAreaHa()
	}
	feature.Properties["capas_ha"] = layers

	fc := geojson.NewFeatureCollection()
	fc.Append(feature)
	data, err := fc.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("error encoding GeoJSON: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create result folder: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("error creating GeoJSON file: %w", err)
	}

	log.WithField("path", outputPath).Info("GeoJSON file created")
	return outputPath, nil
}
