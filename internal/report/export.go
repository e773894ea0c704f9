package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/gocarina/gocsv"
)

type satelliteRow struct {
	Product string  `csv:"Producto"`
	Name    string  `csv:"Indicador"`
	Value   float64 `csv:"Valor"`
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

func fileName(name string) string {
	return strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func writeCSV(path string, rows any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()
	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ExportTables writes every non-empty table of c as a CSV file in dir and
// returns the written paths.
func ExportTables(c *analysis.Context, dir string) ([]string, error) {
	if c == nil || !c.Processed {
		return nil, ErrNotProcessed
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create export folder: %w", err)
	}

	var written []string
	write := func(name string, rows any) error {
		path := filepath.Join(dir, name+".csv")
		if err := writeCSV(path, rows); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if !c.Raster.Empty() {
		if err := write("coberturas", &c.Raster.Rows); err != nil {
			return written, err
		}
	}
	for _, layer := range c.IntersectedLayers() {
		rows := layer.Rows
		if err := write("capa_"+fileName(layer.LayerID), &rows); err != nil {
			return written, err
		}
	}
	if len(c.Biodiversity) > 0 {
		if err := write("biodiversidad", &c.Biodiversity); err != nil {
			return written, err
		}
	}

	var sat []satelliteRow
	for _, product := range []struct {
		name   string
		result satellite.Result
	}{{"Biomasa", c.Biomass}, {"Dosel", c.Canopy}} {
		for _, s := range product.result.Stats {
			sat = append(sat, satelliteRow{Product: product.name, Name: s.Name, Value: s.Value})
		}
	}
	if len(sat) > 0 {
		if err := write("satelite", &sat); err != nil {
			return written, err
		}
	}
	return written, nil
}
