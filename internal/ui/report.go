package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/report"
	"github.com/forest-guardian/ecosystem-dashboard/output"
)

// Outputs lists the files written for one analysis.
type Outputs struct {
	Report  string
	GeoJSON string
	Tables  []string
}

// WriteOutputs writes the HTML report to reportPath, the context GeoJSON
// next to it and, when tablesDir is set, the CSV tables.
func WriteOutputs(ctx context.Context, c *analysis.Context, reportPath, tablesDir string, now time.Time) (Outputs, error) {
	var out Outputs
	if err := os.MkdirAll(filepath.Dir(reportPath), os.ModePerm); err != nil {
		return out, fmt.Errorf("failed to create report folder: %w", err)
	}
	f, err := os.Create(reportPath)
	if err != nil {
		return out, err
	}
	if err := report.Generate(ctx, c, f, now); err != nil {
		f.Close()
		os.Remove(reportPath)
		return out, err
	}
	if err := f.Close(); err != nil {
		return out, err
	}
	out.Report = reportPath

	geojsonPath := reportPath[:len(reportPath)-len(filepath.Ext(reportPath))] + ".geojson"
	if out.GeoJSON, err = output.CreateContextGeoJSON(c, geojsonPath); err != nil {
		return out, err
	}

	if tablesDir != "" {
		if out.Tables, err = report.ExportTables(c, tablesDir); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (a *App) GenerateReport() {
	c := a.Session.Context()
	if !c.Processed {
		PrintError("No hay un diagnóstico procesado. Ejecute el diagnóstico primero.")
		return
	}
	resultPath, err := CreateResultDirectory("reportes")
	if err != nil {
		PrintError(err.Error())
		return
	}

	now := time.Now()
	name := fmt.Sprintf("reporte_%s", now.Format("20060102_150405"))
	out, err := WriteOutputs(context.Background(), c, filepath.Join(resultPath, name+".html"), filepath.Join(resultPath, name+"_tablas"), now)
	if err != nil {
		PrintError(fmt.Sprintf("Error generando el reporte: %s", err.Error()))
		return
	}
	PrintSuccess(fmt.Sprintf("Reporte generado!\n Reporte: %s\n GeoJSON: %s\n Tablas: %d archivos CSV", out.Report, out.GeoJSON, len(out.Tables)))
}
