package ui

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
)

// WriteTables prints every table of the analysis in plain text.
func WriteTables(w io.Writer, c *analysis.Context) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Ubicación:\t%s\n\n", c.Place())

	fmt.Fprintln(tw, "Coberturas (IDEAM)")
	if c.Raster.Empty() {
		fmt.Fprintln(tw, "  Sin datos de cobertura boscosa.")
	} else {
		fmt.Fprintln(tw, "Leyenda\tPíxeles\tÁrea (ha)\t%")
		for _, row := range c.Raster.Rows {
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n", row.Label, row.Pixels, row.AreaHa, row.Percent)
		}
	}
	fmt.Fprintln(tw)

	layers := c.IntersectedLayers()
	fmt.Fprintln(tw, "Contexto legal (SIPRA)")
	if len(layers) == 0 {
		fmt.Fprintln(tw, "  Sin intersecciones con las capas legales analizadas.")
	}
	for _, layer := range layers {
		fmt.Fprintf(tw, "%s (agrupado por %s)\n", layer.Title, layer.Grouping.Kind)
		fmt.Fprintln(tw, "Categoría\tÁrea (ha)\tElementos")
		for _, row := range layer.Rows {
			fmt.Fprintf(tw, "%s\t%.2f\t%d\n", row.Category, row.AreaHa, row.Count)
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw, "Riqueza de especies (GBIF)")
	if len(c.Biodiversity) == 0 {
		fmt.Fprintln(tw, "  No se encontraron registros biológicos.")
	} else {
		fmt.Fprintln(tw, "Grupo\tEspecies\tNota")
		for _, row := range c.Biodiversity {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", row.Group, row.Species, row.Error)
		}
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Inteligencia satelital")
	for _, product := range []struct {
		name   string
		result satellite.Result
	}{{"Biomasa", c.Biomass}, {"Dosel", c.Canopy}} {
		if product.result.Empty() {
			fmt.Fprintf(tw, "%s\tsin datos\n", product.name)
			continue
		}
		for _, s := range product.result.Stats {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\n", product.name, s.Name, s.Value)
		}
	}
}

func (a *App) ShowTables() {
	c := a.Session.Context()
	if !c.Processed {
		PrintError("No hay un diagnóstico procesado. Ejecute el diagnóstico primero.")
		return
	}
	PrintHeader("Resultados del diagnóstico")
	WriteTables(os.Stdout, c)
}
