package report

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/forest-guardian/ecosystem-dashboard/output"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed report.html.tmpl
var reportTemplate string

var ErrNotProcessed = errors.New("no processed analysis to report")

const maxListedCategories = 5

type biomassView struct {
	Mean string
	CO2  string
}

type view struct {
	Title        string
	Subtitle     string
	Team         string
	Date         string
	Municipality string
	Department   string
	MapImage     template.URL
	PieImage     template.URL
	BarImage     template.URL
	ForestHa     float64
	Species      int
	CO2          float64
	Raster       []raster.Row
	Layers       []vector.Summary
	Biomass      *biomassView
	Canopy       string
	Biodiversity []biodiversity.GroupRichness
	Warnings     []string
}

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"fmt1":       func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"thousands":  thousands,
	"categories": categories,
}).Parse(reportTemplate))

// thousands formats v with no decimals and comma separated groups.
func thousands(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.0f", v)
}

func categories(rows []vector.Row) string {
	names := make([]string, 0, maxListedCategories)
	for i, row := range rows {
		if i == maxListedCategories {
			break
		}
		names = append(names, row.Category)
	}
	return strings.Join(names, ", ")
}

func formatStat(r satellite.Result, name string) string {
	v, _ := r.Stat(name)
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dataURI(png []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}

// renderCharts draws the three report charts concurrently. A chart that
// cannot be drawn is left out of the document.
func renderCharts(ctx context.Context, c *analysis.Context, v *view) {
	type chart struct {
		name   string
		target *template.URL
		draw   func() ([]byte, error)
	}
	charts := []chart{
		{"map", &v.MapImage, func() ([]byte, error) { return output.CreatePolygonMapImage(c.Polygon) }},
		{"pie", &v.PieImage, func() ([]byte, error) { return output.CreateForestPieImage(c.Raster.Rows) }},
		{"bar", &v.BarImage, func() ([]byte, error) { return output.CreateBiodiversityBarImage(c.Biodiversity) }},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range charts {
		ch := ch
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			png, err := ch.draw()
			if err != nil {
				if !errors.Is(err, output.ErrNothingToDraw) {
					log.WithError(err).WithField("chart", ch.name).Warn("chart render failed")
				}
				return nil
			}
			*ch.target = dataURI(png)
			return nil
		})
	}
	_ = g.Wait()
}

func buildView(ctx context.Context, c *analysis.Context, now time.Time) *view {
	v := &view{
		Title:        properties.ReportTitle,
		Subtitle:     properties.ReportSubtitle,
		Team:         properties.ReportTeam,
		Date:         now.Format("2006-01-02"),
		Municipality: c.Location.Municipality,
		Department:   c.Location.Department,
		ForestHa:     c.ForestHa(),
		Species:      c.TotalSpecies(),
		Raster:       c.Raster.Rows,
		Layers:       c.IntersectedLayers(),
		Biodiversity: c.Biodiversity,
	}
	if v.Municipality == "" {
		v.Municipality = "No determinado"
	}
	if co2, ok := c.Biomass.Stat(satellite.StatCO2); ok {
		v.CO2 = co2
	}
	if len(c.Biomass.Stats) > 0 {
		v.Biomass = &biomassView{
			Mean: formatStat(c.Biomass, satellite.StatMeanBiomass),
			CO2:  formatStat(c.Biomass, satellite.StatCO2),
		}
	}
	if len(c.Canopy.Stats) > 0 {
		v.Canopy = formatStat(c.Canopy, satellite.StatMeanCanopy)
	}
	for _, w := range c.Warnings {
		v.Warnings = append(v.Warnings, w.String())
	}
	renderCharts(ctx, c, v)
	return v
}

// Generate writes the analysis as one self-contained HTML document with the
// charts embedded as data URIs.
func Generate(ctx context.Context, c *analysis.Context, w io.Writer, now time.Time) error {
	if c == nil || !c.Processed {
		return ErrNotProcessed
	}
	if err := tmpl.Execute(w, buildView(ctx, c, now)); err != nil {
		return fmt.Errorf("template execution failed: %w", err)
	}
	return nil
}
