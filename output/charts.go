package output

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

var ErrNothingToDraw = errors.New("nothing to draw")

const (
	chartWidth  = 900
	chartHeight = 600
)

func setColor(dc *gg.Context, c properties.Color, alpha float64) {
	dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, alpha)
}

func encodePNG(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func drawTitle(dc *gg.Context, title string) {
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, chartWidth/2, 24, 0.5, 0.5)
}

// CreatePolygonMapImage draws the polygon outline in Web Mercator, zoomed
// out by the report margin factor on every side.
func CreatePolygonMapImage(g orb.Geometry) ([]byte, error) {
	if !polygon.IsValid(g) {
		return nil, ErrNothingToDraw
	}
	projected := project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
	b := projected.Bound()

	margin := properties.ReportMapMarginFactor
	width, height := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	minX, maxX := b.Min[0]-width*margin, b.Max[0]+width*margin
	minY, maxY := b.Min[1]-height*margin, b.Max[1]+height*margin

	top := 50.0
	scale := math.Min(chartWidth/(maxX-minX), (chartHeight-top)/(maxY-minY))
	offsetX := (chartWidth - (maxX-minX)*scale) / 2
	offsetY := top + (chartHeight-top-(maxY-minY)*scale)/2
	toCanvas := func(p orb.Point) (float64, float64) {
		return offsetX + (p[0]-minX)*scale, offsetY + (maxY-p[1])*scale
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetFillRuleEvenOdd()
	for _, part := range polygon.Parts(projected) {
		for _, ring := range part {
			dc.NewSubPath()
			for i, p := range ring {
				x, y := toCanvas(p)
				if i == 0 {
					dc.MoveTo(x, y)
				} else {
					dc.LineTo(x, y)
				}
			}
			dc.ClosePath()
		}
	}
	setColor(dc, properties.AccentColor, 0.4)
	dc.FillPreserve()
	setColor(dc, properties.AccentColor, 1)
	dc.SetLineWidth(2)
	dc.Stroke()

	drawTitle(dc, "Contexto Geográfico Regional")
	return encodePNG(dc)
}

// CreateForestPieImage draws the land cover share of every raster class,
// starting at twelve o'clock.
func CreateForestPieImage(rows []raster.Row) ([]byte, error) {
	var total float64
	for _, row := range rows {
		total += row.AreaHa
	}
	if total <= 0 {
		return nil, ErrNothingToDraw
	}

	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	cx, cy, radius := 300.0, 320.0, 220.0
	angle := -math.Pi / 2
	for i, row := range rows {
		sweep := 2 * math.Pi * row.AreaHa / total
		setColor(dc, properties.ChartPalette[i%len(properties.ChartPalette)], 1)
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, radius, angle, angle+sweep)
		dc.ClosePath()
		dc.Fill()

		mid := angle + sweep/2
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f%%", 100*row.AreaHa/total),
			cx+0.65*radius*math.Cos(mid), cy+0.65*radius*math.Sin(mid), 0.5, 0.5)
		angle += sweep
	}

	// legend
	legendX, legendY := 580.0, 200.0
	for i, row := range rows {
		y := legendY + float64(i)*28
		setColor(dc, properties.ChartPalette[i%len(properties.ChartPalette)], 1)
		dc.DrawRectangle(legendX, y, 16, 16)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawRectangle(legendX, y, 16, 16)
		dc.SetLineWidth(1)
		dc.Stroke()
		dc.DrawStringAnchored(row.Label, legendX+24, y+8, 0, 0.5)
	}

	drawTitle(dc, "Distribución de Coberturas (IDEAM)")
	return encodePNG(dc)
}

// CreateBiodiversityBarImage draws one horizontal bar per taxon group, the
// richest group on top.
func CreateBiodiversityBarImage(table []biodiversity.GroupRichness) ([]byte, error) {
	if len(table) == 0 {
		return nil, ErrNothingToDraw
	}
	maxSpecies := 0
	labelWidth := 0.0
	dc := gg.NewContext(chartWidth, chartHeight)
	for _, row := range table {
		if row.Species > maxSpecies {
			maxSpecies = row.Species
		}
		if w, _ := dc.MeasureString(row.Group); w > labelWidth {
			labelWidth = w
		}
	}

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	left := labelWidth + 30
	right := float64(chartWidth) - 80
	top, bottom := 60.0, float64(chartHeight)-60
	slot := (bottom - top) / float64(len(table))
	barHeight := slot * 0.7

	for i, row := range table {
		y := top + float64(i)*slot + (slot-barHeight)/2
		length := 0.0
		if maxSpecies > 0 {
			length = (right - left) * float64(row.Species) / float64(maxSpecies)
		}
		setColor(dc, properties.AccentColor, 1)
		dc.DrawRectangle(left, y, length, barHeight)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(row.Group, left-10, y+barHeight/2, 1, 0.5)
		dc.DrawStringAnchored(fmt.Sprintf("%d", row.Species), left+length+6, y+barHeight/2, 0, 0.5)
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(left, top, left, bottom)
	dc.DrawLine(left, bottom, right, bottom)
	dc.Stroke()
	dc.DrawStringAnchored("N° Especies Registradas", (left+right)/2, bottom+30, 0.5, 0.5)

	drawTitle(dc, "Riqueza Potencial por Grupo (GBIF)")
	return encodePNG(dc)
}
