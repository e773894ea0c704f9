package raster

import (
	"math"
	"sort"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

type Row struct {
	Code    int     `json:"code" csv:"Código"`
	Label   string  `json:"label" csv:"Leyenda"`
	Pixels  int     `json:"pixels" csv:"Píxeles"`
	AreaHa  float64 `json:"area_ha" csv:"Área (ha)"`
	Percent float64 `json:"percent" csv:"Porcentaje"`
}

type Summary struct {
	Rows     []Row    `json:"rows"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s Summary) Empty() bool {
	return len(s.Rows) == 0
}

// AreaHaMatching sums the area of rows whose label satisfies match.
func (s Summary) AreaHaMatching(match func(label string) bool) float64 {
	var total float64
	for _, row := range s.Rows {
		if match(row.Label) {
			total += row.AreaHa
		}
	}
	return total
}

// Tally holds per-class pixel counts and ground areas in square meters.
type Tally struct {
	Counts map[int]int
	AreaM2 map[int]float64
}

func (t Tally) Total() int {
	total := 0
	for _, count := range t.Counts {
		total += count
	}
	return total
}

// Summarize converts counts of a projected raster with a constant pixel
// footprint into class rows.
func Summarize(counts map[int]int, pixelAreaM2 float64) []Row {
	tally := Tally{Counts: counts, AreaM2: make(map[int]float64, len(counts))}
	for code, count := range counts {
		tally.AreaM2[code] = float64(count) * pixelAreaM2
	}
	return tally.Rows()
}

// Rows labels the tally and sorts it by area descending.
func (t Tally) Rows() []Row {
	total := t.Total()
	if total == 0 {
		return nil
	}
	rows := make([]Row, 0, len(t.Counts))
	for code, count := range t.Counts {
		rows = append(rows, Row{
			Code:    code,
			Label:   properties.LegendLabel(code),
			Pixels:  count,
			AreaHa:  utils.Round2(t.AreaM2[code] / 10000),
			Percent: utils.Round2(float64(count) / float64(total) * 100),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AreaHa != rows[j].AreaHa {
			return rows[i].AreaHa > rows[j].AreaHa
		}
		return rows[i].Code < rows[j].Code
	})
	return rows
}

// Window is the part of the raster covering a polygon, with the polygon
// expressed in the raster CRS.
type Window struct {
	Geometry     orb.Geometry
	Values       []float64
	Width        int
	Height       int
	GeoTransform [6]float64
	NoData       float64
	Geographic   bool
}

func (w Window) pixelBound(col, row int) orb.Bound {
	gt := w.GeoTransform
	x0 := gt[0] + float64(col)*gt[1]
	y0 := gt[3] + float64(row)*gt[5]
	x1 := x0 + gt[1]
	y1 := y0 + gt[5]
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// Mask tallies the pixels whose centre lies inside the window polygon,
// skipping no-data. A geographic raster has each pixel footprint measured on
// the sphere; a projected one uses |resX * resY|.
func Mask(w Window) Tally {
	tally := Tally{Counts: make(map[int]int), AreaM2: make(map[int]float64)}
	if w.Width == 0 || w.Height == 0 || len(w.Values) < w.Width*w.Height {
		return tally
	}
	contains := containsFunc(w.Geometry)
	bound := w.Geometry.Bound()
	pixelArea := math.Abs(w.GeoTransform[1] * w.GeoTransform[5])

	for row := 0; row < w.Height; row++ {
		for col := 0; col < w.Width; col++ {
			value := w.Values[row*w.Width+col]
			if math.IsNaN(value) || value == w.NoData {
				continue
			}
			pixel := w.pixelBound(col, row)
			centre := pixel.Center()
			if !bound.Contains(centre) || !contains(centre) {
				continue
			}
			code := int(math.Round(value))
			tally.Counts[code]++
			if w.Geographic {
				tally.AreaM2[code] += geo.Area(pixel.ToPolygon())
			} else {
				tally.AreaM2[code] += pixelArea
			}
		}
	}
	return tally
}

func containsFunc(g orb.Geometry) func(orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return func(p orb.Point) bool { return planar.PolygonContains(geom, p) }
	case orb.MultiPolygon:
		return func(p orb.Point) bool { return planar.MultiPolygonContains(geom, p) }
	}
	return func(orb.Point) bool { return false }
}
