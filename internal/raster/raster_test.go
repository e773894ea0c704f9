package raster

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	window Window
	err    error
}

func (f fakeReader) Window(context.Context, orb.Geometry) (Window, error) {
	return f.window, f.err
}

var square = orb.Polygon{{{-75, 4}, {-74.9, 4}, {-74.9, 4.1}, {-75, 4.1}, {-75, 4}}}

func TestSummarizeExample(t *testing.T) {
	rows := Summarize(map[int]int{1: 100, 4: 300}, 30*30)
	assert.Equal(t, []Row{
		{Code: 4, Label: "No Bosque estable", Pixels: 300, AreaHa: 27, Percent: 75},
		{Code: 1, Label: "Bosque Estable", Pixels: 100, AreaHa: 9, Percent: 25},
	}, rows)
}

func TestSummarizeTiesOrderByNumericCode(t *testing.T) {
	rows := Summarize(map[int]int{10: 2, 2: 2, 1: 2}, 100)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{rows[0].Code, rows[1].Code, rows[2].Code})
}

func TestSummarizeUnknownCodeAndPercentages(t *testing.T) {
	rows := Summarize(map[int]int{1: 1, 2: 1, 7: 1}, 100)
	require.Len(t, rows, 3)

	var percent float64
	for _, row := range rows {
		percent += row.Percent
		assert.Equal(t, 0.01, row.AreaHa)
	}
	assert.InDelta(t, 100, percent, 0.05)
	assert.Equal(t, "Clase 7", rows[2].Label)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Nil(t, Summarize(map[int]int{}, 900))
}

// projectedWindow lays a 10x10 grid of 30 m pixels whose left half is inside
// a 150 m wide polygon.
func projectedWindow(values []float64) Window {
	return Window{
		Geometry:     orb.Polygon{{{0, 0}, {150, 0}, {150, 300}, {0, 300}, {0, 0}}},
		Values:       values,
		Width:        10,
		Height:       10,
		GeoTransform: [6]float64{0, 30, 0, 300, 0, -30},
		NoData:       0,
	}
}

func TestMaskProjected(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 1
		if i%10 == 1 {
			values[i] = 4
		}
		if i < 10 {
			values[i] = 0
		}
	}
	tally := Mask(projectedWindow(values))

	// 5 columns inside, first row is no-data, column 1 holds class 4
	assert.Equal(t, map[int]int{1: 36, 4: 9}, tally.Counts)
	assert.Equal(t, 36*900.0, tally.AreaM2[1])
	assert.Equal(t, 9*900.0, tally.AreaM2[4])

	rows := tally.Rows()
	assert.Equal(t, 1, rows[0].Code)
	assert.Equal(t, 3.24, rows[0].AreaHa)
	assert.Equal(t, 80.0, rows[0].Percent)
}

func TestMaskRejectsShortBuffer(t *testing.T) {
	w := projectedWindow(make([]float64, 10))
	assert.Zero(t, Mask(w).Total())
}

func TestMaskGeographicMeasuresOnSphere(t *testing.T) {
	w := Window{
		Geometry:     square,
		Values:       []float64{1, 1, 1, 1},
		Width:        2,
		Height:       2,
		GeoTransform: [6]float64{-75, 0.05, 0, 4.1, 0, -0.05},
		NoData:       0,
		Geographic:   true,
	}
	tally := Mask(w)
	assert.Equal(t, 4, tally.Counts[1])
	// the four pixels tile the polygon exactly
	assert.InDelta(t, 123.6e6, tally.AreaM2[1], 1e6)
}

func TestSummarizeRasterExampleThroughAggregator(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 1
	}
	agg := NewAggregator(fakeReader{window: projectedWindow(values)})
	summary, err := agg.SummarizeRaster(context.Background(), square)
	require.NoError(t, err)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, 50, summary.Rows[0].Pixels)
	assert.Equal(t, 4.5, summary.Rows[0].AreaHa)
	assert.Equal(t, 100.0, summary.Rows[0].Percent)
}

func TestSummarizeRasterNoValidPixels(t *testing.T) {
	agg := NewAggregator(fakeReader{window: projectedWindow(make([]float64, 100))})
	summary, err := agg.SummarizeRaster(context.Background(), square)
	require.NoError(t, err)
	assert.True(t, summary.Empty())
	assert.Equal(t, []string{NoValidPixelsWarning}, summary.Warnings)
}

func TestSummarizeRasterDegenerateAndMissing(t *testing.T) {
	agg := NewAggregator(fakeReader{err: fmt.Errorf("%w: /data/raster.tif", ErrSourceMissing)})

	summary, err := agg.SummarizeRaster(context.Background(), orb.Point{1, 2})
	require.NoError(t, err)
	assert.True(t, summary.Empty())
	assert.NotEmpty(t, summary.Warnings)

	summary, err = agg.SummarizeRaster(context.Background(), square)
	require.NoError(t, err)
	assert.True(t, summary.Empty())
	assert.Contains(t, summary.Warnings[0], "not found")
}

func TestSummarizeRasterReadError(t *testing.T) {
	boom := errors.New("bad block")
	agg := NewAggregator(fakeReader{err: boom})
	_, err := agg.SummarizeRaster(context.Background(), square)
	assert.ErrorIs(t, err, boom)
}

func TestPixelWindow(t *testing.T) {
	gt := [6]float64{0, 30, 0, 300, 0, -30}
	b := orb.Bound{Min: orb.Point{45, 100}, Max: orb.Point{100, 250}}
	col0, row0, width, height := pixelWindow(b, gt, 10, 10)
	assert.Equal(t, []int{1, 1, 3, 6}, []int{col0, row0, width, height})

	col0, row0, width, height = pixelWindow(orb.Bound{Min: orb.Point{-100, -100}, Max: orb.Point{1000, 1000}}, gt, 10, 10)
	assert.Equal(t, []int{0, 0, 10, 10}, []int{col0, row0, width, height})

	_, _, width, _ = pixelWindow(orb.Bound{Min: orb.Point{500, 0}, Max: orb.Point{600, 10}}, gt, 10, 10)
	assert.Zero(t, width)
}
