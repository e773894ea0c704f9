package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrSourceMissing = errors.New("raster reference store not found")
	ErrRotated       = errors.New("rotated rasters are not supported")
)

// Reader crops the categorical raster to the bounds of a polygon given in
// EPSG:4326.
type Reader interface {
	Window(ctx context.Context, g orb.Geometry) (Window, error)
}

// GeoTIFFReader reads band 1 of a local raster through GDAL.
type GeoTIFFReader struct {
	path string
}

func NewGeoTIFFReader(path string) *GeoTIFFReader {
	return &GeoTIFFReader{path: path}
}

func (r *GeoTIFFReader) Window(ctx context.Context, g orb.Geometry) (Window, error) {
	if _, err := os.Stat(r.path); err != nil {
		return Window{}, fmt.Errorf("%w: %s", ErrSourceMissing, r.path)
	}

	var window Window
	err := utils.WithGDAL(ctx, func() error {
		godal.RegisterAll()
		ds, err := godal.Open(r.path, godal.RasterOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
			if ec == godal.CE_Warning {
				return nil
			}
			return fmt.Errorf("GDAL error %d: %s", code, msg)
		}))
		if err != nil {
			return fmt.Errorf("failed to open raster: %w", err)
		}
		defer ds.Close()

		gt, err := ds.GeoTransform()
		if err != nil {
			return fmt.Errorf("failed to read geotransform: %w", err)
		}
		if gt[2] != 0 || gt[4] != 0 {
			return ErrRotated
		}

		sr := ds.SpatialRef()
		local, err := toRasterCRS(g, sr)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		structure := ds.Structure()
		col0, row0, width, height := pixelWindow(local.Bound(), gt, structure.SizeX, structure.SizeY)
		window = Window{
			Geometry:     local,
			Width:        width,
			Height:       height,
			GeoTransform: [6]float64{gt[0] + float64(col0)*gt[1], gt[1], 0, gt[3] + float64(row0)*gt[5], 0, gt[5]},
			NoData:       properties.RasterNoData,
			Geographic:   sr != nil && sr.Geographic(),
		}
		if width == 0 || height == 0 {
			return nil
		}

		bands := ds.Bands()
		if len(bands) == 0 {
			return fmt.Errorf("raster has no bands")
		}
		band := bands[0]
		if nodata, ok := band.NoData(); ok {
			window.NoData = nodata
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		window.Values = make([]float64, width*height)
		if err := band.Read(col0, row0, window.Values, width, height); err != nil {
			return fmt.Errorf("failed to read raster window: %w", err)
		}
		return nil
	})
	return window, err
}

// pixelWindow converts a bound in raster CRS into a clamped pixel window.
func pixelWindow(b orb.Bound, gt [6]float64, sizeX, sizeY int) (col0, row0, width, height int) {
	colA := (b.Min[0] - gt[0]) / gt[1]
	colB := (b.Max[0] - gt[0]) / gt[1]
	rowA := (b.Max[1] - gt[3]) / gt[5]
	rowB := (b.Min[1] - gt[3]) / gt[5]

	col0 = clamp(int(math.Floor(math.Min(colA, colB))), 0, sizeX)
	col1 := clamp(int(math.Ceil(math.Max(colA, colB))), 0, sizeX)
	row0 = clamp(int(math.Floor(math.Min(rowA, rowB))), 0, sizeY)
	row1 := clamp(int(math.Ceil(math.Max(rowA, rowB))), 0, sizeY)
	return col0, row0, col1 - col0, row1 - row0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toRasterCRS(g orb.Geometry, sr *godal.SpatialRef) (orb.Geometry, error) {
	if sr == nil {
		return g, nil
	}
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer wgs84.Close()
	if sr.IsSame(wgs84) {
		return g, nil
	}

	geom, err := godal.NewGeometryFromWKT(wkt.MarshalString(g), wgs84)
	if err != nil {
		return nil, fmt.Errorf("failed to build polygon geometry: %w", err)
	}
	defer geom.Close()
	if err := geom.Reproject(sr); err != nil {
		return nil, fmt.Errorf("failed to reproject polygon to raster CRS: %w", err)
	}
	text, err := geom.GeoJSON()
	if err != nil {
		return nil, err
	}
	decoded, err := geojson.UnmarshalGeometry([]byte(text))
	if err != nil {
		return nil, err
	}
	return decoded.Geometry(), nil
}
