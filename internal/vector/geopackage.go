package vector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// GeoPackageSource reads layers of a local GeoPackage through GDAL.
type GeoPackageSource struct {
	path string
}

func NewGeoPackageSource(path string) *GeoPackageSource {
	return &GeoPackageSource{path: path}
}

func (s *GeoPackageSource) Intersect(ctx context.Context, layerID string, g orb.Geometry, mode Mode) (Intersection, error) {
	if _, err := os.Stat(s.path); err != nil {
		return Intersection{}, fmt.Errorf("%w: %s", ErrSourceMissing, s.path)
	}

	var out Intersection
	err := utils.WithGDAL(ctx, func() error {
		godal.RegisterAll()
		ds, err := godal.Open(s.path, godal.VectorOnly())
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", s.path, err)
		}
		defer ds.Close()

		layer, ok := findLayer(ds, layerID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrLayerNotFound, layerID)
		}

		layerSR := layer.SpatialRef()
		query, err := queryGeometry(g, layerSR)
		if err != nil {
			return err
		}
		defer query.Close()

		queryBounds, err := query.Bounds()
		if err != nil {
			return fmt.Errorf("failed to compute query bounds: %w", err)
		}

		var measureSR *godal.SpatialRef
		if layerSR != nil && layerSR.Geographic() {
			measureSR, err = godal.NewSpatialRefFromEPSG(properties.AreaEPSG)
			if err != nil {
				return err
			}
			defer measureSR.Close()
		}

		out.Columns = layerColumns(ds, layer.Name())

		bbox, err := boundsGeometry(queryBounds, layerSR)
		if err != nil {
			return err
		}
		defer bbox.Close()
		rs, err := ds.ExecuteSQL(fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(layer.Name())), godal.SpatialFilter(bbox))
		if err != nil {
			return fmt.Errorf("failed to query layer %s: %w", layerID, err)
		}
		defer rs.Close()

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			feat := rs.NextFeature()
			if feat == nil {
				return nil
			}
			f, matched, err := intersectFeature(feat, query, queryBounds, layerSR, measureSR, mode)
			feat.Close()
			if err != nil {
				out.Failed++
				continue
			}
			if matched {
				out.Features = append(out.Features, f)
			}
		}
	})
	return out, err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// boundsGeometry is the query bounding box as a rectangle in the layer CRS.
// GDAL answers a spatial filter with the GeoPackage R-tree index.
func boundsGeometry(b [4]float64, sr *godal.SpatialRef) (*godal.Geometry, error) {
	rect := orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}.ToPolygon()
	bbox, err := godal.NewGeometryFromWKT(wkt.MarshalString(rect), sr)
	if err != nil {
		return nil, fmt.Errorf("failed to build query bounding box: %w", err)
	}
	return bbox, nil
}

// layerColumns lists the attribute columns of a GeoPackage table in schema
// order. Nil when the driver cannot answer.
func layerColumns(ds *godal.Dataset, table string) []string {
	rs, err := ds.ExecuteSQL(fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil
	}
	defer rs.Close()

	var columns []string
	for {
		feat := rs.NextFeature()
		if feat == nil {
			return columns
		}
		if name, ok := feat.Fields()["name"]; ok {
			columns = append(columns, name.String())
		}
		feat.Close()
	}
}

func findLayer(ds *godal.Dataset, layerID string) (godal.Layer, bool) {
	for _, layer := range ds.Layers() {
		if layer.Name() == layerID {
			return layer, true
		}
	}
	return godal.Layer{}, false
}

// queryGeometry builds the polygon in the layer CRS. The layer itself is never
// reprojected.
func queryGeometry(g orb.Geometry, layerSR *godal.SpatialRef) (*godal.Geometry, error) {
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer wgs84.Close()

	query, err := godal.NewGeometryFromWKT(wkt.MarshalString(g), wgs84)
	if err != nil {
		return nil, fmt.Errorf("failed to build query geometry: %w", err)
	}
	if layerSR != nil && !layerSR.IsSame(wgs84) {
		if err := query.Reproject(layerSR); err != nil {
			query.Close()
			return nil, fmt.Errorf("failed to reproject query geometry: %w", err)
		}
	}
	return query, nil
}

func boundsOverlap(a, b [4]float64) bool {
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

func intersectFeature(feat *godal.Feature, query *godal.Geometry, queryBounds [4]float64, layerSR, measureSR *godal.SpatialRef, mode Mode) (Feature, bool, error) {
	geom := feat.Geometry()
	if geom == nil || geom.Empty() {
		return Feature{}, false, nil
	}
	featureBounds, err := geom.Bounds()
	if err != nil {
		return Feature{}, false, err
	}
	if !boundsOverlap(queryBounds, featureBounds) {
		return Feature{}, false, nil
	}

	var area float64
	switch mode {
	case ModeIntersectsJoin:
		hit, err := geom.Intersects(query)
		if err != nil || !hit {
			return Feature{}, false, err
		}
		area, err = areaHa(geom, layerSR, measureSR)
		if err != nil {
			return Feature{}, false, err
		}
	default:
		clipped, err := geom.Intersection(query)
		if err != nil {
			return Feature{}, false, err
		}
		defer clipped.Close()
		if clipped.Empty() {
			return Feature{}, false, nil
		}
		area, err = areaHa(clipped, layerSR, measureSR)
		if err != nil {
			return Feature{}, false, err
		}
	}

	attributes := make(map[string]string)
	for name, field := range feat.Fields() {
		attributes[name] = field.String()
	}
	return Feature{Attributes: attributes, AreaHa: area}, true, nil
}

// areaHa measures geom in hectares, reprojecting a copy to measureSR when the
// layer CRS is geographic.
func areaHa(geom *godal.Geometry, layerSR, measureSR *godal.SpatialRef) (float64, error) {
	if measureSR == nil {
		return geom.Area() / 10000, nil
	}
	wkb, err := geom.WKB()
	if err != nil {
		return 0, err
	}
	projected, err := godal.NewGeometryFromWKB(wkb, layerSR)
	if err != nil {
		return 0, err
	}
	defer projected.Close()
	if err := projected.Reproject(measureSR); err != nil {
		return 0, err
	}
	return projected.Area() / 10000, nil
}
