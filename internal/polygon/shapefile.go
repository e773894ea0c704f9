package polygon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeaturePreview lists the attributes of one shapefile feature so the user
// can pick which polygon to analyze.
type FeaturePreview struct {
	Index      int               `json:"index"`
	Attributes map[string]string `json:"attributes"`
}

func zipPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "/vsizip/" + abs, nil
}

// ListShapefileFeatures previews every polygonal feature of a zipped shapefile.
func ListShapefileFeatures(path string) ([]FeaturePreview, error) {
	var previews []FeaturePreview
	err := walkShapefile(path, func(index int, feat *godal.Feature) (bool, error) {
		attributes := make(map[string]string)
		for name, field := range feat.Fields() {
			attributes[name] = field.String()
		}
		previews = append(previews, FeaturePreview{Index: index, Attributes: attributes})
		return true, nil
	})
	return previews, err
}

// FromShapefileZip reads feature index of a zipped shapefile and reprojects
// it to EPSG:4326.
func FromShapefileZip(path string, index int) (orb.Geometry, error) {
	var result orb.Geometry
	err := walkShapefile(path, func(i int, feat *godal.Feature) (bool, error) {
		if i != index {
			return true, nil
		}
		g, err := toWGS84(feat.Geometry())
		if err != nil {
			return false, err
		}
		result = g
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("feature %d not found in %s", index, filepath.Base(path))
	}
	if err := Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

func walkShapefile(path string, visit func(int, *godal.Feature) (bool, error)) error {
	name, err := zipPath(path)
	if err != nil {
		return err
	}
	return utils.WithGDAL(context.Background(), func() error {
		godal.RegisterAll()
		ds, err := godal.Open(name, godal.VectorOnly())
		if err != nil {
			return fmt.Errorf("failed to open shapefile archive: %w", err)
		}
		defer ds.Close()

		layers := ds.Layers()
		if len(layers) == 0 {
			return fmt.Errorf("shapefile archive has no layers")
		}
		layer := layers[0]
		for i := 0; ; i++ {
			feat := layer.NextFeature()
			if feat == nil {
				return nil
			}
			more, err := visit(i, feat)
			feat.Close()
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	})
}

func toWGS84(geom *godal.Geometry) (orb.Geometry, error) {
	if geom == nil || geom.Empty() {
		return nil, ErrDegenerate
	}
	wkb, err := geom.WKB()
	if err != nil {
		return nil, err
	}
	owned, err := godal.NewGeometryFromWKB(wkb, geom.SpatialRef())
	if err != nil {
		return nil, err
	}
	defer owned.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer wgs84.Close()

	if sr := owned.SpatialRef(); sr != nil && !sr.IsSame(wgs84) {
		if err := owned.Reproject(wgs84); err != nil {
			return nil, fmt.Errorf("failed to reproject feature: %w", err)
		}
	}
	text, err := owned.GeoJSON()
	if err != nil {
		return nil, err
	}
	g, err := geojson.UnmarshalGeometry([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature geometry: %w", err)
	}
	return g.Geometry(), nil
}
