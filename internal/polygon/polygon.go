// Package polygon supplies the region of interest every diagnostic source
// works on. Geometries are orb.Polygon or orb.MultiPolygon in EPSG:4326.
package polygon

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

var (
	ErrUnsupported = errors.New("geometry is not a polygon or multipolygon")
	ErrDegenerate  = errors.New("polygon has fewer than 3 distinct points")
)

// Validate reports whether g can be used as a region of interest.
func Validate(g orb.Geometry) error {
	switch geom := g.(type) {
	case orb.Polygon:
		return validatePolygon(geom)
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return ErrDegenerate
		}
		for _, p := range geom {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrUnsupported
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 || distinctPoints(p[0]) < 3 {
		return ErrDegenerate
	}
	if planar.Area(p[0]) == 0 {
		return ErrDegenerate
	}
	return nil
}

func distinctPoints(r orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(r))
	for _, pt := range r {
		seen[pt] = struct{}{}
	}
	return len(seen)
}

func IsValid(g orb.Geometry) bool {
	return Validate(g) == nil
}

// Parts returns the polygons making up g, or nil when g is not polygonal.
func Parts(g orb.Geometry) []orb.Polygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{geom}
	case orb.MultiPolygon:
		return geom
	}
	return nil
}

// CanonicalWKT is the cache identity of a polygon: geometrically identical
// inputs with different ring direction encode to the same text.
func CanonicalWKT(g orb.Geometry) string {
	if !IsValid(g) {
		return ""
	}
	return wkt.MarshalString(OrientCCW(g))
}

// OrientCCW returns a copy with counter-clockwise exterior rings and
// clockwise holes.
func OrientCCW(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon:
		return orientPolygon(geom.Clone())
	case orb.MultiPolygon:
		mp := geom.Clone()
		for i := range mp {
			mp[i] = orientPolygon(mp[i])
		}
		return mp
	}
	return g
}

func orientPolygon(p orb.Polygon) orb.Polygon {
	for i, r := range p {
		want := orb.CW
		if i == 0 {
			want = orb.CCW
		}
		if r.Orientation() != want {
			r.Reverse()
		}
	}
	return p
}

// Simplify applies Douglas-Peucker with tolerance in degrees. The input is
// returned unchanged when the simplified shape would be degenerate.
func Simplify(g orb.Geometry, tolerance float64) orb.Geometry {
	if !IsValid(g) {
		return g
	}
	simplified := simplify.DouglasPeucker(tolerance).Simplify(orb.Clone(g))
	if simplified == nil || !IsValid(simplified) {
		return g
	}
	return simplified
}

func Bounds(g orb.Geometry) orb.Bound {
	return g.Bound()
}

func Centroid(g orb.Geometry) orb.Point {
	centroid, _ := planar.CentroidArea(g)
	return centroid
}

// AreaHa is the spherical area of g in hectares.
func AreaHa(g orb.Geometry) float64 {
	return geo.Area(g) / 10000
}

func ToGeoJSON(g orb.Geometry) ([]byte, error) {
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode polygon: %w", err)
	}
	return data, nil
}

// ClosedRing closes points into a ring when the last point differs from the first.
func ClosedRing(points []orb.Point) orb.Ring {
	ring := orb.Ring(append([]orb.Point(nil), points...))
	if len(ring) > 0 && !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}
