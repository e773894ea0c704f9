package polygon

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	latitudeColumns  = []string{"lat", "latitude", "latitud", "y"}
	longitudeColumns = []string{"lon", "lng", "long", "longitude", "longitud", "x"}
)

// FromGeoJSON accepts a Geometry, Feature or FeatureCollection document and
// returns the first polygonal geometry found.
func FromGeoJSON(data []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var candidates []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature collection: %w", err)
		}
		for _, f := range fc.Features {
			candidates = append(candidates, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("invalid feature: %w", err)
		}
		candidates = append(candidates, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("invalid geometry: %w", err)
		}
		candidates = append(candidates, g.Geometry())
	}

	for _, g := range candidates {
		if Parts(g) != nil {
			if err := Validate(g); err != nil {
				return nil, err
			}
			return g, nil
		}
	}
	return nil, ErrUnsupported
}

// FromCoordinateTable builds a polygon from a CSV table of vertices.
// Latitude and longitude columns are detected case-insensitively; rows whose
// coordinates do not parse are skipped.
func FromCoordinateTable(r io.Reader) (orb.Geometry, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read coordinate table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("coordinate table is empty")
	}

	columns := make([]string, 0, len(rows[0]))
	for column := range rows[0] {
		columns = append(columns, column)
	}
	latColumn, ok := findColumn(columns, latitudeColumns)
	if !ok {
		return nil, fmt.Errorf("no latitude column found in %v", columns)
	}
	lonColumn, ok := findColumn(columns, longitudeColumns)
	if !ok {
		return nil, fmt.Errorf("no longitude column found in %v", columns)
	}

	points := make([]orb.Point, 0, len(rows))
	for _, row := range rows {
		lat, errLat := parseCoordinate(row[latColumn])
		lon, errLon := parseCoordinate(row[lonColumn])
		if errLat != nil || errLon != nil {
			continue
		}
		points = append(points, orb.Point{lon, lat})
	}
	if len(points) < 3 {
		return nil, fmt.Errorf("coordinate table needs at least 3 valid points, found %d: %w", len(points), ErrDegenerate)
	}

	g := OrientCCW(orb.Polygon{ClosedRing(points)})
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// findColumn returns the first actual column matching candidates, in
// candidate order.
func findColumn(columns, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		for _, column := range columns {
			if strings.EqualFold(strings.TrimSpace(column), candidate) {
				return column, true
			}
		}
	}
	return "", false
}

func parseCoordinate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	return strconv.ParseFloat(raw, 64)
}
