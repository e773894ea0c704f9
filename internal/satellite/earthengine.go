package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/paulmach/orb"
)

// value is one node of an Earth Engine expression graph.
type value map[string]any

func constant(v any) value {
	return value{"constantValue": v}
}

func invoke(function string, args map[string]value) value {
	return value{"functionInvocationValue": map[string]any{
		"functionName": function,
		"arguments":    args,
	}}
}

func expression(root value) map[string]any {
	return map[string]any{
		"result": "0",
		"values": map[string]value{"0": root},
	}
}

func ringCoordinates(r orb.Ring) [][2]float64 {
	coords := make([][2]float64, len(r))
	for i, p := range r {
		coords[i] = [2]float64{p[0], p[1]}
	}
	return coords
}

func polygonCoordinates(p orb.Polygon) [][][2]float64 {
	rings := make([][][2]float64, len(p))
	for i, r := range p {
		rings[i] = ringCoordinates(r)
	}
	return rings
}

// geometryValue encodes a polygon or multipolygon as a planar WGS84 geometry.
func geometryValue(g orb.Geometry) (value, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		return invoke("GeometryConstructors.Polygon", map[string]value{
			"coordinates": constant(polygonCoordinates(geom)),
			"geodesic":    constant(false),
		}), nil
	case orb.MultiPolygon:
		coords := make([][][][2]float64, len(geom))
		for i, p := range geom {
			coords[i] = polygonCoordinates(p)
		}
		return invoke("GeometryConstructors.MultiPolygon", map[string]value{
			"coordinates": constant(coords),
			"geodesic":    constant(false),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

func filteredCollection(collectionID string, region value) value {
	return invoke("Collection.filter", map[string]value{
		"collection": invoke("ImageCollection.load", map[string]value{"id": constant(collectionID)}),
		"filter": invoke("Filter.intersects", map[string]value{
			"leftField":  constant(".all"),
			"rightValue": region,
		}),
	})
}

// biomassImage is the mean above-ground biomass density band over the region.
func biomassImage(region value) value {
	mean := invoke("reduce.mean", map[string]value{
		"collection": filteredCollection(properties.BiomassCollection, region),
	})
	return invoke("Image.select", map[string]value{
		"input":         mean,
		"bandSelectors": constant([]string{properties.BiomassBand}),
	})
}

// canopyImage mosaics the canopy height tiles and renames the single band.
func canopyImage(region value) value {
	mosaic := invoke("ImageCollection.mosaic", map[string]value{
		"collection": filteredCollection(properties.CanopyCollection, region),
	})
	return invoke("Image.rename", map[string]value{
		"input": mosaic,
		"names": constant([]string{properties.CanopyBand}),
	})
}

func clipped(image, region value) value {
	return invoke("Image.clip", map[string]value{"input": image, "geometry": region})
}

func meanOverRegion(image, region value) value {
	return invoke("Image.reduceRegion", map[string]value{
		"image":      image,
		"reducer":    invoke("Reducer.mean", map[string]value{}),
		"geometry":   region,
		"scale":      constant(properties.SatelliteScale),
		"maxPixels":  constant(properties.SatelliteMaxPixels),
		"tileScale":  constant(properties.SatelliteTileScale),
		"bestEffort": constant(true),
	})
}

// Engine evaluates expressions and builds map tiles.
type Engine interface {
	Compute(ctx context.Context, expr map[string]any) (json.RawMessage, error)
	TileURL(ctx context.Context, expr map[string]any, band string, vis properties.VisParams) (string, error)
}

// RESTEngine talks to the Earth Engine v1 REST API using an authorized session.
type RESTEngine struct {
	baseURL string
	project string
	session *Session
}

func NewRESTEngine(baseURL, project string, session *Session) *RESTEngine {
	return &RESTEngine{baseURL: strings.TrimRight(baseURL, "/"), project: project, session: session}
}

func (e *RESTEngine) post(ctx context.Context, method string, payload any, out any) error {
	client, err := e.session.HTTPClient(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/projects/%s/%s", e.baseURL, e.project, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error calling earth engine %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("earth engine %s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding earth engine response: %w", err)
	}
	return nil
}

func (e *RESTEngine) Compute(ctx context.Context, expr map[string]any) (json.RawMessage, error) {
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := e.post(ctx, "value:compute", map[string]any{"expression": expr}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (e *RESTEngine) TileURL(ctx context.Context, expr map[string]any, band string, vis properties.VisParams) (string, error) {
	payload := map[string]any{
		"expression": expr,
		"fileFormat": "PNG",
		"bandIds":    []string{band},
		"visualizationOptions": map[string]any{
			"ranges":        []map[string]float64{{"min": vis.Min, "max": vis.Max}},
			"paletteColors": vis.Palette,
		},
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := e.post(ctx, "maps", payload, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", fmt.Errorf("earth engine maps returned no map id")
	}
	return fmt.Sprintf("%s/v1/%s/tiles/{z}/{x}/{y}", e.baseURL, out.Name), nil
}
