package biodiversity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
)

// Counter returns the number of distinct species of a taxon recorded inside
// a WKT geometry.
type Counter interface {
	SpeciesCount(ctx context.Context, geometryWKT string, taxonKey int) (int, error)
}

// Client queries the GBIF occurrence search API.
type Client struct {
	baseURL string
	http    *http.Client
}

type facetCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type occurrenceSearchResponse struct {
	Count  int `json:"count"`
	Facets []struct {
		Field  string       `json:"field"`
		Counts []facetCount `json:"counts"`
	} `json:"facets"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SpeciesCount asks for zero records and a speciesKey facet, so only the
// distinct species are transferred.
func (c *Client) SpeciesCount(ctx context.Context, geometryWKT string, taxonKey int) (int, error) {
	params := url.Values{}
	params.Set("geometry", geometryWKT)
	params.Set("taxonKey", strconv.Itoa(taxonKey))
	params.Set("hasCoordinate", "true")
	params.Set("limit", "0")
	params.Set("facet", "speciesKey")
	params.Set("facetLimit", strconv.Itoa(properties.GbifFacetLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/occurrence/search?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error querying GBIF: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GBIF returned status %d for taxon %d", resp.StatusCode, taxonKey)
	}

	var body occurrenceSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("error decoding GBIF response: %w", err)
	}
	for _, facet := range body.Facets {
		if strings.EqualFold(facet.Field, "SPECIES_KEY") {
			return len(facet.Counts), nil
		}
	}
	return 0, nil
}

// TileURL is the GBIF maps API occurrence density tile for a taxon.
func TileURL(baseURL string, taxonKey, z, x, y int) string {
	return fmt.Sprintf("%s/v2/map/occurrence/density/%d/%d/%d@1x.png?taxonKey=%d&style=classic.point",
		strings.TrimRight(baseURL, "/"), z, x, y, taxonKey)
}
