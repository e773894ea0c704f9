package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/biodiversity"
	"github.com/forest-guardian/ecosystem-dashboard/internal/raster"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Warning is a per-source message collected during a diagnostic run.
// Failed marks degraded sources, as opposed to valid empty outcomes.
type Warning struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Failed  bool   `json:"failed"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Source, w.Message)
}

// Context is the snapshot of the last diagnostic for a polygon. It is
// replaced wholesale on every run and never merged.
type Context struct {
	Polygon      orb.Geometry                 `json:"-"`
	Vector       []vector.Summary             `json:"vector"`
	Raster       raster.Summary               `json:"raster"`
	Biodiversity []biodiversity.GroupRichness `json:"biodiversity"`
	Biomass      satellite.Result             `json:"biomass"`
	Canopy       satellite.Result             `json:"canopy"`
	Location     vector.Location              `json:"location"`
	Processed    bool                         `json:"processed"`
	Warnings     []Warning                    `json:"warnings,omitempty"`
	GeneratedAt  time.Time                    `json:"generated_at"`
}

func (c Context) MarshalJSON() ([]byte, error) {
	type alias Context
	out := struct {
		alias
		Polygon *geojson.Geometry `json:"polygon,omitempty"`
	}{alias: alias(c)}
	if c.Polygon != nil {
		out.Polygon = geojson.NewGeometry(c.Polygon)
	}
	return json.Marshal(out)
}

// Layer returns the summary for a layer title.
func (c *Context) Layer(title string) (vector.Summary, bool) {
	for _, s := range c.Vector {
		if s.Title == title {
			return s, true
		}
	}
	return vector.Summary{}, false
}

// IntersectedLayers are the vector summaries with at least one row, in
// layer table order.
func (c *Context) IntersectedLayers() []vector.Summary {
	var out []vector.Summary
	for _, s := range c.Vector {
		if !s.Empty() {
			out = append(out, s)
		}
	}
	return out
}

// ForestHa sums the raster rows whose legend mentions "Bosque".
func (c *Context) ForestHa() float64 {
	return c.Raster.AreaHaMatching(func(label string) bool {
		return strings.Contains(strings.ToLower(label), "bosque")
	})
}

func (c *Context) TotalSpecies() int {
	return biodiversity.TotalSpecies(c.Biodiversity)
}

// Place is "municipality, department" with the defaults used when no
// administrative layer intersected.
func (c *Context) Place() string {
	municipality, department := c.Location.Municipality, c.Location.Department
	if municipality == "" {
		municipality = "Desconocido"
	}
	if department == "" {
		department = "Colombia"
	}
	return municipality + ", " + department
}

func (c *Context) Failures() []string {
	var out []string
	for _, w := range c.Warnings {
		if w.Failed {
			out = append(out, w.String())
		}
	}
	return out
}
