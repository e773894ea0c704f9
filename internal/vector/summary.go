package vector

import (
	"sort"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/utils"
)

// EmptyCategoryLabel groups features whose grouping attribute is blank.
const EmptyCategoryLabel = "Sin categoría"

// Feature is one intersected feature: its attributes and clipped area.
type Feature struct {
	Attributes map[string]string
	AreaHa     float64
}

type Row struct {
	Category string  `json:"category" csv:"Categoría"`
	AreaHa   float64 `json:"area_total_ha" csv:"area_total_ha"`
	Count    int     `json:"count_features" csv:"count_features"`
}

type Summary struct {
	LayerID  string     `json:"layer_id"`
	Title    string     `json:"title"`
	Grouping Resolution `json:"grouping"`
	Rows     []Row      `json:"rows"`
	Warnings []string   `json:"warnings,omitempty"`
}

func (s Summary) Empty() bool {
	return len(s.Rows) == 0
}

func (s Summary) TotalAreaHa() float64 {
	var total float64
	for _, row := range s.Rows {
		total += row.AreaHa
	}
	return total
}

// Location is the administrative unit with the largest intersected area.
type Location struct {
	Municipality string `json:"municipio,omitempty"`
	Department   string `json:"departamento,omitempty"`
}

func (l Location) IsZero() bool {
	return l.Municipality == ""
}

// Columns returns the union of attribute names, sorted.
func Columns(features []Feature) []string {
	seen := make(map[string]struct{})
	for _, f := range features {
		for name := range f.Attributes {
			seen[name] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// Summarize groups features by the resolved column, summing area and
// counting features. Rows are sorted by area descending.
func Summarize(features []Feature, resolution Resolution) []Row {
	if len(features) == 0 {
		return nil
	}

	if resolution.Kind == Unclassified {
		var total float64
		for _, f := range features {
			total += f.AreaHa
		}
		return []Row{{Category: properties.UnclassifiedLabel, AreaHa: utils.Round2(total), Count: len(features)}}
	}

	groups := make(map[string]*Row)
	for _, f := range features {
		category := strings.TrimSpace(f.Attributes[resolution.Column])
		if category == "" {
			category = EmptyCategoryLabel
		}
		row, ok := groups[category]
		if !ok {
			row = &Row{Category: category}
			groups[category] = row
		}
		row.AreaHa += f.AreaHa
		row.Count++
	}

	rows := make([]Row, 0, len(groups))
	for _, row := range groups {
		row.AreaHa = utils.Round2(row.AreaHa)
		rows = append(rows, *row)
	}
	return utils.SortDesc(rows, func(r Row) float64 { return r.AreaHa }, func(r Row) string { return r.Category })
}

// Locate finds the municipality with the greatest intersected area when the
// features carry municipio and departamen attributes. Ties go to the
// lexicographically smallest municipality. The department is taken from the
// first feature of the winning municipality.
func Locate(features []Feature) Location {
	columns := Columns(features)
	municipalityColumn, ok := columnFold(columns, "municipio")
	if !ok {
		return Location{}
	}
	departmentColumn, ok := columnFold(columns, "departamen")
	if !ok {
		return Location{}
	}

	areas := make(map[string]float64)
	departments := make(map[string]string)
	for _, f := range features {
		municipality := strings.TrimSpace(f.Attributes[municipalityColumn])
		if municipality == "" {
			continue
		}
		areas[municipality] += f.AreaHa
		if _, seen := departments[municipality]; !seen {
			departments[municipality] = strings.TrimSpace(f.Attributes[departmentColumn])
		}
	}

	var best string
	for municipality, area := range areas {
		if best == "" || area > areas[best] || (area == areas[best] && municipality < best) {
			best = municipality
		}
	}
	if best == "" {
		return Location{}
	}
	return Location{Municipality: best, Department: departments[best]}
}

func columnFold(columns []string, name string) (string, bool) {
	for _, column := range columns {
		if strings.EqualFold(column, name) {
			return column, true
		}
	}
	return "", false
}
