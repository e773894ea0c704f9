package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/polygon"
	"github.com/paulmach/orb"
)

// pickFeature chooses which feature of a multi-feature shapefile to use.
type pickFeature func(previews []polygon.FeaturePreview) (int, error)

// LoadPolygonFile reads a region of interest from a .geojson/.json, zipped
// shapefile or .csv vertex table.
func LoadPolygonFile(path string, pick pickFeature) (orb.Geometry, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return polygon.FromGeoJSON(data)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return polygon.FromCoordinateTable(f)
	case ".zip":
		previews, err := polygon.ListShapefileFeatures(path)
		if err != nil {
			return nil, err
		}
		if len(previews) == 0 {
			return nil, fmt.Errorf("el shapefile no contiene polígonos")
		}
		index := previews[0].Index
		if len(previews) > 1 && pick != nil {
			if index, err = pick(previews); err != nil {
				return nil, err
			}
		}
		return polygon.FromShapefileZip(path, index)
	default:
		return nil, fmt.Errorf("tipo de archivo no soportado: %q", ext)
	}
}

func describeFeature(p polygon.FeaturePreview) string {
	names := make([]string, 0, len(p.Attributes))
	for name := range p.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, 3)
	for _, name := range names {
		if len(parts) == 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, p.Attributes[name]))
	}
	return strings.Join(parts, ", ")
}

func pickFromTerminal(previews []polygon.FeaturePreview) (int, error) {
	successColor.Println("\nPolígonos disponibles:")
	for i, p := range previews {
		successColor.Printf("%d. %s\n", i+1, describeFeature(p))
	}
	choice, err := ReadInt("Seleccione el polígono a analizar: ", 1, len(previews))
	if err != nil {
		return 0, err
	}
	return previews[choice-1].Index, nil
}

// LoadPolygon asks for a file and installs its polygon in the session. The
// previous analysis is discarded.
func (a *App) LoadPolygon() {
	PrintWarning("- Formatos aceptados: .geojson, .json, shapefile comprimido (.zip) o .csv con columnas lat/lon.\n- Las coordenadas deben estar en WGS84 salvo en shapefiles con .prj.")
	path, err := ReadString("Ruta del archivo: ")
	if err != nil {
		PrintError(err.Error())
		return
	}

	g, err := LoadPolygonFile(path, pickFromTerminal)
	if err != nil {
		PrintError(fmt.Sprintf("No se pudo cargar el polígono: %s", err.Error()))
		return
	}
	if err := a.Session.SetPolygon(g); err != nil {
		PrintError(err.Error())
		return
	}
	a.Assistant.Reset()
	PrintSuccess(fmt.Sprintf("Polígono cargado: %.1f ha.", polygon.AreaHa(g)))
}
