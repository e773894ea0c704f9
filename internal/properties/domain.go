package properties

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer describes one thematic layer of the GeoPackage.
type Layer struct {
	ID        string `yaml:"id" json:"id"`
	Attribute string `yaml:"attribute" json:"attribute"`
	Title     string `yaml:"title" json:"title"`
}

var DefaultLayers = []Layer{
	{ID: "frontera_agricola_jun2025", Attribute: "elemento", Title: "Frontera Agrícola"},
	{ID: "runap__registro_unico_nacional_ap", Attribute: "nombre", Title: "Áreas Protegidas (RUNAP)"},
	{ID: "consejos_comunitarios", Attribute: "NOMBRE", Title: "Consejos Comunitarios"},
	{ID: "zonas_de_reserva_campesina", Attribute: "NOMBRE_ZON", Title: "Zonas de Reserva Campesina"},
	{ID: "centro_poblado", Attribute: "NOM_CPOB", Title: "Centros Poblados"},
	{ID: "ley_70_1993", Attribute: "DESCRIPCIO", Title: "Ley 70 de 1993"},
}

// GenericColumns are the attribute names accepted as a grouping column when a
// layer has no usable configured attribute.
var GenericColumns = []string{"categoria", "clase", "nombre", "name", "tipo", "objectid", "elemento"}

const UnclassifiedLabel = "Total Área (Sin clasificar)"

// AreaEPSG is the projected CRS (MAGNA-SIRGAS / Colombia Bogota) used to measure areas.
const AreaEPSG = 3116

type layerFile struct {
	Layers []Layer `yaml:"layers"`
}

// LoadLayers returns the layer table, read from LAYER_CONFIG_PATH when set.
func LoadLayers() ([]Layer, error) {
	path := LayerConfigPath()
	if path == "" {
		return DefaultLayers, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer config: %w", err)
	}
	return ParseLayers(data)
}

func ParseLayers(data []byte) ([]Layer, error) {
	var file layerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse layer config: %w", err)
	}
	if len(file.Layers) == 0 {
		return nil, fmt.Errorf("layer config has no layers")
	}
	for i, layer := range file.Layers {
		if layer.ID == "" {
			return nil, fmt.Errorf("layer %d has no id", i)
		}
		if layer.Title == "" {
			file.Layers[i].Title = layer.ID
		}
	}
	return file.Layers, nil
}

func LayerByID(layers []Layer, id string) (Layer, bool) {
	for _, layer := range layers {
		if layer.ID == id {
			return layer, true
		}
	}
	return Layer{}, false
}

// Forest cover legend of the categorical raster.
var Legend = map[int]string{
	1: "Bosque Estable",
	2: "Deforestación",
	3: "Regeneración",
	4: "No Bosque estable",
	5: "Sin información",
}

func LegendLabel(code int) string {
	if label, ok := Legend[code]; ok {
		return label
	}
	return fmt.Sprintf("Clase %d", code)
}

const RasterNoData = 0

type Taxon struct {
	Group string
	Key   int
}

var Taxa = []Taxon{
	{Group: "Aves", Key: 212},
	{Group: "Mamíferos", Key: 359},
	{Group: "Reptiles", Key: 358},
	{Group: "Anfibios", Key: 131},
	{Group: "Plantas Vasculares", Key: 7707728},
	{Group: "Mariposas", Key: 797},
}

const (
	BiodiversityWorkers   = 6
	SimplifyTolerance     = 0.001
	GbifFacetLimit        = 1000
	SatelliteScale        = 100
	SatelliteMaxPixels    = 1e9
	SatelliteTileScale    = 4
	CarbonFraction        = 0.5
	CO2PerCarbon          = 3.67
	BiomassCollection     = "LARSE/GEDI/GEDI04_A_002_MONTHLY"
	BiomassBand           = "agbd"
	CanopyCollection      = "projects/meta-forest-monitoring-okw37/assets/CanopyHeight"
	CanopyBand            = "height"
	ChatModel             = "llama-3.3-70b-versatile"
	ChatTemperature       = 0.5
	ChatMaxTokens         = 1024
	ReportTitle           = "Bitácora Territorial del Siglo XXI"
	ReportSubtitle        = "Tierra, Vida y Paz"
	ReportTeam            = "Equipo Datos al Ecosistema: Carlos Betancur, Paula Castro, Mario Ortegon y Santiago Restrepo"
	ReportMapMarginFactor = 0.8
)

type VisParams struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette"`
}

var BiomassVis = VisParams{Min: 0, Max: 150, Palette: []string{"ffffe5", "f7fcb9", "addd8e", "41ab5d", "238443", "005a32"}}

var CanopyVis = VisParams{Min: 0, Max: 25, Palette: []string{"f7fcf5", "caeac3", "7bc77c", "2a924a", "00441b"}}

type Color struct {
	R, G, B uint8
}

// ChartPalette colors the forest cover pie slices in row order.
var ChartPalette = []Color{
	{0x4C, 0xAF, 0x50},
	{0xFF, 0xC1, 0x07},
	{0xF4, 0x43, 0x36},
	{0x21, 0x96, 0xF3},
	{0x9C, 0x27, 0xB0},
}

var AccentColor = Color{0x2E, 0x86, 0xAB}

