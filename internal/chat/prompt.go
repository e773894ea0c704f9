package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/satellite"
)

const NoAnalysisPrompt = "Eres un asistente experto en territorio y paz. Actualmente el usuario NO ha generado ningún análisis. Invítalo amablemente a dibujar un polígono y ejecutar el diagnóstico primero."

const instructions = `INSTRUCCIONES:
1. Responde SIEMPRE basándote en estos datos.
2. Usa un tono empático, profesional y constructivo (enfocado en Paz y Desarrollo Sostenible).
3. Si el usuario pregunta algo que no está en los datos, usa tu conocimiento general sobre geografía colombiana, pero aclara que es información general.
4. Sé conciso. Respuestas de máximo 3 o 4 párrafos.
5. Si hay mucho CO2 o Bosque, felicita al usuario por el potencial de bonos de carbono.`

func formatStat(r satellite.Result, name string) string {
	v, ok := r.Stat(name)
	if !ok {
		return "sin dato"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildSystemPrompt turns the analysis snapshot into the grounding prompt.
// It is rebuilt for every question and never stored in the transcript.
func BuildSystemPrompt(c *analysis.Context) string {
	if c == nil || !c.Processed {
		return NoAnalysisPrompt
	}

	forest := "No se detectó bosque."
	if !c.Raster.Empty() {
		forest = fmt.Sprintf("El predio tiene %.1f hectáreas de bosque natural.", c.ForestHa())
	}

	legal := "No se encontraron intersecciones legales (Frontera agrícola, Parques, etc)."
	if layers := c.IntersectedLayers(); len(layers) > 0 {
		lines := make([]string, 0, len(layers))
		for _, layer := range layers {
			lines = append(lines, fmt.Sprintf("- %s: %.1f ha intersectadas.", layer.Title, layer.TotalAreaHa()))
		}
		legal = strings.Join(lines, "\n")
	}

	biomass := "Sin datos de biomasa."
	if len(c.Biomass.Stats) > 0 {
		biomass = fmt.Sprintf("Biomasa media: %s Mg/ha. Potencial de Carbono Total: %s Toneladas. Potencial de Captura CO2e: %s Toneladas.",
			formatStat(c.Biomass, satellite.StatMeanBiomass),
			formatStat(c.Biomass, satellite.StatCarbon),
			formatStat(c.Biomass, satellite.StatCO2))
	}

	var b strings.Builder
	b.WriteString("Actúa como un Asistente Experto de la 'Comisión Corográfica del Siglo XXI'.\n")
	b.WriteString("Tu misión es apoyar a comunidades campesinas, entidades y tomadores de decisiones.\n\n")
	b.WriteString("ESTÁS ANALIZANDO EL SIGUIENTE PREDIO EN TIEMPO REAL:\n")
	fmt.Fprintf(&b, "- Ubicación: %s\n", c.Place())
	fmt.Fprintf(&b, "- Componente Bosque: %s\n", forest)
	fmt.Fprintf(&b, "- Componente Legal/Restrictivo:\n%s\n", legal)
	fmt.Fprintf(&b, "- Inteligencia Satelital (Clima): %s\n", biomass)
	fmt.Fprintf(&b, "- Biodiversidad Potencial: %d especies registradas históricamente en la zona.\n\n", c.TotalSpecies())
	b.WriteString(instructions)
	return b.String()
}
