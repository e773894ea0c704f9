package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/schollz/progressbar/v3"
)

// RunDiagnostic runs every source for the loaded polygon with a progress
// bar. Ctrl+C aborts the run.
func (a *App) RunDiagnostic() {
	if a.Session.Polygon() == nil {
		PrintError("Primero cargue un polígono.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progressBar := progressbar.Default(int64(a.Runner.Steps()), "Diagnóstico")
	a.Runner.OnProgress(func(source string) {
		progressBar.Describe(source)
		_ = progressBar.Add(1)
	})
	defer a.Runner.OnProgress(nil)

	result, err := a.Runner.Run(ctx, a.Session)
	_ = progressBar.Finish()
	if errors.Is(err, analysis.ErrPolygonChanged) || errors.Is(err, analysis.ErrNoPolygon) {
		PrintError(err.Error())
		return
	}
	if err != nil {
		PrintError(fmt.Sprintf("Error ejecutando el diagnóstico: %s", err.Error()))
		return
	}

	for _, w := range result.Warnings {
		warningColor.Printf("- %s\n", w.String())
	}
	if len(result.Failures()) > 0 {
		PrintWarning("El diagnóstico terminó con fuentes no disponibles; sus valores quedaron vacíos.")
	}
	PrintSuccess(fmt.Sprintf("Diagnóstico completo para %s: %.1f ha de bosque, %d especies registradas.",
		result.Place(), result.ForestHa(), result.TotalSpecies()))
}
