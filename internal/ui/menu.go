package ui

import (
	"errors"
	"fmt"
	"io"

	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/chat"
	"github.com/forest-guardian/ecosystem-dashboard/internal/opendata"
)

// App is the state of one interactive terminal session.
type App struct {
	Session   *analysis.Session
	Assistant *chat.Assistant
	Runner    *analysis.Runner
	OpenData  *opendata.Client
}

func NewApp(runner *analysis.Runner, completer chat.Completer, openData *opendata.Client) *App {
	session := analysis.NewSession()
	return &App{
		Session:   session,
		Assistant: chat.NewAssistant(completer, session.Context),
		Runner:    runner,
		OpenData:  openData,
	}
}

type menuOption struct {
	title   string
	handler func()
}

// ShowMenu displays the main menu and handles user input until the user
// exits or stdin is closed.
func (a *App) ShowMenu() {
	exit := false
	menuOptions := []menuOption{
		{"Cargar polígono (GeoJSON, shapefile .zip o tabla de coordenadas .csv)", a.LoadPolygon},
		{"Ejecutar diagnóstico del territorio", a.RunDiagnostic},
		{"Ver tablas del diagnóstico", a.ShowTables},
		{"Conversar con el asistente", a.Chat},
		{"Generar reporte HTML", a.GenerateReport},
		{"Descargar datos abiertos (datos.gov.co)", a.DownloadOpenData},
		{"Salir", func() { fmt.Println("Saliendo..."); exit = true }},
	}

	for !exit {
		infoColor.Println("===================")
		for i, opt := range menuOptions {
			infoColor.Printf("%d. %s\n", i+1, opt.title)
		}

		choice, err := ReadInt("Seleccione una opción: ", 1, len(menuOptions))
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			PrintError(err.Error())
			continue
		}
		menuOptions[choice-1].handler()
	}
}
