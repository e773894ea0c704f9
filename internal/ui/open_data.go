package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/opendata"
)

const openDataPreviewRows = 5

func (a *App) DownloadOpenData() {
	PrintWarning("- El identificador del conjunto de datos aparece en la URL de datos.gov.co (por ejemplo gt2j-8ykr).\n- El filtro usa la sintaxis SoQL de $where y es opcional.")

	datasetID, err := ReadString("Identificador del conjunto de datos: ")
	if err != nil || datasetID == "" {
		PrintError("Debe indicar un identificador.")
		return
	}
	format, err := ReadString("Formato (json | csv) [json]: ")
	if err != nil {
		return
	}
	limit, err := ReadOptionalInt("Máximo de filas [1000]: ", 1000)
	if err != nil {
		PrintError(err.Error())
		return
	}
	where, err := ReadString("Filtro $where (opcional): ")
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	table, err := a.OpenData.Download(ctx, datasetID, opendata.Query{
		Format: opendata.Format(strings.ToLower(format)),
		Limit:  limit,
		Where:  where,
	})
	if err != nil {
		PrintError(fmt.Sprintf("Error descargando datos: %s", err.Error()))
		return
	}

	successColor.Printf("\n%d filas, columnas: %s\n", len(table.Rows), strings.Join(table.Columns, ", "))
	for i, row := range table.Rows {
		if i == openDataPreviewRows {
			break
		}
		values := make([]string, len(table.Columns))
		for j, column := range table.Columns {
			values[j] = row[column]
		}
		fmt.Println(strings.Join(values, " | "))
	}

	save, err := ReadString("¿Guardar como CSV? (s/n): ")
	if err != nil || !strings.EqualFold(save, "s") {
		return
	}
	resultPath, err := CreateResultDirectory("datos_abiertos")
	if err != nil {
		PrintError(err.Error())
		return
	}
	path := filepath.Join(resultPath, datasetID+".csv")
	if err := opendata.SaveCSV(table, path); err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess(fmt.Sprintf("Datos guardados en %s", path))
}
