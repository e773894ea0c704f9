package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/chat"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
)

// AskAndPrint streams one answer to w. The partial answer stays in the
// transcript when ctx is cancelled.
func AskAndPrint(ctx context.Context, w io.Writer, assistant *chat.Assistant, question string) error {
	stream, err := assistant.Ask(ctx, question)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		chunk, ok := stream.Next(ctx)
		if !ok {
			break
		}
		fmt.Fprint(w, chunk)
	}
	fmt.Fprintln(w)
	return stream.Err()
}

// Chat runs the conversation loop. An empty line or "salir" returns to the
// menu; "limpiar" clears the conversation; Ctrl+C stops the current answer.
func (a *App) Chat() {
	if !a.Session.Context().Processed {
		PrintWarning("Aún no hay diagnóstico: el asistente responderá sin datos del territorio.")
	}
	successColor.Println("\nAsistente del territorio. Escriba 'salir' para volver al menú o 'limpiar' para reiniciar la conversación.")

	for {
		question, err := ReadString("\nUsted: ")
		if err != nil {
			return
		}
		switch strings.ToLower(question) {
		case "", "salir":
			return
		case "limpiar":
			a.Assistant.Reset()
			PrintSuccess("Conversación reiniciada.")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), properties.ChatTimeout())
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		successColor.Print("Asistente: ")
		err = AskAndPrint(ctx, os.Stdout, a.Assistant, question)
		stop()
		cancel()

		switch {
		case errors.Is(err, context.Canceled):
			PrintWarning("Respuesta interrumpida.")
		case errors.Is(err, context.DeadlineExceeded):
			PrintWarning("La respuesta tardó demasiado y fue interrumpida.")
		case errors.Is(err, chat.ErrMissingAPIKey):
			PrintError("Configure GROQ_API_KEY para usar el asistente.")
			return
		case err != nil:
			PrintError(err.Error())
		}
	}
}
