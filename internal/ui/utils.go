package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
)

var (
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
	headerColor  = color.New(color.FgCyan, color.Bold)
)

// input is shared by every prompt so buffered bytes are never lost between
// reads.
var input = bufio.NewReader(os.Stdin)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	warningColor.Println("\nAdvertencia:")
	warningColor.Println(message)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	errorColor.Printf("\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	successColor.Printf("\n%s\n", message)
}

func PrintInfo(message string) {
	infoColor.Print(message)
}

func PrintHeader(title string) {
	headerColor.Printf("\n%s\n", title)
	headerColor.Println(strings.Repeat("=", len([]rune(title))))
}

// ReadString reads a trimmed line from stdin. It returns io.EOF once stdin
// is exhausted.
func ReadString(prompt string) (string, error) {
	PrintInfo(prompt)
	line, err := input.ReadString('\n')
	line = strings.TrimSpace(line)
	if err == io.EOF && line != "" {
		return line, nil
	}
	return line, err
}

// ReadInt reads an integer from stdin with validation
func ReadInt(prompt string, min, max int) (int, error) {
	raw, err := ReadString(prompt)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("número inválido: %s", raw)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("el valor debe estar entre %d y %d", min, max)
	}
	return value, nil
}

// ReadOptionalInt returns fallback when the answer is empty.
func ReadOptionalInt(prompt string, fallback int) (int, error) {
	raw, err := ReadString(prompt)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("número inválido: %s", raw)
	}
	return value, nil
}

// CreateResultDirectory creates data/result/<kind> and returns it.
func CreateResultDirectory(kind string) (string, error) {
	resultPath := filepath.Join(properties.ResultPath(), kind)
	if err := os.MkdirAll(resultPath, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create result folder: %w", err)
	}
	return resultPath, nil
}

// TerminalPrompter asks for the Earth Engine authorization code on the
// terminal.
type TerminalPrompter struct{}

func (TerminalPrompter) Prompt(authURL string) (string, error) {
	PrintWarning("No se encontraron credenciales de Google Earth Engine.")
	fmt.Printf("Abra este enlace en su navegador y autorice el acceso:\n\n%s\n\n", authURL)
	code, err := ReadString("Pegue el código de autorización: ")
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("empty authorization code")
	}
	return code, nil
}
