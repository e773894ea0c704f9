package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed    = 16711680
	colorGreen  = 65280
	colorYellow = 16766720
)

// Discord posts embeds to webhooks. An empty webhook URL turns the matching
// notification into a no-op.
type Discord struct {
	errorURL   string
	successURL string
	client     *http.Client
}

func NewDiscord(errorURL, successURL string) *Discord {
	return &Discord{
		errorURL:   errorURL,
		successURL: successURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// FromEnv reads the webhook URLs from the environment.
func FromEnv() *Discord {
	return NewDiscord(properties.DiscordErrorNotificationUrl(), properties.DiscordSuccessNotificationUrl())
}

func (d *Discord) Enabled() bool {
	return d != nil && (d.errorURL != "" || d.successURL != "")
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	return d.send(ctx, d.errorURL, DiscordEmbed{
		Title:       "🚨 Error en el diagnóstico",
		Description: errorMessage,
		Color:       colorRed,
	})
}

func (d *Discord) SendSuccess(ctx context.Context, successMessage string) error {
	return d.send(ctx, d.successURL, DiscordEmbed{
		Title:       "✅ Diagnóstico completado",
		Description: successMessage,
		Color:       colorGreen,
	})
}

// SendPartialFailure lists the sources that degraded during a diagnostic run.
func (d *Discord) SendPartialFailure(ctx context.Context, place string, failures []string) error {
	if len(failures) == 0 {
		return nil
	}
	description := fmt.Sprintf("Diagnóstico en %s completado con fuentes degradadas:\n- %s", place, strings.Join(failures, "\n- "))
	return d.send(ctx, d.errorURL, DiscordEmbed{
		Title:       "⚠️ Diagnóstico parcial",
		Description: description,
		Color:       colorYellow,
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if d == nil || url == "" {
		return nil
	}

	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
