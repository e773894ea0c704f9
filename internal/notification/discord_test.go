package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPartialFailure(t *testing.T) {
	var received DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	discord := NewDiscord(server.URL, "")
	require.True(t, discord.Enabled())
	err := discord.SendPartialFailure(context.Background(), "Mocoa, Putumayo", []string{"biomass: timeout", "gbif: status 503"})
	require.NoError(t, err)

	require.Len(t, received.Embeds, 1)
	assert.Equal(t, colorYellow, received.Embeds[0].Color)
	assert.Contains(t, received.Embeds[0].Description, "Mocoa, Putumayo")
	assert.Contains(t, received.Embeds[0].Description, "- gbif: status 503")
}

func TestSendWithoutWebhookIsNoop(t *testing.T) {
	discord := NewDiscord("", "")
	assert.False(t, discord.Enabled())
	assert.NoError(t, discord.SendError(context.Background(), "boom"))
	assert.NoError(t, discord.SendSuccess(context.Background(), "ok"))

	var nilDiscord *Discord
	assert.NoError(t, nilDiscord.SendError(context.Background(), "boom"))
}

func TestSendReportsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewDiscord("", server.URL).SendSuccess(context.Background(), "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
