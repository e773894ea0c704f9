package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Chunks is an open completion stream. Recv returns io.EOF once the
// completion is finished.
type Chunks interface {
	Recv() (string, error)
	Close() error
}

// Completer starts a streamed chat completion.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Chunks, error)
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GroqClient talks to the OpenAI compatible Groq chat completions endpoint.
type GroqClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var ErrMissingAPIKey = errors.New("GROQ_API_KEY is not set")

func NewGroqClient(baseURL, apiKey string) *GroqClient {
	return &GroqClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   properties.ChatModel,
		client:  &http.Client{},
	}
}

func (c *GroqClient) Complete(ctx context.Context, messages []Message) (Chunks, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: properties.ChatTemperature,
		MaxTokens:   properties.ChatMaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach completion API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("completion API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return &sseChunks{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// sseChunks reads "data:" events until the [DONE] marker.
type sseChunks struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseChunks) Recv() (string, error) {
	for !s.done && s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			break
		}

		var event streamResponse
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return "", fmt.Errorf("malformed stream event: %w", err)
		}
		if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
			return event.Choices[0].Delta.Content, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseChunks) Close() error {
	s.done = true
	return s.body.Close()
}
