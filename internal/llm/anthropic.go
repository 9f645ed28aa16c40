package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicVersion = "2023-06-01"
	// anthropicMaxTokens is sent when the request leaves MaxTokens unset; the
	// messages API requires the field.
	anthropicMaxTokens = 1024
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-3-haiku-20240307
	BaseURL string        // default: https://api.anthropic.com
	Timeout time.Duration // default: 60s
}

// AnthropicClient implements TextGenerator using the Anthropic Messages API.
// System messages travel in the dedicated system field.
type AnthropicClient struct {
	model string
	api   *endpoint
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	key := cfg.APIKey
	return &AnthropicClient{
		model: orDefault(cfg.Model, "claude-3-haiku-20240307"),
		api: newEndpoint("anthropic",
			orDefault(cfg.BaseURL, "https://api.anthropic.com"),
			orDefault(cfg.Timeout, 60*time.Second),
			func(h http.Header) {
				h.Set("x-api-key", key)
				h.Set("anthropic-version", anthropicVersion)
			}),
	}
}

type anthropicMessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate returns the concatenated text blocks of a message.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (string, error) {
	system, turns := splitSystem(req.Messages)

	var resp anthropicMessagesResponse
	err := c.api.post(ctx, "/v1/messages", anthropicMessagesRequest{
		Model:       modelOr(req, c.model),
		MaxTokens:   orDefault(req.MaxTokens, anthropicMaxTokens),
		System:      system,
		Temperature: req.Temperature,
		Messages:    turns,
	}, &resp)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic returned empty content: %w", ErrEmptyResponse)
	}
	return sb.String(), nil
}

func (c *AnthropicClient) GetModel() string { return c.model }

var _ TextGenerator = (*AnthropicClient)(nil)
