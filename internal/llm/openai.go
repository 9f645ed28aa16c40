package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const openAIBaseURL = "https://api.openai.com"

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	Model   string        // default: gpt-3.5-turbo
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 60s
}

// OpenAIClient implements TextGenerator using the OpenAI chat completions API.
type OpenAIClient struct {
	model string
	api   *endpoint
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		model: orDefault(cfg.Model, DefaultModel),
		api: newEndpoint("openai",
			orDefault(cfg.BaseURL, openAIBaseURL),
			orDefault(cfg.Timeout, 60*time.Second),
			bearer(cfg.APIKey)),
	}
}

func bearer(key string) func(http.Header) {
	return func(h http.Header) { h.Set("Authorization", "Bearer "+key) }
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Generate returns the first choice of a chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	var resp openAIChatResponse
	err := c.api.post(ctx, "/v1/chat/completions", openAIChatRequest{
		Model:       modelOr(req, c.model),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) GetModel() string { return c.model }

// OpenAIEmbeddingConfig holds configuration for the OpenAI embedding client.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string        // default: text-embedding-3-small
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 30s
}

// OpenAIEmbeddingClient implements EmbeddingGenerator using the OpenAI
// embeddings API.
type OpenAIEmbeddingClient struct {
	model string
	api   *endpoint
}

// NewOpenAIEmbeddingClient creates a new OpenAI embedding client.
func NewOpenAIEmbeddingClient(cfg OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	return &OpenAIEmbeddingClient{
		model: orDefault(cfg.Model, "text-embedding-3-small"),
		api: newEndpoint("openai-embeddings",
			orDefault(cfg.BaseURL, openAIBaseURL),
			orDefault(cfg.Timeout, 30*time.Second),
			bearer(cfg.APIKey)),
	}
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding of text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp openAIEmbeddingResponse
	if err := c.api.post(ctx, "/v1/embeddings", openAIEmbeddingRequest{Model: c.model, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned empty embedding: %w", ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIEmbeddingClient) GetModel() string { return c.model }

var (
	_ TextGenerator      = (*OpenAIClient)(nil)
	_ EmbeddingGenerator = (*OpenAIEmbeddingClient)(nil)
)
