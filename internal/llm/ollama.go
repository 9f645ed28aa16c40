package llm

import (
	"context"
	"fmt"
	"time"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	BaseURL string        // default: http://localhost:11434
	Model   string        // chat and embedding model (default: llama3.2)
	Timeout time.Duration // default: 60s
}

// OllamaClient talks to a local Ollama server. It serves both chat and
// embeddings with the same model.
type OllamaClient struct {
	model string
	api   *endpoint
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	return &OllamaClient{
		model: orDefault(cfg.Model, "llama3.2"),
		api: newEndpoint("ollama",
			orDefault(cfg.BaseURL, "http://localhost:11434"),
			orDefault(cfg.Timeout, 60*time.Second),
			nil),
	}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Generate sends a non-streaming chat request.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	var resp ollamaChatResponse
	err := c.api.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    modelOr(req, c.model),
		Messages: req.Messages,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Embed returns the embedding of text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	if err := c.api.post(ctx, "/api/embed", ollamaEmbedRequest{Model: c.model, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector: %w", ErrEmptyResponse)
	}
	return resp.Embeddings[0], nil
}

func (c *OllamaClient) GetModel() string { return c.model }

// ListModels returns the models installed on the server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	var resp ollamaTagsResponse
	if err := c.api.get(ctx, "/api/tags", &resp); err != nil {
		return nil, err
	}
	models := make([]string, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = m.Name
	}
	return models, nil
}

var (
	_ TextGenerator      = (*OllamaClient)(nil)
	_ EmbeddingGenerator = (*OllamaClient)(nil)
)
