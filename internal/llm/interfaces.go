// Package llm provides language model clients used to generate answers and
// embeddings: OpenAI, Anthropic and Ollama over their HTTP APIs, plus a demo
// generator and decorators for retry, rate limiting and response caching.
package llm

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat completion request.
// Model overrides the client's configured model when set.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// NewRequest builds a request with a system message and one user message.
func NewRequest(system, user string, temperature float64, maxTokens int) Request {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user})
	return Request{Messages: msgs, Temperature: temperature, MaxTokens: maxTokens}
}

// TextGenerator is the interface for chat completion.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// splitSystem separates system messages from the conversation turns.
// Providers with a dedicated system field (Anthropic) use it.
func splitSystem(msgs []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func modelOr(req Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}
