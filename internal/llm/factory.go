package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderDemo      = "demo"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-3.5-turbo"

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string // falls back to OPENAI_API_KEY / ANTHROPIC_API_KEY
	BaseURL  string
	Timeout  time.Duration

	EmbeddingModel string
}

// apiKeyEnv maps hosted providers to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

func resolveAPIKey(provider, key string) (string, error) {
	if key != "" {
		return key, nil
	}
	env, ok := apiKeyEnv[provider]
	if !ok {
		return "", nil
	}
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s (set %s)", ErrMissingAPIKey, provider, env)
}

// NewTextGenerator creates the TextGenerator for cfg.Provider.
// Missing credentials and unknown providers are configuration errors.
func NewTextGenerator(cfg Config) (TextGenerator, error) {
	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOpenAI:
		key, err := resolveAPIKey(provider, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return NewOpenAIClient(OpenAIConfig{APIKey: key, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case ProviderAnthropic:
		key, err := resolveAPIKey(provider, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return NewAnthropicClient(AnthropicConfig{APIKey: key, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case ProviderOllama:
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	case ProviderDemo:
		return NewDemoGenerator(cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// NewEmbeddingGenerator creates an EmbeddingGenerator for providers with an
// embeddings endpoint. Returns (nil, nil) for providers without one
// (Anthropic, demo); callers fall back to the offline encoder.
func NewEmbeddingGenerator(cfg Config) (EmbeddingGenerator, error) {
	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOpenAI:
		key, err := resolveAPIKey(provider, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{APIKey: key, Model: cfg.EmbeddingModel, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case ProviderOllama:
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: model, Timeout: cfg.Timeout}), nil
	case ProviderAnthropic, ProviderDemo:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
