package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextGenerator(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "ak-env")

	tests := []struct {
		name      string
		cfg       Config
		wantModel string
	}{
		{"openai default model", Config{Provider: "openai"}, "gpt-3.5-turbo"},
		{"openai mixed case", Config{Provider: "OpenAI", Model: "gpt-4"}, "gpt-4"},
		{"anthropic", Config{Provider: "anthropic", Model: "claude-3-opus-20240229"}, "claude-3-opus-20240229"},
		{"ollama", Config{Provider: "ollama"}, "llama3.2"},
		{"demo", Config{Provider: "demo"}, "demo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewTextGenerator(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, gen.GetModel())
		})
	}
}

func TestNewTextGenerator_APIKeyResolution(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	for _, tc := range []struct{ key, want string }{
		{"", "Bearer sk-env"},
		{"sk-explicit", "Bearer sk-explicit"},
	} {
		gen, err := NewTextGenerator(Config{Provider: "openai", APIKey: tc.key, BaseURL: srv.URL})
		require.NoError(t, err)
		_, err = gen.Generate(context.Background(), NewRequest("", "hi", 0, 0))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestNewTextGenerator_ConfigErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewTextGenerator(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewTextGenerator(Config{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewTextGenerator(Config{Provider: "cohere"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewEmbeddingGenerator(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	gen, err := NewEmbeddingGenerator(Config{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", gen.GetModel())

	gen, err = NewEmbeddingGenerator(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", gen.GetModel())

	gen, err = NewEmbeddingGenerator(Config{Provider: "anthropic"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	_, err = NewEmbeddingGenerator(Config{Provider: "nope"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestAvailableModels(t *testing.T) {
	assert.Equal(t, []string{"gpt-4", "gpt-4-turbo-preview", "gpt-3.5-turbo", "gpt-3.5-turbo-16k"}, AvailableModels("openai"))
	assert.Contains(t, AvailableModels("ANTHROPIC"), "claude-2.1")
	assert.Empty(t, AvailableModels("unknown"))

	// Callers cannot mutate the catalogue.
	models := AvailableModels("openai")
	models[0] = "changed"
	assert.Equal(t, "gpt-4", AvailableModels("openai")[0])
}
