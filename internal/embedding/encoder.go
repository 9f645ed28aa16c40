// Package embedding turns text into fixed-width float32 vectors for the vector
// index and the evaluator.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/scrypster/cyberrag/internal/llm"
)

// Encoder embeds a batch of texts. Output order matches input order and a
// given model always produces vectors of one width.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// GeneratorEncoder adapts a remote llm.EmbeddingGenerator (OpenAI, Ollama)
// to Encoder, embedding one text per call.
type GeneratorEncoder struct {
	gen llm.EmbeddingGenerator
}

// NewGeneratorEncoder wraps gen.
func NewGeneratorEncoder(gen llm.EmbeddingGenerator) *GeneratorEncoder {
	return &GeneratorEncoder{gen: gen}
}

func (g *GeneratorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := g.gen.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (g *GeneratorEncoder) Model() string {
	return g.gen.GetModel()
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// is zero or the widths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
