package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEncoder_Deterministic(t *testing.T) {
	enc := NewHashingEncoder(0)
	ctx := context.Background()

	a, err := enc.Encode(ctx, []string{"Phishing attacks steal credentials", "Firewalls filter traffic"})
	require.NoError(t, err)
	b, err := enc.Encode(ctx, []string{"Phishing attacks steal credentials", "Firewalls filter traffic"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, 2)
	assert.Len(t, a[0], DefaultDimensions)
	assert.Equal(t, "hashing-384", enc.Model())
}

func TestHashingEncoder_Normalized(t *testing.T) {
	vecs, err := NewHashingEncoder(64).Encode(context.Background(), []string{"ransomware encrypts files", ""})
	require.NoError(t, err)

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)

	// Empty text has no features.
	for _, v := range vecs[1] {
		assert.Zero(t, v)
	}
}

func TestHashingEncoder_SharedVocabularyIsCloser(t *testing.T) {
	vecs, err := NewHashingEncoder(0).Encode(context.Background(), []string{
		"What is phishing?",
		"Phishing is a social engineering attack that tricks users.",
		"DDoS attacks overwhelm a server with traffic.",
	})
	require.NoError(t, err)

	assert.Greater(t, Cosine(vecs[0], vecs[1]), Cosine(vecs[0], vecs[2]))
}

func TestHashingEncoder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingEncoder(0).Encode(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"man", "in", "the", "middle", "attacks", "ids", "ips"},
		Tokenize("Man-in-the-Middle attacks; IDS/IPS"))
	assert.Empty(t, Tokenize("  ?! "))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}

// countingEncoder records how many texts reach it.
type countingEncoder struct {
	inner Encoder
	seen  int
	err   error
}

func (c *countingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.seen += len(texts)
	return c.inner.Encode(ctx, texts)
}

func (c *countingEncoder) Model() string { return c.inner.Model() }

func TestCachedEncoder(t *testing.T) {
	base := &countingEncoder{inner: NewHashingEncoder(32)}
	cached, err := NewCachedEncoder(base, 8)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Encode(ctx, []string{"a", "b"})
	require.NoError(t, err)
	second, err := cached.Encode(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 3, base.seen)

	stats := cached.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, "hashing-32", cached.Model())
}

func TestCachedEncoder_PropagatesErrors(t *testing.T) {
	boom := errors.New("model offline")
	cached, err := NewCachedEncoder(&countingEncoder{inner: NewHashingEncoder(8), err: boom}, 0)
	require.NoError(t, err)

	_, err = cached.Encode(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cached.Stats().Size)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty input")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (fakeEmbedder) GetModel() string { return "fake-embed" }

func TestGeneratorEncoder(t *testing.T) {
	enc := NewGeneratorEncoder(fakeEmbedder{})
	vecs, err := enc.Encode(context.Background(), []string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {4, 1}}, vecs)
	assert.Equal(t, "fake-embed", enc.Model())

	_, err = enc.Encode(context.Background(), []string{"ok", ""})
	assert.ErrorContains(t, err, "embed text 1")
}
