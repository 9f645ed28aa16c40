package embedding

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"unicode"
)

// DefaultDimensions matches the width of all-MiniLM-L6-v2.
const DefaultDimensions = 384

// HashingEncoder is an offline, deterministic bag-of-features encoder.
//
// Each text is lowercased and split into word tokens. Every token (weight 1)
// and every adjacent token pair (weight 0.5) is hashed with FNV-1a into one of
// Dimensions buckets with a hash-derived sign, and the vector is L2
// normalized. Texts sharing vocabulary land close together, which is enough
// for the retrieval comparison to be meaningful without a model server.
type HashingEncoder struct {
	dims int
}

// NewHashingEncoder creates an encoder of the given width
// (DefaultDimensions when dims <= 0).
func NewHashingEncoder(dims int) *HashingEncoder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashingEncoder{dims: dims}
}

func (h *HashingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.encode(text)
	}
	return out, nil
}

func (h *HashingEncoder) Model() string {
	return "hashing-" + strconv.Itoa(h.dims)
}

// Dimensions returns the vector width.
func (h *HashingEncoder) Dimensions() int {
	return h.dims
}

func (h *HashingEncoder) encode(text string) []float32 {
	vec := make([]float32, h.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(vec)
	return vec
}

func (h *HashingEncoder) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	bucket := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
