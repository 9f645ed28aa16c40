// Package vectorindex is an exact nearest-neighbour index over document
// embeddings. Search compares the query against every stored vector with
// squared Euclidean distance, so results are exact rather than approximate.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/pkg/types"
)

var (
	// ErrDimensionMismatch is returned when a vector's width differs from the
	// width fixed by the first batch. It is a configuration error.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEncoder is returned when the encoder breaks its contract.
	ErrEncoder = errors.New("encoder contract violation")
)

// Stats describes an index.
type Stats struct {
	NumDocuments int    `json:"num_documents"`
	Dimension    int    `json:"embedding_dimension"`
	Model        string `json:"model"`
}

// Index stores documents with their embeddings. Add is exclusive with Search.
type Index struct {
	enc embedding.Encoder

	mu      sync.RWMutex
	docs    []types.Document
	vectors [][]float32
	dim     int // 0 until the first batch
}

// New creates an empty index using enc for documents and queries.
func New(enc embedding.Encoder) *Index {
	return &Index{enc: enc}
}

// Add embeds texts and appends them with sequential IDs. The first non-empty
// batch fixes the index width; a batch that disagrees with it, or with
// itself, is rejected and leaves the index unchanged.
func (x *Index) Add(ctx context.Context, texts []string) ([]types.Document, error) {
	if len(texts) == 0 {
		return []types.Document{}, nil
	}

	vecs, err := x.enc.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrEncoder, len(vecs), len(texts))
	}

	batchDim := len(vecs[0])
	if batchDim == 0 {
		return nil, fmt.Errorf("%w: zero-width embedding", ErrEncoder)
	}
	for i, v := range vecs {
		if len(v) != batchDim {
			return nil, fmt.Errorf("%w: document %d has width %d, batch has %d", ErrDimensionMismatch, i, len(v), batchDim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim != 0 && batchDim != x.dim {
		return nil, fmt.Errorf("%w: index has width %d, batch has %d", ErrDimensionMismatch, x.dim, batchDim)
	}
	x.dim = batchDim

	added := make([]types.Document, len(texts))
	for i, text := range texts {
		doc := types.Document{ID: len(x.docs), Text: text}
		x.docs = append(x.docs, doc)
		x.vectors = append(x.vectors, vecs[i])
		added[i] = doc
	}
	return added, nil
}

// Search returns the min(topK, n) nearest documents to query, sorted by
// ascending distance with ties broken by document ID. Ranks start at 1.
// An empty index or non-positive topK yields an empty slice without
// embedding the query.
func (x *Index) Search(ctx context.Context, query string, topK int) ([]types.RetrievalResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.docs) == 0 || topK <= 0 {
		return []types.RetrievalResult{}, nil
	}

	qv, err := x.enc.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("%w: %d vectors for 1 query", ErrEncoder, len(qv))
	}
	if len(qv[0]) != x.dim {
		return nil, fmt.Errorf("%w: query has width %d, index has %d", ErrDimensionMismatch, len(qv[0]), x.dim)
	}

	type hit struct {
		id   int
		dist float64
	}
	hits := make([]hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = hit{id: i, dist: SquaredL2(qv[0], v)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].id < hits[j].id
	})

	k := min(topK, len(hits))
	results := make([]types.RetrievalResult, k)
	for i := 0; i < k; i++ {
		h := hits[i]
		results[i] = types.RetrievalResult{
			Rank:       i + 1,
			Document:   x.docs[h.id].Text,
			DocumentID: h.id,
			Distance:   h.dist,
			Similarity: types.SimilarityFromDistance(h.dist),
		}
	}
	return results, nil
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Dimension returns the index width, 0 while empty.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Documents returns a copy of the indexed documents in ID order.
func (x *Index) Documents() []types.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]types.Document{}, x.docs...)
}

func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Stats{NumDocuments: len(x.docs), Dimension: x.dim, Model: x.enc.Model()}
}

// SquaredL2 is the squared Euclidean distance between equal-width vectors.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
