package types

// Document is a text blob stored in a vector index. IDs are assigned
// sequentially in insertion order, starting at 0.
type Document struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// RetrievalResult is one ranked nearest-neighbour hit.
//
// Distance is the squared L2 distance between query and document embeddings.
// Similarity is 1/(1+Distance): monotonically decreasing in distance and only
// comparable between results of the same embedding model.
type RetrievalResult struct {
	Rank       int     `json:"rank"`
	Document   string  `json:"document"`
	DocumentID int     `json:"document_id"`
	Distance   float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// SimilarityFromDistance converts a distance into the similarity score.
func SimilarityFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}

// ContextBundle is the per-query fusion of extracted entities and their
// knowledge graph context.
type ContextBundle struct {
	IdentifiedEntities []string                  `json:"identified_entities"`
	EntityContexts     map[string]*EntityContext `json:"entity_contexts"`
	Mitigations        []MitigationPath          `json:"mitigations"`
	RelatedThreats     []string                  `json:"related_threats"`
	Vulnerabilities    []string                  `json:"vulnerabilities"`
}

// NewContextBundle returns an empty bundle with non-nil collections.
func NewContextBundle() *ContextBundle {
	return &ContextBundle{
		IdentifiedEntities: []string{},
		EntityContexts:     map[string]*EntityContext{},
		Mitigations:        []MitigationPath{},
		RelatedThreats:     []string{},
		Vulnerabilities:    []string{},
	}
}
