package rag

import (
	"strings"

	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/pkg/types"
)

// Extractor finds knowledge graph entity names in free text.
//
// Matching is a case-insensitive substring test with no word boundaries, so
// "Encryption" also matches inside "Insufficient Encryption" and short names
// can match inside unrelated words.
type Extractor struct {
	kg *graph.KnowledgeGraph
}

// NewExtractor creates an extractor over kg. Names are read on every call,
// so entities added to kg later are found too.
func NewExtractor(kg *graph.KnowledgeGraph) *Extractor {
	return &Extractor{kg: kg}
}

// Extract returns the entity names found in text, in catalogue order.
func (e *Extractor) Extract(text string) []string {
	haystack := strings.ToLower(text)
	found := []string{}
	for _, name := range e.kg.Names() {
		if strings.Contains(haystack, strings.ToLower(name)) {
			found = append(found, name)
		}
	}
	return found
}

// Expander fuses extracted entities with their graph context.
type Expander struct {
	kg        *graph.KnowledgeGraph
	extractor *Extractor
}

// NewExpander creates an expander over kg.
func NewExpander(kg *graph.KnowledgeGraph) *Expander {
	return &Expander{kg: kg, extractor: NewExtractor(kg)}
}

// Extractor returns the extractor used by the expander.
func (x *Expander) Extractor() *Extractor {
	return x.extractor
}

// Expand builds the context bundle for a query and its retrieved documents.
//
// Entities found in the query or in any document are merged without
// duplicates in catalogue order. Each entity contributes its graph context;
// threats also contribute their mitigation paths and a related-threat entry,
// vulnerabilities a vulnerability entry. Mitigations shared by several
// threats appear once per threat.
func (x *Expander) Expand(query string, docs []types.RetrievalResult) *types.ContextBundle {
	matched := make(map[string]bool)
	for _, name := range x.extractor.Extract(query) {
		matched[name] = true
	}
	for _, doc := range docs {
		for _, name := range x.extractor.Extract(doc.Document) {
			matched[name] = true
		}
	}

	bundle := types.NewContextBundle()
	for _, name := range x.extractor.names {
		if !matched[name] {
			continue
		}
		bundle.IdentifiedEntities = append(bundle.IdentifiedEntities, name)

		ctx, ok := x.kg.EntityContext(name)
		if !ok {
			continue
		}
		bundle.EntityContexts[name] = ctx

		entity, _ := x.kg.Entity(name)
		switch entity.Type() {
		case types.EntityTypeThreat:
			bundle.Mitigations = append(bundle.Mitigations, x.kg.MitigationPath(name)...)
			bundle.RelatedThreats = append(bundle.RelatedThreats, name)
		case types.EntityTypeVulnerability:
			bundle.Vulnerabilities = append(bundle.Vulnerabilities, name)
		}
	}
	return bundle
}
