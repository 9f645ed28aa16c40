package rag

import (
	"fmt"
	"strings"

	"github.com/scrypster/cyberrag/pkg/types"
)

// System messages sent with each prompt.
const (
	PlainSystemMessage = "You are a helpful cybersecurity expert."
	GraphSystemMessage = "You are a helpful cybersecurity expert with access to a knowledge graph. " +
		"Provide detailed, accurate answers using the provided context and knowledge."
)

const (
	noContext = "No relevant information found."

	// Per-entity related entries and mitigations rendered into the graph prompt.
	maxPromptRelated     = 3
	maxPromptMitigations = 3
)

// PlainPrompt renders the flat prompt: instruction, ranked documents and the
// question.
func PlainPrompt(query string, docs []types.RetrievalResult) string {
	context := noContext
	if len(docs) > 0 {
		blocks := make([]string, len(docs))
		for i, d := range docs {
			blocks[i] = fmt.Sprintf("[Document %d]: %s", d.Rank, d.Document)
		}
		context = strings.Join(blocks, "\n\n")
	}

	return "Based on the following context, answer the question.\n\n" +
		"Context:\n" + context + "\n\n" +
		"Question: " + query + "\n\n" +
		"Answer:"
}

// GraphPrompt renders the knowledge graph augmented prompt. Sections appear
// in a fixed order: retrieved documents, entity context, recommended
// mitigations, question. Empty sections are left out.
func GraphPrompt(query string, docs []types.RetrievalResult, bundle *types.ContextBundle) string {
	parts := []string{"Based on the following information, answer the question:\n"}

	if len(docs) > 0 {
		parts = append(parts, "Retrieved Context:")
		for _, d := range docs {
			parts = append(parts, fmt.Sprintf("[Document %d]: %s", d.Rank, d.Document))
		}
		parts = append(parts, "")
	}

	if bundle != nil && len(bundle.IdentifiedEntities) > 0 {
		parts = append(parts, "Knowledge Graph Context:")
		for _, name := range bundle.IdentifiedEntities {
			ctx, ok := bundle.EntityContexts[name]
			if !ok {
				continue
			}
			parts = append(parts, fmt.Sprintf("- %s (%s): %s", name, ctx.Type(), ctx.Description()))

			if direct := ctx.Related.Direct; len(direct) > 0 {
				related := make([]string, 0, maxPromptRelated)
				for _, rel := range direct[:min(len(direct), maxPromptRelated)] {
					related = append(related, fmt.Sprintf("%s %s", rel.Relation, rel.Entity))
				}
				parts = append(parts, "  Related: "+strings.Join(related, ", "))
			}
		}
		parts = append(parts, "")

		if len(bundle.Mitigations) > 0 {
			parts = append(parts, "Recommended Mitigations:")
			for _, m := range bundle.Mitigations[:min(len(bundle.Mitigations), maxPromptMitigations)] {
				parts = append(parts, fmt.Sprintf("- %s (effectiveness: %s)", m.Mitigation, m.Effectiveness))
			}
			parts = append(parts, "")
		}
	}

	parts = append(parts,
		"Question: "+query+"\n",
		"Answer (provide a comprehensive response using both retrieved documents and knowledge graph information):",
	)
	return strings.Join(parts, "\n")
}
