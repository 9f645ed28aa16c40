package graph

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/cyberrag/pkg/types"
)

// Export returns every node with its attributes and every edge, both in
// insertion order.
func (g *KnowledgeGraph) Export() types.GraphExport {
	g.mu.RLock()
	defer g.mu.RUnlock()

	export := types.GraphExport{
		Nodes: make([]types.ExportNode, 0, len(g.order)),
		Edges: make([]types.Relationship, len(g.edges)),
	}
	for _, name := range g.order {
		export.Nodes = append(export.Nodes, types.ExportNode{
			ID:         name,
			Attributes: g.entities[name].Attributes(),
		})
	}
	copy(export.Edges, g.edges)
	return export
}

// ExportJSON writes the graph export as indented JSON.
func (g *KnowledgeGraph) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g.Export()); err != nil {
		return fmt.Errorf("graph: failed to encode json export: %w", err)
	}
	return nil
}

// ExportYAML writes the graph export as YAML.
func (g *KnowledgeGraph) ExportYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(g.Export()); err != nil {
		return fmt.Errorf("graph: failed to encode yaml export: %w", err)
	}
	return enc.Close()
}
