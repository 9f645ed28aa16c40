package types

// Relationship is a directed, labeled edge of the knowledge graph.
// At most one relationship exists per ordered (Source, Target) pair.
type Relationship struct {
	Source   string   `json:"source" yaml:"source"`
	Target   string   `json:"target" yaml:"target"`
	Relation Relation `json:"relation" yaml:"relation"`
}

// RelatedEntity is a one-hop successor of a queried entity.
type RelatedEntity struct {
	Entity     string         `json:"entity"`
	Relation   Relation       `json:"relation"`
	Attributes map[string]any `json:"attributes"`
}

// IndirectEntity is a two-hop successor reached through Via.
type IndirectEntity struct {
	Entity     string         `json:"entity"`
	Via        string         `json:"via"`
	Relation   Relation       `json:"relation"`
	Attributes map[string]any `json:"attributes"`
}

// Related groups the direct and indirect neighbourhood of an entity.
type Related struct {
	Direct   []RelatedEntity  `json:"direct"`
	Indirect []IndirectEntity `json:"indirect"`
}

// EntityContext is the full graph context of one entity.
type EntityContext struct {
	Entity     string         `json:"entity"`
	Attributes map[string]any `json:"attributes"`
	Related    Related        `json:"related"`
}

// Type returns the entity type recorded in the context attributes.
func (c *EntityContext) Type() string {
	if t, ok := c.Attributes["type"].(string); ok {
		return t
	}
	return "unknown"
}

// Description returns the entity description recorded in the context attributes.
func (c *EntityContext) Description() string {
	if d, ok := c.Attributes["description"].(string); ok {
		return d
	}
	return "No description"
}

// PathDirect is the only mitigation path kind: a mitigation with an edge
// straight into the threat.
const PathDirect = "direct"

// MitigationPath is a mitigation discovered for a threat.
type MitigationPath struct {
	Mitigation    string   `json:"mitigation"`
	Path          string   `json:"path"`
	Relation      Relation `json:"relation"`
	Effectiveness string   `json:"effectiveness"`
}

// GraphStatistics summarises the size and shape of a knowledge graph.
type GraphStatistics struct {
	NumNodes  int                `json:"num_nodes"`
	NumEdges  int                `json:"num_edges"`
	NodeTypes map[EntityType]int `json:"node_types"`
	AvgDegree float64            `json:"avg_degree"`
}

// ExportNode is one node of a graph export.
type ExportNode struct {
	ID         string         `json:"id" yaml:"id"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// GraphExport is a stable snapshot of the graph for interchange.
type GraphExport struct {
	Nodes []ExportNode   `json:"nodes" yaml:"nodes"`
	Edges []Relationship `json:"edges" yaml:"edges"`
}
