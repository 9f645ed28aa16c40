// Package types defines the core data structures shared by the knowledge graph,
// the vector index and the retrieval engines: cybersecurity entities and the
// relations between them, documents, retrieval results and the per-query
// knowledge graph context bundle.
package types

// EntityType is the discriminant of the Entity tagged variant.
type EntityType string

// Entity type constants
const (
	// EntityTypeThreat is an attack or malicious activity (Phishing, Malware).
	EntityTypeThreat EntityType = "threat"

	// EntityTypeVulnerability is a weakness a threat exploits.
	EntityTypeVulnerability EntityType = "vulnerability"

	// EntityTypeMitigation is a control that mitigates threats or addresses vulnerabilities.
	EntityTypeMitigation EntityType = "mitigation"

	// EntityTypeAttackPattern is a technique a threat uses.
	EntityTypeAttackPattern EntityType = "attack_pattern"
)

// ValidEntityTypes lists the known entity types in reporting order.
var ValidEntityTypes = []EntityType{
	EntityTypeThreat,
	EntityTypeVulnerability,
	EntityTypeMitigation,
	EntityTypeAttackPattern,
}

// Relation labels a directed edge between two entities.
type Relation string

// Relation constants
const (
	RelExploits  Relation = "exploits"  // threat -> vulnerability
	RelUses      Relation = "uses"      // threat -> attack pattern
	RelMitigates Relation = "mitigates" // mitigation -> threat or attack pattern
	RelAddresses Relation = "addresses" // mitigation -> vulnerability
)

// ValidRelations lists the known relation labels.
var ValidRelations = []Relation{
	RelExploits,
	RelUses,
	RelMitigates,
	RelAddresses,
}

// IsValidEntityType checks if the given entity type is valid
func IsValidEntityType(t EntityType) bool {
	for _, valid := range ValidEntityTypes {
		if valid == t {
			return true
		}
	}
	return false
}

// IsValidRelation checks if the given relation label is valid
func IsValidRelation(r Relation) bool {
	for _, valid := range ValidRelations {
		if valid == r {
			return true
		}
	}
	return false
}
