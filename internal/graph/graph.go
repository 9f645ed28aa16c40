// Package graph implements the cybersecurity knowledge graph: an in-memory
// directed graph of threats, vulnerabilities, mitigations and attack patterns
// with typed relationships, plus the neighbourhood, context and mitigation
// queries the graph-augmented retrieval engine builds on.
//
// The graph keeps an explicit adjacency representation: entity records by
// name, an ordered outgoing edge list per entity and a reverse (incoming) edge
// list per entity. All enumeration follows insertion order, which makes every
// query deterministic.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/scrypster/cyberrag/pkg/types"
)

var (
	// ErrDuplicateEntity is returned when an entity name is already present.
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrUnknownEntity is returned when an edge references an absent entity.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrDuplicateEdge is returned when an ordered (source, target) pair already
	// has an edge. The graph keeps at most one edge per ordered pair.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrInvalidInput is returned for empty names or unknown relation labels.
	ErrInvalidInput = errors.New("invalid input")
)

// MaxDepth is the deepest neighbourhood tier Related computes.
const MaxDepth = 2

// edge is one adjacency entry. For outgoing lists peer is the target, for
// incoming lists it is the source.
type edge struct {
	peer     string
	relation types.Relation
}

// KnowledgeGraph is a directed graph of cybersecurity entities.
// It is safe for concurrent use; after construction it is only read.
type KnowledgeGraph struct {
	mu       sync.RWMutex
	entities map[string]types.Entity
	order    []string       // entity names in insertion order
	position map[string]int // name -> index in order
	out      map[string][]edge
	in       map[string][]edge
	edges    []types.Relationship // insertion order
}

// NewEmpty creates a graph with no entities.
func NewEmpty() *KnowledgeGraph {
	return &KnowledgeGraph{
		entities: make(map[string]types.Entity),
		position: make(map[string]int),
		out:      make(map[string][]edge),
		in:       make(map[string][]edge),
	}
}

// New creates the knowledge graph populated with the built-in cybersecurity
// catalogue. Construction is deterministic; a catalogue that fails to load is
// a programming error and panics.
func New() *KnowledgeGraph {
	g := NewEmpty()
	if err := g.load(SeedEntities(), SeedRelationships()); err != nil {
		panic(fmt.Sprintf("graph: invalid seed catalogue: %v", err))
	}
	return g
}

// load adds a batch of entities followed by a batch of relationships.
func (g *KnowledgeGraph) load(entities []types.Entity, rels []types.Relationship) error {
	for _, e := range entities {
		if err := g.AddEntity(e); err != nil {
			return err
		}
	}
	for _, r := range rels {
		if err := g.AddRelationship(r.Source, r.Relation, r.Target); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy of the graph. Entities are immutable
// and shared; adjacency is copied, so mutating the clone leaves g unchanged.
func (g *KnowledgeGraph) Clone() *KnowledgeGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := NewEmpty()
	for name, e := range g.entities {
		c.entities[name] = e
	}
	for name, pos := range g.position {
		c.position[name] = pos
	}
	c.order = append([]string(nil), g.order...)
	for name, edges := range g.out {
		c.out[name] = append([]edge(nil), edges...)
	}
	for name, edges := range g.in {
		c.in[name] = append([]edge(nil), edges...)
	}
	c.edges = append([]types.Relationship(nil), g.edges...)
	return c
}

// AddEntity inserts an entity. Names are unique and case-sensitive.
func (g *KnowledgeGraph) AddEntity(e types.Entity) error {
	if e == nil || e.Name() == "" {
		return fmt.Errorf("%w: entity name is required", ErrInvalidInput)
	}
	if !types.IsValidEntityType(e.Type()) {
		return fmt.Errorf("%w: entity type %q", ErrInvalidInput, e.Type())
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.entities[e.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.Name())
	}
	g.entities[e.Name()] = e
	g.position[e.Name()] = len(g.order)
	g.order = append(g.order, e.Name())
	return nil
}

// AddRelationship inserts the directed edge source -[relation]-> target.
// Both endpoints must exist and the ordered pair must not have an edge yet.
func (g *KnowledgeGraph) AddRelationship(source string, relation types.Relation, target string) error {
	if !types.IsValidRelation(relation) {
		return fmt.Errorf("%w: relation %q", ErrInvalidInput, relation)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[source]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, source)
	}
	if _, ok := g.entities[target]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, target)
	}
	for _, e := range g.out[source] {
		if e.peer == target {
			return fmt.Errorf("%w: %s -> %s (%s)", ErrDuplicateEdge, source, target, e.relation)
		}
	}

	g.out[source] = append(g.out[source], edge{peer: target, relation: relation})
	g.in[target] = append(g.in[target], edge{peer: source, relation: relation})
	g.edges = append(g.edges, types.Relationship{Source: source, Target: target, Relation: relation})
	return nil
}

// Len returns the number of entities.
func (g *KnowledgeGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// EdgeCount returns the number of relationships.
func (g *KnowledgeGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
