package graph

import (
	"sort"

	"github.com/scrypster/cyberrag/pkg/types"
)

// Entity looks up an entity by its exact, case-sensitive name.
func (g *KnowledgeGraph) Entity(name string) (types.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[name]
	return e, ok
}

// Names returns every entity name in insertion order.
func (g *KnowledgeGraph) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Related returns the neighbourhood of name.
//
// The direct tier lists every one-hop successor, in edge insertion order.
// When maxDepth > 1 the indirect tier lists two-hop successors: for each
// direct neighbour in order, each successor that has not been visited yet.
// The visited set starts with name and its direct neighbours and grows as
// indirect entities are found, so an entity reachable through several
// neighbours is attributed to the first one. Depth is capped at MaxDepth.
//
// An unknown name yields an empty result.
func (g *KnowledgeGraph) Related(name string, maxDepth int) types.Related {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.related(name, maxDepth)
}

func (g *KnowledgeGraph) related(name string, maxDepth int) types.Related {
	result := types.Related{
		Direct:   []types.RelatedEntity{},
		Indirect: []types.IndirectEntity{},
	}
	if _, ok := g.entities[name]; !ok {
		return result
	}

	visited := map[string]bool{name: true}
	for _, e := range g.out[name] {
		result.Direct = append(result.Direct, types.RelatedEntity{
			Entity:     e.peer,
			Relation:   e.relation,
			Attributes: g.entities[e.peer].Attributes(),
		})
		visited[e.peer] = true
	}

	if maxDepth < MaxDepth {
		return result
	}

	for _, first := range g.out[name] {
		for _, second := range g.out[first.peer] {
			if visited[second.peer] {
				continue
			}
			visited[second.peer] = true
			result.Indirect = append(result.Indirect, types.IndirectEntity{
				Entity:     second.peer,
				Via:        first.peer,
				Relation:   second.relation,
				Attributes: g.entities[second.peer].Attributes(),
			})
		}
	}

	return result
}

// EntityContext returns the attributes and two-tier neighbourhood of name.
// The boolean is false when the entity is absent.
func (g *KnowledgeGraph) EntityContext(name string) (*types.EntityContext, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entities[name]
	if !ok {
		return nil, false
	}
	return &types.EntityContext{
		Entity:     name,
		Attributes: e.Attributes(),
		Related:    g.related(name, MaxDepth),
	}, true
}

// MitigationPath returns the mitigations with a direct edge into threat,
// ordered by the mitigation's catalogue position.
//
// Only direct mitigator -> threat edges are reported; mitigations that
// address a vulnerability the threat exploits are not followed. An unknown
// name yields an empty slice, indistinguishable from a threat without
// mitigations; use Entity to check existence.
func (g *KnowledgeGraph) MitigationPath(threat string) []types.MitigationPath {
	g.mu.RLock()
	defer g.mu.RUnlock()

	incoming := make([]edge, 0, len(g.in[threat]))
	for _, e := range g.in[threat] {
		if g.entities[e.peer].Type() == types.EntityTypeMitigation {
			incoming = append(incoming, e)
		}
	}
	sort.SliceStable(incoming, func(i, j int) bool {
		return g.position[incoming[i].peer] < g.position[incoming[j].peer]
	})

	paths := make([]types.MitigationPath, 0, len(incoming))
	for _, e := range incoming {
		paths = append(paths, types.MitigationPath{
			Mitigation:    e.peer,
			Path:          types.PathDirect,
			Relation:      e.relation,
			Effectiveness: types.EffectivenessOf(g.entities[e.peer]),
		})
	}
	return paths
}

// EntitiesOfType returns the names of all entities of type t in insertion order.
func (g *KnowledgeGraph) EntitiesOfType(t types.EntityType) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := []string{}
	for _, name := range g.order {
		if g.entities[name].Type() == t {
			names = append(names, name)
		}
	}
	return names
}

// Statistics reports node and edge counts, per-type counts and the average
// total (in + out) degree. The average degree of an empty graph is 0.
func (g *KnowledgeGraph) Statistics() types.GraphStatistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := types.GraphStatistics{
		NumNodes:  len(g.order),
		NumEdges:  len(g.edges),
		NodeTypes: make(map[types.EntityType]int, len(types.ValidEntityTypes)),
	}
	for _, t := range types.ValidEntityTypes {
		stats.NodeTypes[t] = 0
	}
	for _, name := range g.order {
		stats.NodeTypes[g.entities[name].Type()]++
	}

	if stats.NumNodes > 0 {
		degreeSum := 0
		for _, name := range g.order {
			degreeSum += len(g.out[name]) + len(g.in[name])
		}
		stats.AvgDegree = float64(degreeSum) / float64(stats.NumNodes)
	}
	return stats
}
