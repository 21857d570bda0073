// Package dag provides a minimal directed acyclic graph with a
// deterministic topological sort, used by the graph compiler to order
// render passes.
package dag

import (
	"errors"
	"fmt"
)

// Graph errors.
var (
	// ErrDuplicateVertex is returned when a vertex ID is added twice.
	ErrDuplicateVertex = errors.New("dag: duplicate vertex")

	// ErrUnknownVertex is returned when an edge references a vertex that
	// has not been added.
	ErrUnknownVertex = errors.New("dag: unknown vertex")

	// ErrSelfReference is returned when an edge connects a vertex to itself.
	ErrSelfReference = errors.New("dag: self reference")

	// ErrCycle is returned by TopologicalSort when the graph contains a cycle.
	ErrCycle = errors.New("dag: cycle detected")
)

// vertex holds adjacency and the insertion order used for deterministic
// tie-breaking during the sort.
type vertex[ID comparable] struct {
	order int
	out   []ID
	in    int // incoming edge count
}

// Graph is a directed graph over comparable vertex IDs.
//
// Vertices carry an insertion order; TopologicalSort breaks ties by that
// order, so sorting the same graph twice yields the same sequence.
//
// Graph is NOT safe for concurrent use.
type Graph[ID comparable] struct {
	vertices map[ID]*vertex[ID]
	next     int
}

// New creates an empty graph.
func New[ID comparable]() *Graph[ID] {
	return &Graph[ID]{vertices: make(map[ID]*vertex[ID])}
}

// AddVertex adds a vertex. Returns ErrDuplicateVertex if the ID exists.
func (g *Graph[ID]) AddVertex(id ID) error {
	if _, ok := g.vertices[id]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateVertex, id)
	}
	g.vertices[id] = &vertex[ID]{order: g.next}
	g.next++
	return nil
}

// HasVertex reports whether the ID has been added.
func (g *Graph[ID]) HasVertex(id ID) bool {
	_, ok := g.vertices[id]
	return ok
}

// Len returns the number of vertices.
func (g *Graph[ID]) Len() int { return len(g.vertices) }

// AddEdge adds a directed edge from -> to. Both vertices must exist and
// must differ. Parallel edges are collapsed.
func (g *Graph[ID]) AddEdge(from, to ID) error {
	if from == to {
		return fmt.Errorf("%w: %v", ErrSelfReference, from)
	}
	src, ok := g.vertices[from]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownVertex, from)
	}
	dst, ok := g.vertices[to]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownVertex, to)
	}
	for _, existing := range src.out {
		if existing == to {
			return nil
		}
	}
	src.out = append(src.out, to)
	dst.in++
	return nil
}

// TopologicalSort returns the vertices ordered so that every edge points
// from an earlier to a later element (Kahn's algorithm). Ties are broken
// by vertex insertion order, making the result deterministic.
//
// Returns ErrCycle if the graph is not acyclic.
func (g *Graph[ID]) TopologicalSort() ([]ID, error) {
	indegree := make(map[ID]int, len(g.vertices))
	for id, v := range g.vertices {
		indegree[id] = v.in
	}

	var ready []ID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]ID, 0, len(g.vertices))
	for len(ready) > 0 {
		// Pick the ready vertex with the smallest insertion order.
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.vertices[ready[i]].order < g.vertices[ready[best]].order {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		sorted = append(sorted, id)

		for _, succ := range g.vertices[id].out {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(sorted) != len(g.vertices) {
		return nil, ErrCycle
	}
	return sorted, nil
}
