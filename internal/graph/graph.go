package graph

import (
	"sync"
)

// Graph is a directed graph over comparable node keys. An edge from a to b
// means a depends on (or imports) b.
//
// Graph is safe for concurrent use.
type Graph[K comparable] struct {
	mu    sync.RWMutex
	nodes map[K]struct{}
	order []K
	edges map[K][]K
}

// New creates an empty graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]struct{}),
		edges: make(map[K][]K),
	}
}

// AddNode adds key to the graph. Adding an existing node is a no-op.
func (g *Graph[K]) AddNode(key K) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNode(key)
}

func (g *Graph[K]) addNode(key K) {
	if _, ok := g.nodes[key]; ok {
		return
	}
	g.nodes[key] = struct{}{}
	g.order = append(g.order, key)
}

// AddEdge adds an edge from -> to, adding missing nodes.
func (g *Graph[K]) AddEdge(from, to K) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNode(from)
	g.addNode(to)
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Nodes returns every node in insertion order.
func (g *Graph[K]) Nodes() []K {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]K(nil), g.order...)
}

// TopologicalSort returns the nodes ordered dependencies first. It returns a
// *CycleError naming the nodes that could not be ordered when the graph has
// a cycle.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Kahn's algorithm over reversed edges: a node is ready once everything
	// it depends on has been emitted.
	pending := make(map[K]int, len(g.nodes))
	dependents := make(map[K][]K, len(g.nodes))
	for _, key := range g.order {
		pending[key] = len(g.edges[key])
		for _, dep := range g.edges[key] {
			dependents[dep] = append(dependents[dep], key)
		}
	}

	queue := make([]K, 0, len(g.order))
	for _, key := range g.order {
		if pending[key] == 0 {
			queue = append(queue, key)
		}
	}

	result := make([]K, 0, len(g.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range dependents[current] {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.order) {
		var remaining []K
		for _, key := range g.order {
			if pending[key] > 0 {
				remaining = append(remaining, key)
			}
		}
		return result, &CycleError[K]{Nodes: remaining}
	}

	return result, nil
}

// Distances returns, for every node reachable from root, the length of the
// longest acyclic path from root. Back edges of import cycles are ignored.
func (g *Graph[K]) Distances(root K) map[K]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dist := make(map[K]int)
	onPath := make(map[K]bool)

	var walk func(key K, d int)
	walk = func(key K, d int) {
		if onPath[key] {
			return
		}
		if existing, ok := dist[key]; ok && existing >= d {
			return
		}
		dist[key] = d

		onPath[key] = true
		for _, next := range g.edges[key] {
			walk(next, d+1)
		}
		onPath[key] = false
	}

	if _, ok := g.nodes[root]; ok {
		walk(root, 0)
	}
	return dist
}

// Reacher answers "does any node reachable from start satisfy a predicate"
// with memoization across queries. It is used for one-pass analyses over a
// fixed graph.
type Reacher[K comparable] struct {
	next  func(K) []K
	match func(K) bool
	memo  map[K]bool
}

// NewReacher creates a Reacher. next lists the successors of a node and
// match is the predicate tested on every successor.
func NewReacher[K comparable](next func(K) []K, match func(K) bool) *Reacher[K] {
	return &Reacher[K]{next: next, match: match, memo: make(map[K]bool)}
}

// Reaches reports whether a node satisfying match is reachable from start,
// excluding start itself. Cycles terminate: a node already on the current
// path is not revisited.
func (r *Reacher[K]) Reaches(start K) bool {
	found, _ := r.reaches(start, make(map[K]bool))
	return found
}

// reaches reports whether a match is reachable from key, and whether the
// walk was cut short by a node on the current path. Negative answers cut
// short that way are not cached, since they depend on the path taken.
func (r *Reacher[K]) reaches(key K, visiting map[K]bool) (found, cut bool) {
	if v, ok := r.memo[key]; ok {
		return v, false
	}
	if visiting[key] {
		return false, true
	}
	visiting[key] = true
	defer delete(visiting, key)

	for _, next := range r.next(key) {
		if r.match(next) {
			found = true
			break
		}
		f, c := r.reaches(next, visiting)
		cut = cut || c
		if f {
			found = true
			break
		}
	}

	if found || !cut {
		r.memo[key] = found
	}
	return found, cut && !found
}
