// Package graph builds a dependency DAG over job descriptors and
// produces a deterministic topological order, following the shape of
// the teacher's internal/scheduler.ExecutionGraph, generalized here
// from a single-run step executor into a reusable ordering utility.
package graph

import (
	"github.com/mozilla/crontabber/internal/cronerr"
)

// Graph is a directed graph over job identifiers, edges running
// dependency -> dependent.
type Graph struct {
	nodes     []string
	positions map[string]int // original configuration-list position, for tie-breaking
	from      map[string][]string
	to        map[string][]string
}

// New builds a Graph from the given identifiers (in original
// configuration order) and their declared dependencies. It rejects
// cycles.
func New(order []string, dependsOn map[string]map[string]struct{}) (*Graph, error) {
	g := &Graph{
		nodes:     append([]string{}, order...),
		positions: make(map[string]int, len(order)),
		from:      make(map[string][]string),
		to:        make(map[string][]string),
	}
	for i, id := range order {
		g.positions[id] = i
	}
	for id, deps := range dependsOn {
		for dep := range deps {
			g.from[dep] = append(g.from[dep], id)
			g.to[id] = append(g.to[id], dep)
		}
	}

	if cycle := g.findCycle(); cycle != "" {
		return nil, cronerr.NewConfigError(cronerr.DependencyCycle, cycle, nil)
	}

	return g, nil
}

// findCycle returns the identifier of a node participating in a cycle,
// or "" if the graph is acyclic.
func (g *Graph) findCycle() string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	var cyclic string

	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case done:
			return false
		case visiting:
			cyclic = id
			return true
		}
		state[id] = visiting
		for _, next := range g.from[id] {
			if visit(next) {
				return true
			}
		}
		state[id] = done
		return false
	}

	for _, id := range g.nodes {
		if state[id] == unvisited && visit(id) {
			return cyclic
		}
	}
	return ""
}

// TopoOrder returns a deterministic topological ordering of the
// graph's nodes: among jobs with no remaining unvisited dependency,
// the one with the smallest original configuration-list position is
// visited next.
func (g *Graph) TopoOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		indegree[id] = len(g.to[id])
	}

	ready := make([]string, 0, len(g.nodes))
	for _, id := range g.nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var order []string
	for len(ready) > 0 {
		// pick the smallest-position ready node
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.positions[ready[i]] < g.positions[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, next := range g.from[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	return order
}

// DependentsOf returns the identifiers that directly depend on id.
func (g *Graph) DependentsOf(id string) []string { return g.from[id] }

// DependenciesOf returns the identifiers id directly depends on.
func (g *Graph) DependenciesOf(id string) []string { return g.to[id] }
