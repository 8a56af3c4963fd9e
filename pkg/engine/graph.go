package engine

import (
	"fmt"
	"sort"
)

// Graph is the full set of resources for one stack plus the reference edges
// derived from their input properties. A Graph is only constructed through
// BuildGraph and is acyclic by construction.
type Graph struct {
	resources []Resource
	index     map[string]int

	// dependencies maps a resource name to the names it references.
	dependencies map[string][]string

	// dependents maps a resource name to the names referencing it.
	dependents map[string][]string

	// order is the stable topological order of resource names: every
	// dependency appears before its dependents, ties broken by declaration
	// order.
	order []string

	// level maps a resource name to its depth from the roots.
	level map[string]int
}

// BuildGraph derives a dependency graph from the declared resources. It
// fails with InvalidResourceError on duplicate logical names or references
// to resources not present in the set, and with CyclicDependencyError when
// the references do not form a DAG.
func BuildGraph(resources []Resource) (*Graph, error) {
	g := &Graph{
		resources:    resources,
		index:        make(map[string]int, len(resources)),
		dependencies: make(map[string][]string, len(resources)),
		dependents:   make(map[string][]string, len(resources)),
		level:        make(map[string]int, len(resources)),
	}

	for i, r := range resources {
		if _, exists := g.index[r.Name()]; exists {
			return nil, &InvalidResourceError{
				Type: r.Type(), Name: r.Name(),
				Reason: "logical name is not unique within the graph",
			}
		}
		g.index[r.Name()] = i
	}

	for _, r := range resources {
		for _, dep := range r.References() {
			if _, exists := g.index[dep]; !exists {
				return nil, &InvalidResourceError{
					Type: r.Type(), Name: r.Name(),
					Reason: fmt.Sprintf("input references %q, which is not in the graph", dep),
				}
			}
			if dep == r.Name() {
				return nil, &CyclicDependencyError{Path: []string{r.Name(), r.Name()}}
			}
			g.dependencies[r.Name()] = append(g.dependencies[r.Name()], dep)
			g.dependents[dep] = append(g.dependents[dep], r.Name())
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Path: cycle}
	}

	g.computeOrder()
	return g, nil
}

// findCycle runs depth-first traversal with a recursion-stack visited set
// and returns the full cycle path when one exists.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool, len(g.resources))
	onStack := make(map[string]bool, len(g.resources))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, dep := range g.dependencies[name] {
			if onStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		onStack[name] = false
		path = path[:len(path)-1]
		return false
	}

	for _, r := range g.resources {
		if !visited[r.Name()] && visit(r.Name()) {
			return cycle
		}
	}
	return nil
}

// computeOrder runs Kahn's algorithm, always draining the ready node with
// the lowest declaration index so the order is stable across runs.
func (g *Graph) computeOrder() {
	inDegree := make(map[string]int, len(g.resources))
	for _, r := range g.resources {
		inDegree[r.Name()] = len(g.dependencies[r.Name()])
	}

	var ready []string
	for _, r := range g.resources {
		if inDegree[r.Name()] == 0 {
			ready = append(ready, r.Name())
		}
	}

	g.order = make([]string, 0, len(g.resources))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return g.index[ready[i]] < g.index[ready[j]]
		})
		name := ready[0]
		ready = ready[1:]
		g.order = append(g.order, name)

		lvl := 0
		for _, dep := range g.dependencies[name] {
			if g.level[dep]+1 > lvl {
				lvl = g.level[dep] + 1
			}
		}
		g.level[name] = lvl

		for _, dependent := range g.dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
}

// Len returns the number of resources in the graph.
func (g *Graph) Len() int { return len(g.resources) }

// Resource returns the resource with the given logical name.
func (g *Graph) Resource(name string) (Resource, bool) {
	i, ok := g.index[name]
	if !ok {
		return Resource{}, false
	}
	return g.resources[i], true
}

// Resources returns all resources in declaration order.
func (g *Graph) Resources() []Resource { return g.resources }

// TopologicalOrder returns resource names with every dependency before its
// dependents. The order is stable: ties break by declaration order.
func (g *Graph) TopologicalOrder() []string {
	return append([]string{}, g.order...)
}

// Dependencies returns the names a resource directly references.
func (g *Graph) Dependencies(name string) []string {
	return append([]string{}, g.dependencies[name]...)
}

// Dependents returns the names directly referencing a resource.
func (g *Graph) Dependents(name string) []string {
	return append([]string{}, g.dependents[name]...)
}

// Level returns the depth of a resource from the roots of the graph.
func (g *Graph) Level(name string) int { return g.level[name] }
