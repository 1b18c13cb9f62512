package dag

import (
	"context"
	"fmt"

	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/registry"
)

// Build constructs a complete, validated dependency graph from a config
// model. Any structural problem (duplicate ids, unresolved references,
// destination collisions, cycles) fails here, before any node executes.
func Build(ctx context.Context, model *config.Model, r *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := NewGraph()

	// First pass: create all nodes.
	if err := createNodes(model.Workflow, graph); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node creation complete.", "node_count", graph.Len())

	// Second pass: link explicit and implicit dependencies.
	if err := linkNodes(ctx, graph, r); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: reject overlapping route destinations.
	if err := checkRouteCollisions(graph); err != nil {
		return nil, err
	}

	if err := graph.detectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: Cycle detection passed.")

	graph.order = graph.topologicalOrder()
	logger.Debug("Build: Graph construction successful.", "order", graph.order)
	return graph, nil
}

// createNodes performs the first pass of graph creation.
func createNodes(wf *config.Workflow, graph *Graph) error {
	for _, t := range wf.Tasks {
		kind := KindTask
		if t.Loop != nil {
			kind = KindLoop
		}
		node := &Node{
			ID:         NodeID(t.Name),
			Name:       t.Name,
			Kind:       kind,
			Task:       t,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
			DeclOrder:  t.DeclOrder,
		}
		if err := graph.add(node); err != nil {
			return err
		}
	}
	return nil
}

// NodeID returns the graph id for a task name.
func NodeID(taskName string) string {
	return "task." + taskName
}

// InstanceID returns the graph id for one loop instance of a task.
func InstanceID(taskName, itemName string) string {
	return fmt.Sprintf("task.%s[%s]", taskName, itemName)
}

// checkRouteCollisions enforces the exclusive-ownership policy for route
// destinations: two nodes routing artifacts to the same literal destination
// is a build-time error, not last-write-wins. Destinations containing
// {{item.*}} placeholders are checked per instance at expansion time instead.
func checkRouteCollisions(graph *Graph) error {
	claimed := make(map[string]string)
	for _, node := range graph.Snapshot() {
		seen := make(map[string]struct{})
		for _, route := range node.Task.Routes {
			if hasItemPlaceholder(route.To) {
				continue
			}
			// The same destination twice within one node is equally a
			// collision: one of the copies would silently win.
			if _, dup := seen[route.To]; dup {
				return &PathCollisionError{Path: route.To, Nodes: []string{node.ID, node.ID}}
			}
			seen[route.To] = struct{}{}
			if owner, ok := claimed[route.To]; ok && owner != node.ID {
				return &PathCollisionError{Path: route.To, Nodes: []string{owner, node.ID}}
			}
			claimed[route.To] = node.ID
		}
	}
	return nil
}

// detectCycles checks for circular dependencies in the graph using DFS with a
// recursion-stack set.
func (g *Graph) detectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(node *Node) error
	visit = func(node *Node) error {
		visiting[node.ID] = true
		for _, dep := range node.Deps {
			if visiting[dep.ID] {
				return &CycleError{NodeID: dep.ID}
			}
			if !visited[dep.ID] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, node.ID)
		visited[node.ID] = true
		return nil
	}

	for _, node := range g.nodes {
		if !visited[node.ID] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalOrder computes a valid execution ordering via Kahn's algorithm,
// breaking ties by declaration order so the result is identical across runs.
// Must only be called on an acyclic graph.
func (g *Graph) topologicalOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.Deps)
	}

	var ready []*Node
	for _, n := range g.nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// Pick the earliest-declared ready node.
		minIdx := 0
		for i, n := range ready {
			if n.DeclOrder < ready[minIdx].DeclOrder {
				minIdx = i
			}
		}
		next := ready[minIdx]
		ready = append(ready[:minIdx], ready[minIdx+1:]...)
		order = append(order, next.ID)

		for _, dep := range next.Dependents {
			indegree[dep.ID]--
			if indegree[dep.ID] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}
