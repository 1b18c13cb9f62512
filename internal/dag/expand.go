package dag

import (
	"github.com/vk/rayflow/internal/artifact"
)

// hasItemPlaceholder reports whether a path pattern contains {{item.*}}.
func hasItemPlaceholder(s string) bool {
	return artifact.HasPlaceholder(s)
}

// ExpandLoop transforms a loop template node plus its discovered collection
// into one concrete instance node per item. The instances are registered in
// the graph with an edge back to the template node, which from this point on
// acts as the collector: it becomes ready only when every instance has
// succeeded, so existing dependents of the loop task transparently wait for
// "all instances complete".
//
// Every instance's dependencies were already satisfied when the template node
// became ready, so callers may schedule the returned instances immediately.
// An empty collection returns no instances; the collector is then trivially
// satisfied.
func ExpandLoop(tmpl *Node, items []artifact.LoopItem, graph *Graph) ([]*Node, error) {
	// Resolve and validate the full collection before touching the graph, so
	// a bad item never leaves half-registered instances behind in StatePending.
	instances := make([]*Node, 0, len(items))
	ids := make(map[string]struct{}, len(items))
	subFolders := make(map[string]string, len(items))

	for _, item := range items {
		id := InstanceID(tmpl.Name, item.Name)
		if _, dup := ids[id]; dup {
			return nil, &DuplicateNodeError{ID: id}
		}
		if _, exists := graph.Node(id); exists {
			return nil, &DuplicateNodeError{ID: id}
		}
		ids[id] = struct{}{}

		subFolder, err := artifact.Substitute(tmpl.Task.Loop.SubFolder, item)
		if err != nil {
			return nil, err
		}
		// Exclusive per-instance namespaces are what make unbounded
		// parallelism safe, so a duplicate resolved folder is fatal even
		// though distinct item names normally guarantee distinct folders.
		if owner, taken := subFolders[subFolder]; taken {
			return nil, &PathCollisionError{Path: subFolder, Nodes: []string{owner, id}}
		}
		subFolders[subFolder] = id

		subPaths := make(map[string]string, len(tmpl.Task.Loop.SubPaths))
		for arg, pattern := range tmpl.Task.Loop.SubPaths {
			resolved, err := artifact.Substitute(pattern, item)
			if err != nil {
				return nil, err
			}
			subPaths[arg] = resolved
		}

		item := item
		instances = append(instances, &Node{
			ID:         id,
			Name:       tmpl.Name,
			Kind:       KindInstance,
			Task:       tmpl.Task,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
			DeclOrder:  tmpl.DeclOrder,
			Item:       &item,
			SubFolder:  subFolder,
			SubPaths:   subPaths,
		})
	}

	for _, inst := range instances {
		if err := graph.add(inst); err != nil {
			return nil, err
		}
		addEdge(inst, tmpl)
	}

	return instances, nil
}
