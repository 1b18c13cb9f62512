package dag

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/registry"
)

// linkNodes performs the second pass, establishing dependency links. Explicit
// `depends_on` entries and implicit references inside argument and loop
// expressions are equivalent declarations and land in the same edge set.
func linkNodes(ctx context.Context, graph *Graph, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting node linking pass.")

	for _, node := range graph.Snapshot() {
		if _, ok := r.DefinitionRegistry[node.Task.Template]; !ok {
			return &UnresolvedReferenceError{NodeID: node.ID, Ref: "template " + node.Task.Template}
		}

		if err := linkExplicitDeps(ctx, node, graph); err != nil {
			return err
		}

		var expressions []hcl.Expression
		for _, expr := range node.Task.Arguments {
			expressions = append(expressions, expr)
		}
		if node.Task.Loop != nil {
			expressions = append(expressions, node.Task.Loop.Over)
		}
		for _, expr := range expressions {
			if err := linkImplicitDeps(ctx, node, expr, graph, r); err != nil {
				return err
			}
		}
	}
	logger.Debug("Finished node linking pass.")
	return nil
}

// linkExplicitDeps resolves dependencies from a `depends_on` list. An entry
// is a bare task name. Depending on a loop task means "all instances
// complete": the edge lands on the collector node, which only succeeds once
// every expanded instance has.
func linkExplicitDeps(ctx context.Context, node *Node, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)
	for _, depName := range node.Task.DependsOn {
		depNode, found := graph.Node(NodeID(depName))
		if !found {
			return &UnresolvedReferenceError{NodeID: node.ID, Ref: depName}
		}
		logger.Debug("Linking explicit dependency.", "from", node.ID, "to", depNode.ID)
		addEdge(depNode, node)
	}
	return nil
}

// linkImplicitDeps parses an expression for variable traversals of the form
// `task.<name>` or `task.<name>.output.<output>` and links the referenced
// node as a dependency. Output references are validated against the
// producer's template manifest.
func linkImplicitDeps(ctx context.Context, node *Node, expr hcl.Expression, graph *Graph, r *registry.Registry) error {
	if expr == nil {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "task" || len(traversal) < 2 {
			// `input.*` and anything else is not a dependency.
			continue
		}
		nameAttr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}

		depID := NodeID(nameAttr.Name)
		depNode, found := graph.Node(depID)
		if !found {
			return &UnresolvedReferenceError{NodeID: node.ID, Ref: nameAttr.Name}
		}

		if err := validateOutputReference(traversal, depNode, r); err != nil {
			return err
		}

		logger.Debug("Linking implicit dependency.", "from", node.ID, "to", depID)
		addEdge(depNode, node)
	}
	return nil
}

// validateOutputReference checks a `task.<name>.output.<output>` traversal
// against the producer's declared outputs.
func validateOutputReference(traversal hcl.Traversal, depNode *Node, r *registry.Registry) error {
	if len(traversal) < 4 {
		return nil
	}
	outputKeyword, ok := traversal[2].(hcl.TraverseAttr)
	if !ok || outputKeyword.Name != "output" {
		return nil
	}
	outputNameAttr, ok := traversal[3].(hcl.TraverseAttr)
	if !ok {
		return nil
	}
	outputName := outputNameAttr.Name

	def, ok := r.DefinitionRegistry[depNode.Task.Template]
	if !ok {
		return &UnresolvedReferenceError{NodeID: depNode.ID, Ref: "template " + depNode.Task.Template}
	}
	if _, ok := def.Outputs[outputName]; !ok {
		return &UnresolvedReferenceError{NodeID: depNode.ID, Ref: "output " + outputName}
	}
	return nil
}
