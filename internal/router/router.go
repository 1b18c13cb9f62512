// Package router places succeeded nodes' declared output artifacts at their
// final destinations under the results root. Copies never mutate the source,
// the same artifact may fan out to several destinations, and destination
// exclusivity is re-checked defensively at runtime for loop instances whose
// routes only resolve after expansion.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/rayflow/internal/artifact"
	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/dag"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// Router copies task outputs to their routed destinations.
type Router struct {
	resultsRoot string

	mu      sync.Mutex
	claimed map[string]string
}

// New creates a Router placing artifacts under resultsRoot.
func New(resultsRoot string) *Router {
	return &Router{
		resultsRoot: resultsRoot,
		claimed:     make(map[string]string),
	}
}

// ResultsRoot returns the absolute root under which destinations resolve.
func (r *Router) ResultsRoot() string {
	return r.resultsRoot
}

// RouteNode copies every routed artifact of a succeeded node to its
// destination. For loop instances, {{item.*}} placeholders in destinations
// are resolved first. Fan-out copies run concurrently; a failure of any copy
// fails the node.
func (r *Router) RouteNode(ctx context.Context, node *dag.Node) error {
	if len(node.Task.Routes) == 0 {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("node_id", node.ID)

	g, ctx := errgroup.WithContext(ctx)
	for _, route := range node.Task.Routes {
		route := route
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return r.routeOne(ctx, node, route, logger)
		})
	}
	return g.Wait()
}

// routeOne resolves and performs a single route.
func (r *Router) routeOne(ctx context.Context, node *dag.Node, route *config.Route, logger *slog.Logger) error {
	src, err := sourcePath(node, route.From)
	if err != nil {
		return err
	}

	dest := route.To
	if node.Kind == dag.KindInstance && artifact.HasPlaceholder(dest) {
		dest, err = artifact.Substitute(dest, *node.Item)
		if err != nil {
			return err
		}
	}

	if err := r.claim(dest, node.ID); err != nil {
		return err
	}

	absDest := filepath.Join(r.resultsRoot, filepath.FromSlash(dest))
	logger.Debug("Routing artifact.", "from", src, "to", absDest)
	return copyPath(src, absDest)
}

// claim records exclusive ownership of a destination. Construction prevents
// collisions for literal routes; this is the defensive check for routes that
// only resolve at expansion time. Each route claims at most one destination,
// so a second claim is a collision even when the same node makes it.
func (r *Router) claim(dest, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, taken := r.claimed[dest]; taken {
		return &dag.PathCollisionError{Path: dest, Nodes: []string{owner, nodeID}}
	}
	r.claimed[dest] = nodeID
	return nil
}

// sourcePath extracts the produced location of the named output from the
// node's output object.
func sourcePath(node *dag.Node, outputName string) (string, error) {
	if node.Output == cty.NilVal || !node.Output.Type().HasAttribute(outputName) {
		return "", fmt.Errorf("node '%s' routed undeclared output '%s'", node.ID, outputName)
	}
	val := node.Output.GetAttr(outputName)
	if val.IsNull() || val.Type() != cty.String {
		return "", fmt.Errorf("node '%s' output '%s' is not an artifact path", node.ID, outputName)
	}
	return val.AsString(), nil
}

// ResolveWorkflowOutputs maps each workflow-level output to its absolute
// location under the results root. Sources are folders populated by routed
// artifacts; aggregation order within them is fixed by the collectors'
// lexicographic item ordering, so results are reproducible.
func (r *Router) ResolveWorkflowOutputs(outputs []*config.WorkflowOutput) map[string]string {
	resolved := make(map[string]string, len(outputs))
	for _, out := range outputs {
		resolved[out.Name] = filepath.Join(r.resultsRoot, filepath.FromSlash(out.Source))
	}
	return resolved
}

// copyPath copies a file or a directory tree, leaving the source untouched.
func copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("routed artifact missing: %w", err)
	}
	if info.IsDir() {
		return copyDir(src, dest)
	}
	return copyFile(src, dest, info.Mode())
}

func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
