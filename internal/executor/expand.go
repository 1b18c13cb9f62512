package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/rayflow/internal/artifact"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/dag"
	"github.com/zclconf/go-cty/cty"
)

// expandLoop fans a loop template node out into one instance per discovered
// item. It runs in whichever goroutine satisfied the template's last
// dependency, so it must not block on anything but the collection artifact
// itself.
func (e *Executor) expandLoop(ctx context.Context, node *dag.Node) {
	logger := ctxlog.FromContext(ctx).With("node_id", node.ID)
	node.MarkExpanded()

	items, err := e.discoverItems(ctx, node)
	if err != nil {
		e.failWithoutRunning(ctx, node, fmt.Errorf("discovering loop collection: %w", err))
		return
	}
	logger.Debug("Loop collection discovered.", "items", len(items))

	instances, err := dag.ExpandLoop(node, items, e.graph)
	if err != nil {
		e.failWithoutRunning(ctx, node, fmt.Errorf("expanding loop: %w", err))
		return
	}

	// The collector waits on exactly its instances now; the original
	// dependencies are all satisfied or we would not be here.
	e.wg.Add(len(instances))
	node.DepCount.Store(int32(len(instances)))

	if len(instances) == 0 {
		// An empty collection is not a failure: the collector is trivially
		// satisfied and its dependents proceed.
		logger.Debug("Empty loop collection, collector satisfied trivially.")
		node.SetState(dag.StateReady)
		e.dispatch(node)
		return
	}

	logger.Info("🔁 Expanded loop task.", "instances", len(instances))
	for _, inst := range instances {
		inst.DepCount.Store(0)
		inst.SetState(dag.StateReady)
		e.dispatch(inst)
	}
}

// discoverItems evaluates the loop's `over` expression against the live
// outputs. A string value is treated as the path of a JSON collection
// artifact; list-shaped values are consumed directly.
func (e *Executor) discoverItems(ctx context.Context, node *dag.Node) ([]artifact.LoopItem, error) {
	val, diags := node.Task.Loop.Over.Value(e.buildEvalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() || !val.IsKnown() {
		return nil, fmt.Errorf("loop collection for '%s' did not resolve to a known value", node.ID)
	}
	if val.Type() == cty.String {
		return artifact.ItemsFromJSONFile(val.AsString())
	}
	return artifact.ItemsFromValue(val)
}

// failWithoutRunning records a failure on a node that never reached a worker
// and releases its accounting slot.
func (e *Executor) failWithoutRunning(ctx context.Context, node *dag.Node, err error) {
	ctxlog.FromContext(ctx).Error("Node failed before execution.", "node_id", node.ID, "error", err)
	node.Err = err
	node.SetState(dag.StateFailed)
	e.propagate(ctx, node, dag.StateSkipped)
	e.wg.Done()
}

// finalizeCollector runs once every instance of a loop task has succeeded.
// It aggregates the instances' outputs into one value per declared output, a
// tuple ordered lexicographically by item name so the aggregate is identical
// across runs regardless of which instance finished first.
func (e *Executor) finalizeCollector(ctx context.Context, node *dag.Node) error {
	logger := ctxlog.FromContext(ctx).With("node_id", node.ID)

	def, ok := e.reg.DefinitionRegistry[node.Task.Template]
	if !ok {
		return fmt.Errorf("unknown template type '%s'", node.Task.Template)
	}

	var instances []*dag.Node
	for _, dep := range node.Deps {
		if dep.Kind == dag.KindInstance {
			instances = append(instances, dep)
		}
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Item.Name < instances[j].Item.Name
	})

	outputs := make(map[string]cty.Value, len(def.Outputs))
	for name := range def.Outputs {
		vals := make([]cty.Value, 0, len(instances))
		for _, inst := range instances {
			if inst.Output == cty.NilVal || !inst.Output.Type().HasAttribute(name) {
				continue
			}
			vals = append(vals, inst.Output.GetAttr(name))
		}
		if len(vals) == 0 {
			outputs[name] = cty.EmptyTupleVal
			continue
		}
		outputs[name] = cty.TupleVal(vals)
	}
	node.Output = objectOrEmpty(outputs)

	logger.Debug("Collector aggregated instance outputs.", "instances", len(instances))
	return nil
}

// objectOrEmpty builds an object value, tolerating an empty attribute set.
func objectOrEmpty(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
