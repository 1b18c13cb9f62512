package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/rayflow/internal/artifact"
	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/dag"
	"github.com/vk/rayflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// executeTaskNode runs one task or loop-instance node: it decodes the bound
// arguments against live values, invokes the registered template handler in
// the node's private working directory, publishes the node's output object,
// and routes the declared artifacts.
func (e *Executor) executeTaskNode(ctx context.Context, node *dag.Node) error {
	logger := ctxlog.FromContext(ctx).With("task", node.ID)
	logger.Info("▶️ Starting task")

	def, ok := e.reg.DefinitionRegistry[node.Task.Template]
	if !ok {
		return fmt.Errorf("unknown template type '%s'", node.Task.Template)
	}
	handler, ok := e.reg.HandlerRegistry[def.Lifecycle.OnRun]
	if !ok {
		return fmt.Errorf("handler '%s' not registered", def.Lifecycle.OnRun)
	}

	workDir := e.nodeWorkDir(node)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("creating work folder for %s: %w", node.ID, err)
	}

	logger.Debug("Decoding task arguments.")
	evalCtx := e.buildEvalContext()

	var inputStruct any
	if handler.NewInput != nil {
		inputStruct = handler.NewInput()
	}
	if inputStruct != nil {
		if err := decodeArguments(node, def, evalCtx, inputStruct); err != nil {
			return fmt.Errorf("decoding arguments for %s: %w", node.ID, err)
		}
	}

	rc := &registry.RunContext{WorkDir: workDir, Outputs: def.Outputs}

	logger.Debug("Calling template run handler.", "handler", def.Lifecycle.OnRun)
	handlerFunc := reflect.ValueOf(handler.Fn)
	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(rc)}
	if inputStruct == nil {
		inputType := handlerFunc.Type().In(2)
		callArgs = append(callArgs, reflect.Zero(inputType))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(inputStruct))
	}

	results := handlerFunc.Call(callArgs)
	outputVal, errResult := results[0].Interface(), results[1].Interface()
	if errResult != nil {
		return &TemplateExecutionError{NodeID: node.ID, Err: errResult.(error)}
	}

	outputs := synthesizeOutputs(def, workDir)
	if ctyOutput, ok := outputVal.(cty.Value); ok && ctyOutput != cty.NilVal {
		if !ctyOutput.Type().IsObjectType() {
			return fmt.Errorf("handler for %s returned non-object output value: %s", node.ID, ctyOutput.Type().FriendlyName())
		}
		for it := ctyOutput.ElementIterator(); it.Next(); {
			k, v := it.Element()
			outputs[k.AsString()] = v
		}
	}
	node.Output = objectOrEmpty(outputs)

	if e.router != nil {
		if err := e.router.RouteNode(ctx, node); err != nil {
			return err
		}
	}

	logger.Info("✅ Finished task")
	return nil
}

// nodeWorkDir returns the node's exclusive working directory. Loop instances
// own their resolved sub-folder; plain tasks get a folder named after the
// task. Exclusivity is guaranteed by construction (unique ids and the
// expansion-time sub-folder collision check), not by locking.
func (e *Executor) nodeWorkDir(node *dag.Node) string {
	if node.Kind == dag.KindInstance {
		return filepath.Join(e.workDir, filepath.FromSlash(node.SubFolder))
	}
	return filepath.Join(e.workDir, "work", node.Name)
}

// buildEvalContext assembles the HCL evaluation context from the workflow
// inputs and the outputs of every node that has succeeded so far. A node only
// executes after its dependencies succeeded, so everything it references is
// present.
func (e *Executor) buildEvalContext() *hcl.EvalContext {
	tasks := make(map[string]cty.Value)
	for _, n := range e.graph.Snapshot() {
		if n.Kind == dag.KindInstance {
			continue
		}
		if n.State() == dag.StateSucceeded && n.Output != cty.NilVal {
			tasks[n.Name] = cty.ObjectVal(map[string]cty.Value{"output": n.Output})
		}
	}

	vars := map[string]cty.Value{
		"input": objectOrEmpty(e.inputs),
	}
	if len(tasks) > 0 {
		vars["task"] = cty.ObjectVal(tasks)
	}
	return &hcl.EvalContext{Variables: vars}
}

// synthesizeOutputs builds the node's output object from the declared
// artifact paths: each output resolves to its absolute produced location.
func synthesizeOutputs(def *config.TemplateDefinition, workDir string) map[string]cty.Value {
	outputs := make(map[string]cty.Value, len(def.Outputs))
	for name, out := range def.Outputs {
		outputs[name] = cty.StringVal(filepath.Join(workDir, filepath.FromSlash(out.Path)))
	}
	return outputs
}

// decodeArguments evaluates the task's bound argument expressions and fills
// the handler's input struct, applying manifest defaults for omitted optional
// inputs. For loop instances, string values get {{item.*}} placeholders
// substituted and sub_paths-listed arguments have their per-item slice path
// appended, so each instance reads its own portion of a shared input.
func decodeArguments(node *dag.Node, def *config.TemplateDefinition, evalCtx *hcl.EvalContext, inputStruct any) error {
	for name := range node.Task.Arguments {
		if _, declared := def.Inputs[name]; !declared {
			return fmt.Errorf("argument %q is not declared by template '%s'", name, def.Type)
		}
	}

	structVal := reflect.ValueOf(inputStruct).Elem()
	structType := structVal.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagName := strings.Split(field.Tag.Get("hcl"), ",")[0]
		if tagName == "" || tagName == "-" {
			continue
		}

		inputDef, declared := def.Inputs[tagName]
		expr, bound := node.Task.Arguments[tagName]

		var val cty.Value
		switch {
		case bound:
			evaluated, diags := expr.Value(evalCtx)
			if diags.HasErrors() {
				return fmt.Errorf("argument %q: %w", tagName, diags)
			}
			resolved, err := resolveInstanceValue(node, tagName, evaluated)
			if err != nil {
				return err
			}
			val = resolved
		case declared && inputDef.Default != nil:
			val = *inputDef.Default
		case declared && !inputDef.Optional:
			return fmt.Errorf("required argument %q is missing", tagName)
		default:
			continue
		}

		if declared && inputDef.Type != cty.DynamicPseudoType {
			converted, err := convert.Convert(val, inputDef.Type)
			if err != nil {
				return fmt.Errorf("argument %q: %w", tagName, err)
			}
			val = converted
		}

		fieldVal := structVal.Field(i)
		if !fieldVal.CanSet() {
			continue
		}
		if err := gocty.FromCtyValue(val, fieldVal.Addr().Interface()); err != nil {
			return fmt.Errorf("argument %q: %w", tagName, err)
		}
	}

	return nil
}

// resolveInstanceValue applies per-item rewrites on a loop instance's
// argument value. All other inputs are inherited unchanged from the template
// node's bindings.
func resolveInstanceValue(node *dag.Node, argName string, val cty.Value) (cty.Value, error) {
	if node.Kind != dag.KindInstance || val.IsNull() || val.Type() != cty.String {
		return val, nil
	}

	str := val.AsString()
	if artifact.HasPlaceholder(str) {
		resolved, err := artifact.Substitute(str, *node.Item)
		if err != nil {
			return cty.NilVal, fmt.Errorf("argument %q: %w", argName, err)
		}
		str = resolved
	}

	if subPath, ok := node.SubPaths[argName]; ok {
		str = filepath.Join(str, filepath.FromSlash(subPath))
	}

	return cty.StringVal(str), nil
}
