package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translate converts the merged raw schema into the format-agnostic model.
func (l *Loader) translate(ctx context.Context, raw *schema.File) (*config.Model, error) {
	model := &config.Model{
		Templates: make(map[string]*config.TemplateDefinition),
		Workflow:  &config.Workflow{},
	}

	for _, t := range raw.Templates {
		def, err := l.translateTemplate(ctx, t)
		if err != nil {
			return nil, err
		}
		if _, exists := model.Templates[def.Type]; exists {
			return nil, fmt.Errorf("template %q defined more than once", def.Type)
		}
		model.Templates[def.Type] = def
	}

	for _, in := range raw.Inputs {
		wfIn, err := l.translateWorkflowInput(ctx, in)
		if err != nil {
			return nil, err
		}
		model.Workflow.Inputs = append(model.Workflow.Inputs, wfIn)
	}

	for i, t := range raw.Tasks {
		task, err := l.translateTask(t, i)
		if err != nil {
			return nil, err
		}
		model.Workflow.Tasks = append(model.Workflow.Tasks, task)
	}

	for _, out := range raw.Outputs {
		model.Workflow.Outputs = append(model.Workflow.Outputs, &config.WorkflowOutput{
			Name:        out.Name,
			Source:      out.Source,
			Description: out.Description,
		})
	}

	return model, nil
}

// translateTask converts a raw task block, capturing its argument expressions
// unevaluated so cross-task references can be resolved at execution time.
func (l *Loader) translateTask(t *schema.Task, declOrder int) (*config.Task, error) {
	task := &config.Task{
		Name:      t.Name,
		Template:  t.Template,
		DependsOn: t.DependsOn,
		Arguments: extractBodyAttributes(t.Arguments),
		DeclOrder: declOrder,
	}

	if t.Loop != nil {
		if t.Loop.SubFolder == "" {
			return nil, fmt.Errorf("task %q: loop block requires a sub_folder pattern", t.Name)
		}
		task.Loop = &config.Loop{
			Over:      t.Loop.Over,
			SubFolder: t.Loop.SubFolder,
			SubPaths:  t.Loop.SubPaths,
		}
	}

	for _, r := range t.Routes {
		if r.From == "" || r.To == "" {
			return nil, fmt.Errorf("task %q: route requires both 'from' and 'to'", t.Name)
		}
		task.Routes = append(task.Routes, &config.Route{From: r.From, To: r.To})
	}

	return task, nil
}

// translateWorkflowInput resolves the declared type and static default of a
// run-level input block.
func (l *Loader) translateWorkflowInput(ctx context.Context, in *schema.WorkflowInput) (*config.WorkflowInput, error) {
	ty, err := typeExprToCtyType(ctx, in.Type)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}

	def, err := staticDefault(in.Default, ty)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}

	return &config.WorkflowInput{
		Name:        in.Name,
		Type:        ty,
		Description: in.Description,
		Default:     def,
	}, nil
}

// translateTemplate converts a raw template manifest into the agnostic model.
func (l *Loader) translateTemplate(ctx context.Context, t *schema.TemplateDefinition) (*config.TemplateDefinition, error) {
	def := &config.TemplateDefinition{
		Type:        t.Type,
		Description: t.Description,
		Inputs:      make(map[string]*config.InputDefinition),
		Outputs:     make(map[string]*config.OutputDefinition),
	}
	if t.Lifecycle == nil || t.Lifecycle.OnRun == "" {
		return nil, fmt.Errorf("template %q: lifecycle block with on_run is required", t.Type)
	}
	def.Lifecycle = &config.Lifecycle{OnRun: t.Lifecycle.OnRun}

	for _, in := range t.Inputs {
		ty, err := typeExprToCtyType(ctx, in.Type)
		if err != nil {
			return nil, fmt.Errorf("template %q, input %q: %w", t.Type, in.Name, err)
		}
		defaultVal, err := staticDefault(in.Default, ty)
		if err != nil {
			return nil, fmt.Errorf("template %q, input %q: %w", t.Type, in.Name, err)
		}
		def.Inputs[in.Name] = &config.InputDefinition{
			Name:        in.Name,
			Type:        ty,
			Description: in.Description,
			Default:     defaultVal,
			Optional:    defaultVal != nil,
		}
	}

	for _, out := range t.Outputs {
		ty, err := typeExprToCtyType(ctx, out.Type)
		if err != nil {
			return nil, fmt.Errorf("template %q, output %q: %w", t.Type, out.Name, err)
		}
		if out.Path == "" {
			return nil, fmt.Errorf("template %q, output %q: path is required", t.Type, out.Name)
		}
		def.Outputs[out.Name] = &config.OutputDefinition{
			Name:        out.Name,
			Type:        ty,
			Description: out.Description,
			Path:        out.Path,
		}
	}

	return def, nil
}

// staticDefault evaluates a default expression without an eval context and
// converts it to the declared type. Defaults must be literals; referencing
// other tasks or inputs in a default is an error.
func staticDefault(expr hcl.Expression, ty cty.Type) (*cty.Value, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("default must be a literal value: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if ty != cty.DynamicPseudoType {
		converted, err := convert.Convert(val, ty)
		if err != nil {
			return nil, fmt.Errorf("default value does not match declared type: %w", err)
		}
		val = converted
	}
	return &val, nil
}

// extractBodyAttributes pulls the raw attribute expressions out of an
// arguments block without evaluating them.
func extractBodyAttributes(args *schema.TaskArgs) map[string]hcl.Expression {
	exprs := make(map[string]hcl.Expression)
	if args == nil {
		return exprs
	}
	attrs, _ := args.Body.JustAttributes()
	for name, attr := range attrs {
		exprs[name] = attr.Expr
	}
	return exprs
}
