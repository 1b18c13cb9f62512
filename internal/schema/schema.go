package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Workflow File Structures ---

// TaskArgs represents the content of the 'arguments' block within a task.
type TaskArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// LoopBlock represents the 'loop' block within a task. Its presence turns the
// task into a template node that is fanned out over a discovered collection.
type LoopBlock struct {
	Over      hcl.Expression    `hcl:"over"`
	SubFolder string            `hcl:"sub_folder"`
	SubPaths  map[string]string `hcl:"sub_paths,optional"`
}

// RouteBlock declares the copy of a task output artifact to a destination
// path under the results root.
type RouteBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// Task represents a `task` block from a user's workflow file. It is a
// runnable instance of a defined template.
type Task struct {
	Name      string        `hcl:"name,label"`
	Template  string        `hcl:"template"`
	Arguments *TaskArgs     `hcl:"arguments,block"`
	Loop      *LoopBlock    `hcl:"loop,block"`
	Routes    []*RouteBlock `hcl:"route,block"`
	DependsOn []string      `hcl:"depends_on,optional"`
}

// WorkflowInput represents an `input` block: a run-level parameter available
// to every task as `input.<name>`.
type WorkflowInput struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// WorkflowOutput represents an `output` block: a named file or folder under
// the results root exposed to the caller.
type WorkflowOutput struct {
	Name        string `hcl:"name,label"`
	Source      string `hcl:"source"`
	Description string `hcl:"description,optional"`
}

// --- Template Manifest Schemas ---

// Lifecycle defines the mapping from a template's lifecycle event to a
// registered Go handler function.
type Lifecycle struct {
	OnRun string `hcl:"on_run"`
}

// InputDefinition defines a single input parameter for a template.
type InputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// OutputDefinition defines a single artifact produced by a template. Path is
// where the artifact appears relative to the executing node's work folder.
type OutputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Path        string         `hcl:"path"`
	Description string         `hcl:"description,optional"`
}

// TemplateDefinition represents the HCL manifest for an external template: a
// fixed contract of typed inputs and named output artifacts.
type TemplateDefinition struct {
	Type        string              `hcl:"type,label"`
	Description string              `hcl:"description,optional"`
	Lifecycle   *Lifecycle          `hcl:"lifecycle,block"`
	Inputs      []*InputDefinition  `hcl:"input,block"`
	Outputs     []*OutputDefinition `hcl:"output,block"`
}

// File represents the top-level structure of any rayflow HCL file. Workflow
// blocks and template manifests may be mixed freely across files; the loader
// merges them into a single model.
type File struct {
	Inputs    []*WorkflowInput      `hcl:"input,block"`
	Tasks     []*Task               `hcl:"task,block"`
	Outputs   []*WorkflowOutput     `hcl:"output,block"`
	Templates []*TemplateDefinition `hcl:"template,block"`
	Body      hcl.Body              `hcl:",remain"`
}
