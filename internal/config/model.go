package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of the entire
// run configuration: the workflow definition plus all template manifests.
type Model struct {
	Templates map[string]*TemplateDefinition
	Workflow  *Workflow
}

// Workflow represents the user's task graph definition.
type Workflow struct {
	Inputs  []*WorkflowInput
	Tasks   []*Task
	Outputs []*WorkflowOutput
}

// WorkflowInput is a run-level parameter bound once per run and available to
// any task as `input.<name>`.
type WorkflowInput struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
}

// Task is the format-agnostic representation of a `task` block. Arguments are
// kept as raw expressions so that references to other tasks' outputs can be
// resolved against live values at execution time.
type Task struct {
	Name      string
	Template  string
	Arguments map[string]hcl.Expression
	DependsOn []string
	Loop      *Loop
	Routes    []*Route

	// DeclOrder is the position of the task across the workflow files, used
	// as the deterministic tie-break for topological ordering.
	DeclOrder int
}

// Loop marks a task as a template node that fans out into one instance per
// element of a runtime-discovered collection.
type Loop struct {
	// Over references a collection-valued output of another task.
	Over hcl.Expression

	// SubFolder is a path pattern with {{item.*}} placeholders. The resolved
	// folder becomes the instance's exclusive output namespace.
	SubFolder string

	// SubPaths maps argument names to per-item path patterns appended to the
	// inherited artifact path, so each instance reads its own slice of a
	// shared input.
	SubPaths map[string]string
}

// Route declares that a task output artifact is copied to a destination path
// under the results root once the task succeeds. The same source may be
// routed to several destinations.
type Route struct {
	From string
	To   string
}

// WorkflowOutput exposes a folder or file under the results root as a named
// run-level output.
type WorkflowOutput struct {
	Name        string
	Source      string
	Description string
}

// --- Template Manifest Models ---

// TemplateDefinition is the format-agnostic representation of a template
// manifest: the fixed input/output contract of one external executable.
type TemplateDefinition struct {
	Type        string
	Description string
	Lifecycle   *Lifecycle
	Inputs      map[string]*InputDefinition
	Outputs     map[string]*OutputDefinition
}

// Lifecycle maps a template's events to Go handler names.
type Lifecycle struct {
	OnRun string
}

// InputDefinition defines a single input argument for a template.
type InputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
	Optional    bool
}

// OutputDefinition defines a single named artifact produced by a template.
// Path is the location of the produced artifact relative to the executing
// node's working directory.
type OutputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Path        string
}
