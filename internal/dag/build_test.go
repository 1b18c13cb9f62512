package dag_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/dag"
	"github.com/vk/rayflow/internal/hcl"
	"github.com/vk/rayflow/internal/registry"
)

// manifestsHCL declares the minimal template set the graph tests run against.
const manifestsHCL = `
template "noop" {
  lifecycle {
    on_run = "OnRunNoop"
  }
}

template "emitter" {
  lifecycle {
    on_run = "OnRunEmitter"
  }
  output "data" {
    type = file
    path = "data.json"
  }
}
`

// loadModel parses workflow HCL together with the shared test manifests.
func loadModel(t *testing.T, workflowHCL string) *config.Model {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates.hcl"), []byte(manifestsHCL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.hcl"), []byte(workflowHCL), 0o644))

	model, err := hcl.NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	return model
}

// buildGraph loads a model and runs the full graph construction.
func buildGraph(t *testing.T, workflowHCL string) (*dag.Graph, error) {
	t.Helper()
	model := loadModel(t, workflowHCL)
	reg := registry.New()
	reg.PopulateDefinitionsFromModel(model)
	return dag.Build(context.Background(), model, reg)
}

func TestBuild_ExplicitAndImplicitEdgesAreUnioned(t *testing.T) {
	t.Parallel()

	// B declares the same dependency twice: explicitly via depends_on and
	// implicitly by referencing A's output. The edge must exist exactly once.
	graph, err := buildGraph(t, `
task "A" {
  template = "emitter"
  arguments {}
}

task "B" {
  template   = "noop"
  depends_on = ["A"]
  arguments {
    x = task.A.output.data
  }
}
`)
	require.NoError(t, err)
	require.Equal(t, 2, graph.Len())

	b, ok := graph.Node("task.B")
	require.True(t, ok)
	require.Len(t, b.Deps, 1)
	_, hasA := b.Deps["task.A"]
	assert.True(t, hasA)

	a, ok := graph.Node("task.A")
	require.True(t, ok)
	require.Len(t, a.Dependents, 1)
}

func TestBuild_CycleIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template   = "noop"
  depends_on = ["B"]
  arguments {}
}

task "B" {
  template   = "noop"
  depends_on = ["A"]
  arguments {}
}
`)
	require.Error(t, err)
	var cycleErr *dag.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestBuild_SelfDependencyIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template   = "noop"
  depends_on = ["A"]
  arguments {}
}
`)
	require.Error(t, err)
	var cycleErr *dag.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestBuild_DuplicateTaskNameIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template = "noop"
  arguments {}
}

task "A" {
  template = "noop"
  arguments {}
}
`)
	require.Error(t, err)
	var dupErr *dag.DuplicateNodeError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "task.A", dupErr.ID)
}

func TestBuild_UnresolvedDependsOnIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template   = "noop"
  depends_on = ["ghost"]
  arguments {}
}
`)
	require.Error(t, err)
	var refErr *dag.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "ghost", refErr.Ref)
}

func TestBuild_UnknownTemplateIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template = "does_not_exist"
  arguments {}
}
`)
	require.Error(t, err)
	var refErr *dag.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
}

func TestBuild_UnknownOutputReferenceIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template = "emitter"
  arguments {}
}

task "B" {
  template = "noop"
  arguments {
    x = task.A.output.missing
  }
}
`)
	require.Error(t, err)
	var refErr *dag.UnresolvedReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Contains(t, refErr.Ref, "missing")
}

func TestBuild_TopologicalOrderFollowsDeclarationOrder(t *testing.T) {
	t.Parallel()

	// Diamond: B and C are both unblocked once A finishes. The tie is broken
	// by declaration order, so the computed order must be stable.
	workflow := `
task "A" {
  template = "noop"
  arguments {}
}

task "B" {
  template   = "noop"
  depends_on = ["A"]
  arguments {}
}

task "C" {
  template   = "noop"
  depends_on = ["A"]
  arguments {}
}

task "D" {
  template   = "noop"
  depends_on = ["B", "C"]
  arguments {}
}
`
	want := []string{"task.A", "task.B", "task.C", "task.D"}
	for i := 0; i < 5; i++ {
		graph, err := buildGraph(t, workflow)
		require.NoError(t, err)
		assert.Equal(t, want, graph.TopologicalOrder())
	}
}

func TestBuild_TopologicalOrderRespectsSwappedDeclaration(t *testing.T) {
	t.Parallel()

	graph, err := buildGraph(t, `
task "A" {
  template = "noop"
  arguments {}
}

task "C" {
  template   = "noop"
  depends_on = ["A"]
  arguments {}
}

task "B" {
  template   = "noop"
  depends_on = ["A"]
  arguments {}
}
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"task.A", "task.C", "task.B"}, graph.TopologicalOrder())
}

func TestBuild_RouteCollisionAcrossTasksIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template = "emitter"
  arguments {}
  route {
    from = "data"
    to   = "results/data.json"
  }
}

task "B" {
  template = "emitter"
  arguments {}
  route {
    from = "data"
    to   = "results/data.json"
  }
}
`)
	require.Error(t, err)
	var collisionErr *dag.PathCollisionError
	require.ErrorAs(t, err, &collisionErr)
	assert.Equal(t, "results/data.json", collisionErr.Path)
	assert.Len(t, collisionErr.Nodes, 2)
}

func TestBuild_RouteCollisionWithinOneTaskIsRejected(t *testing.T) {
	t.Parallel()

	_, err := buildGraph(t, `
task "A" {
  template = "emitter"
  arguments {}
  route {
    from = "data"
    to   = "results/data.json"
  }
  route {
    from = "data"
    to   = "results/data.json"
  }
}
`)
	require.Error(t, err)
	var collisionErr *dag.PathCollisionError
	require.ErrorAs(t, err, &collisionErr)
}

func TestBuild_PlaceholderRoutesAreDeferred(t *testing.T) {
	t.Parallel()

	// Destinations that only resolve per item cannot be checked at build
	// time; they must not trip the literal collision check.
	graph, err := buildGraph(t, `
task "A" {
  template = "emitter"
  arguments {}
}

task "rt" {
  template = "emitter"
  arguments {}
  loop {
    over       = task.A.output.data
    sub_folder = "initial_results/{{item.name}}"
  }
  route {
    from = "data"
    to   = "results/{{item.name}}.json"
  }
}
`)
	require.NoError(t, err)

	rt, ok := graph.Node("task.rt")
	require.True(t, ok)
	assert.Equal(t, dag.KindLoop, rt.Kind)
	// The loop's `over` reference is an implicit dependency like any other.
	_, hasA := rt.Deps["task.A"]
	assert.True(t, hasA)
}
