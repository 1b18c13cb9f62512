package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rayflow/internal/artifact"
	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/dag"
	"github.com/zclconf/go-cty/cty"
)

// newSourceFile creates an artifact file and returns its path.
func newSourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func taskNode(id string, routes []*config.Route, outputs map[string]cty.Value) *dag.Node {
	return &dag.Node{
		ID:     id,
		Kind:   dag.KindTask,
		Task:   &config.Task{Routes: routes},
		Output: cty.ObjectVal(outputs),
	}
}

func TestRouteNode_FanOutCopiesWithoutMutatingSource(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	src := newSourceFile(t, workDir, "sunpath.mtx", "matrix-data")

	r := New(t.TempDir())
	node := taskNode("task.sunpath", []*config.Route{
		{From: "sunpath", To: "resources/sunpath.mtx"},
		{From: "sunpath", To: "backup/sunpath.mtx"},
	}, map[string]cty.Value{"sunpath": cty.StringVal(src)})

	require.NoError(t, r.RouteNode(context.Background(), node))

	for _, dest := range []string{"resources/sunpath.mtx", "backup/sunpath.mtx"} {
		data, err := os.ReadFile(filepath.Join(r.ResultsRoot(), dest))
		require.NoError(t, err)
		assert.Equal(t, "matrix-data", string(data))
	}

	// The produced artifact itself is untouched.
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "matrix-data", string(data))
}

func TestRouteNode_CopiesDirectories(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	newSourceFile(t, workDir, "total/grid1.res", "1.0")
	newSourceFile(t, workDir, "total/nested/grid2.res", "2.0")

	r := New(t.TempDir())
	node := taskNode("task.post", []*config.Route{
		{From: "total", To: "results/radiation"},
	}, map[string]cty.Value{"total": cty.StringVal(filepath.Join(workDir, "total"))})

	require.NoError(t, r.RouteNode(context.Background(), node))

	data, err := os.ReadFile(filepath.Join(r.ResultsRoot(), "results/radiation/grid1.res"))
	require.NoError(t, err)
	assert.Equal(t, "1.0", string(data))

	data, err = os.ReadFile(filepath.Join(r.ResultsRoot(), "results/radiation/nested/grid2.res"))
	require.NoError(t, err)
	assert.Equal(t, "2.0", string(data))
}

func TestRouteNode_SubstitutesInstancePlaceholders(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	src := newSourceFile(t, workDir, "results.ill", "irradiance")

	r := New(t.TempDir())
	node := &dag.Node{
		ID:   "task.rt[grid1]",
		Kind: dag.KindInstance,
		Item: &artifact.LoopItem{Name: "grid1", Fields: map[string]string{"name": "grid1"}},
		Task: &config.Task{Routes: []*config.Route{
			{From: "result", To: "results/total/{{item.name}}.ill"},
		}},
		Output: cty.ObjectVal(map[string]cty.Value{"result": cty.StringVal(src)}),
	}

	require.NoError(t, r.RouteNode(context.Background(), node))

	data, err := os.ReadFile(filepath.Join(r.ResultsRoot(), "results/total/grid1.ill"))
	require.NoError(t, err)
	assert.Equal(t, "irradiance", string(data))
}

func TestRouteNode_RuntimeCollisionIsRejected(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	src := newSourceFile(t, workDir, "data.json", "{}")

	r := New(t.TempDir())
	first := taskNode("task.a", []*config.Route{
		{From: "data", To: "results/data.json"},
	}, map[string]cty.Value{"data": cty.StringVal(src)})
	second := taskNode("task.b", []*config.Route{
		{From: "data", To: "results/data.json"},
	}, map[string]cty.Value{"data": cty.StringVal(src)})

	require.NoError(t, r.RouteNode(context.Background(), first))

	err := r.RouteNode(context.Background(), second)
	require.Error(t, err)
	var collisionErr *dag.PathCollisionError
	require.ErrorAs(t, err, &collisionErr)
	assert.Equal(t, "results/data.json", collisionErr.Path)
}

func TestRouteNode_SameNodeCannotClaimDestinationTwice(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	result := newSourceFile(t, workDir, "results.ill", "irradiance")
	log := newSourceFile(t, workDir, "run.log", "lines")

	// Both placeholder routes resolve to the same destination, so accepting
	// them would race two copies onto one file.
	r := New(t.TempDir())
	node := &dag.Node{
		ID:   "task.rt[grid1]",
		Kind: dag.KindInstance,
		Item: &artifact.LoopItem{Name: "grid1", Fields: map[string]string{"name": "grid1"}},
		Task: &config.Task{Routes: []*config.Route{
			{From: "result", To: "results/{{item.name}}.ill"},
			{From: "log", To: "results/{{item.name}}.ill"},
		}},
		Output: cty.ObjectVal(map[string]cty.Value{
			"result": cty.StringVal(result),
			"log":    cty.StringVal(log),
		}),
	}

	err := r.RouteNode(context.Background(), node)
	require.Error(t, err)
	var collisionErr *dag.PathCollisionError
	require.ErrorAs(t, err, &collisionErr)
	assert.Equal(t, "results/grid1.ill", collisionErr.Path)
}

func TestRouteNode_UndeclaredOutputIsRejected(t *testing.T) {
	t.Parallel()

	r := New(t.TempDir())
	node := taskNode("task.a", []*config.Route{
		{From: "missing", To: "results/x"},
	}, map[string]cty.Value{"data": cty.StringVal("/nonexistent")})

	err := r.RouteNode(context.Background(), node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared output")
}

func TestRouteNode_MissingArtifactIsRejected(t *testing.T) {
	t.Parallel()

	r := New(t.TempDir())
	node := taskNode("task.a", []*config.Route{
		{From: "data", To: "results/x"},
	}, map[string]cty.Value{"data": cty.StringVal(filepath.Join(t.TempDir(), "never-written"))})

	err := r.RouteNode(context.Background(), node)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routed artifact missing")
}

func TestRouteNode_NoRoutesIsNoop(t *testing.T) {
	t.Parallel()

	r := New(t.TempDir())
	node := taskNode("task.a", nil, map[string]cty.Value{})
	require.NoError(t, r.RouteNode(context.Background(), node))
}

func TestResolveWorkflowOutputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	r := New(root)
	resolved := r.ResolveWorkflowOutputs([]*config.WorkflowOutput{
		{Name: "total_radiation", Source: "results/radiation"},
		{Name: "raw", Source: "results/total"},
	})
	assert.Equal(t, filepath.Join(root, "results/radiation"), resolved["total_radiation"])
	assert.Equal(t, filepath.Join(root, "results/total"), resolved["raw"])
}
