package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/dag"
	"github.com/vk/rayflow/internal/executor"
	"github.com/vk/rayflow/internal/router"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Run executes the loaded workflow once. It resolves run-level inputs, builds
// the dependency graph, drives it to completion, and resolves the workflow's
// declared outputs under the results root. The returned RunResult is always
// populated, even when the run failed or was cancelled.
func (a *App) Run(ctx context.Context, appConfig *Config) (*executor.RunResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, appConfig.HealthcheckPort)
		defer a.stopHealthcheckServer(ctx)
	}

	inputs, err := a.resolveInputs(appConfig.Inputs)
	if err != nil {
		return nil, err
	}

	graph, err := dag.Build(ctx, a.model, a.registry)
	if err != nil {
		return nil, fmt.Errorf("building dependency graph: %w", err)
	}
	a.logger.Info("Dependency graph built.", "nodes", graph.Len())

	outDir, err := filepath.Abs(appConfig.OutDir)
	if err != nil {
		return nil, err
	}
	workDir := appConfig.WorkDir
	if workDir == "" {
		workDir = filepath.Join(outDir, ".rayflow")
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}

	rt := router.New(outDir)
	exec := executor.New(graph, appConfig.WorkerCount, a.registry, rt, workDir, inputs)

	result, runErr := exec.Run(ctx)
	result.Outputs = rt.ResolveWorkflowOutputs(a.model.Workflow.Outputs)

	a.printSummary(result)
	return result, runErr
}

// resolveInputs merges run-level overrides over the workflow's declared input
// defaults. Override values arrive as strings and are converted to the
// declared types; a declared input with neither a default nor an override is
// an error before anything executes.
func (a *App) resolveInputs(overrides map[string]string) (map[string]cty.Value, error) {
	declared := make(map[string]bool, len(a.model.Workflow.Inputs))
	resolved := make(map[string]cty.Value, len(a.model.Workflow.Inputs))

	for _, in := range a.model.Workflow.Inputs {
		declared[in.Name] = true
		if raw, ok := overrides[in.Name]; ok {
			val, err := convert.Convert(cty.StringVal(raw), in.Type)
			if err != nil {
				return nil, fmt.Errorf("input '%s': cannot convert %q to %s: %w", in.Name, raw, in.Type.FriendlyName(), err)
			}
			resolved[in.Name] = val
			continue
		}
		if in.Default != nil {
			resolved[in.Name] = *in.Default
			continue
		}
		return nil, fmt.Errorf("input '%s' has no default and no value was provided", in.Name)
	}

	for name := range overrides {
		if !declared[name] {
			return nil, fmt.Errorf("unknown input '%s'", name)
		}
	}
	return resolved, nil
}

// printSummary writes the human-facing per-node outcome table to the
// application's output writer.
func (a *App) printSummary(result *executor.RunResult) {
	fmt.Fprintf(a.outW, "\nRun %s: %s\n", result.RunID, result.Status)
	for _, id := range sortedNodeIDs(result) {
		report := result.Nodes[id]
		if report.Err != nil {
			fmt.Fprintf(a.outW, "  %-12s %s (%v)\n", report.State, id, report.Err)
			continue
		}
		fmt.Fprintf(a.outW, "  %-12s %s\n", report.State, id)
	}
	if len(result.Outputs) > 0 {
		fmt.Fprintln(a.outW, "Outputs:")
		for name, path := range result.Outputs {
			fmt.Fprintf(a.outW, "  %s: %s\n", name, path)
		}
	}
}

func sortedNodeIDs(result *executor.RunResult) []string {
	ids := make([]string, 0, len(result.Nodes))
	for id := range result.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
