// Package testutil provides the shared end-to-end harness used by the
// package-level tests: it materializes HCL files into a temp directory,
// boots an App with canned handler modules, and runs the workflow.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/rayflow/internal/app"
	"github.com/vk/rayflow/internal/executor"
	"github.com/vk/rayflow/internal/hcl"
	"github.com/vk/rayflow/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an end-to-end test run.
type HarnessResult struct {
	LogOutput string
	Result    *executor.RunResult
	Err       error
	OutDir    string
	WorkDir   string
}

// RunWorkflowTest runs a workflow end to end with a background context.
func RunWorkflowTest(t *testing.T, files map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunWorkflowTestWithContext(context.Background(), t, files, nil, modules...)
}

// RunWorkflowTestWithContext runs a workflow end to end with the caller's
// context and input overrides. files maps relative paths (e.g.
// "workflow/main.hcl") to HCL content; everything lands under one temp root.
func RunWorkflowTestWithContext(ctx context.Context, t *testing.T, files map[string]string, inputs map[string]string, modules ...registry.Module) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	workflowDir := filepath.Join(tmpDir, "workflow")
	outDir := filepath.Join(tmpDir, "out")
	workDir := filepath.Join(tmpDir, "work")
	require.NoError(t, os.MkdirAll(workflowDir, 0o755))

	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	appConfig := &app.Config{
		WorkflowPath: workflowDir,
		OutDir:       outDir,
		WorkDir:      workDir,
		Inputs:       inputs,
		LogLevel:     "debug",
		LogFormat:    "text",
		WorkerCount:  4,
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, hcl.NewLoader(), modules...)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			OutDir:    outDir,
			WorkDir:   workDir,
		}
	}

	result, runErr := testApp.Run(ctx, appConfig)
	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Result:    result,
		Err:       runErr,
		OutDir:    outDir,
		WorkDir:   workDir,
	}
}
