package executor

import (
	"context"
	"errors"
	"sort"

	"github.com/vk/rayflow/internal/dag"
)

// Status is the overall outcome of a run.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusCancelled
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// NodeReport is the terminal state of a single node plus its error, if any.
type NodeReport struct {
	State dag.State
	Err   error
}

// RunResult is the caller-facing summary of a run: the overall status, the
// terminal state of every node (including expanded loop instances), and the
// resolved destinations of the workflow-level outputs.
type RunResult struct {
	RunID  string
	Status Status
	Nodes  map[string]NodeReport

	// Outputs maps workflow output names to their resolved absolute paths.
	// Populated by the caller once routing is complete.
	Outputs map[string]string

	rootCause error
}

// FailedNodes returns the ids of nodes that failed outright (not the ones
// skipped downstream of them), sorted for stable reporting.
func (r *RunResult) FailedNodes() []string {
	var failed []string
	for id, report := range r.Nodes {
		if report.State == dag.StateFailed {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	return failed
}

// collectResult walks the finished graph and derives the aggregate outcome.
// Cancellation dominates: a run aborted by the caller is Cancelled even if
// some nodes had already failed.
func (e *Executor) collectResult(ctx context.Context, runID string) *RunResult {
	result := &RunResult{
		RunID:   runID,
		Status:  StatusSucceeded,
		Nodes:   make(map[string]NodeReport),
		Outputs: make(map[string]string),
	}

	anyFailed := false
	anyCancelled := false
	for _, node := range e.graph.Snapshot() {
		report := NodeReport{State: node.State(), Err: node.Err}
		result.Nodes[node.ID] = report

		switch report.State {
		case dag.StateFailed:
			anyFailed = true
			if result.rootCause == nil && node.Err != nil && !errors.Is(node.Err, context.Canceled) {
				result.rootCause = node.Err
			}
		case dag.StateCancelled:
			anyCancelled = true
		}
	}

	switch {
	case ctx.Err() != nil || anyCancelled:
		result.Status = StatusCancelled
	case anyFailed:
		result.Status = StatusFailed
	}
	return result
}
