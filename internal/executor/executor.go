// Package executor walks the dependency graph to completion: it dispatches
// ready nodes to a worker pool, expands loop template nodes once their
// collections are discovered, propagates failures to dependents, and honors
// cooperative cancellation.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/dag"
	"github.com/vk/rayflow/internal/registry"
	"github.com/vk/rayflow/internal/router"
	"github.com/zclconf/go-cty/cty"
)

// Executor executes a built graph with bounded workers and unbounded
// logical parallelism: nothing is serialized beyond the dependency edges.
type Executor struct {
	graph  *dag.Graph
	reg    *registry.Registry
	router *router.Router

	numWorkers int
	workDir    string
	inputs     map[string]cty.Value

	wg    sync.WaitGroup
	ready chan *dag.Node
}

// New creates an executor for one run. workDir is the scratch root under
// which each node gets its private working folder.
func New(graph *dag.Graph, workers int, reg *registry.Registry, rt *router.Router, workDir string, inputs map[string]cty.Value) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if inputs == nil {
		inputs = map[string]cty.Value{}
	}
	return &Executor{
		graph:      graph,
		reg:        reg,
		router:     rt,
		numWorkers: workers,
		workDir:    workDir,
		inputs:     inputs,
	}
}

// Run executes the entire graph concurrently and reports the outcome. The
// returned error is the root cause when the run failed; the RunResult always
// carries the full per-node status map.
func (e *Executor) Run(ctx context.Context) (*RunResult, error) {
	logger := ctxlog.FromContext(ctx)
	runID := uuid.NewString()
	logger.Info("🚀 Starting concurrent execution.", "run_id", runID, "nodes", e.graph.Len())

	e.ready = make(chan *dag.Node, e.graph.Len()+1)

	initial := e.graph.Snapshot()
	for _, node := range initial {
		node.DepCount.Store(int32(len(node.Deps)))
	}
	e.wg.Add(len(initial))

	for _, node := range initial {
		if node.DepCount.Load() == 0 {
			logger.Debug("Found root node.", "node_id", node.ID)
			e.onReady(ctx, node)
		}
	}

	var workerWG sync.WaitGroup
	for i := 0; i < e.numWorkers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			e.worker(ctx, workerID)
		}(i)
	}

	e.wg.Wait()
	close(e.ready)
	workerWG.Wait()

	result := e.collectResult(ctx, runID)
	switch result.Status {
	case StatusCancelled:
		logger.Warn("🛑 Run cancelled.", "run_id", runID)
		return result, context.Canceled
	case StatusFailed:
		logger.Error("❌ Run failed.", "run_id", runID, "failed_nodes", result.FailedNodes())
		return result, fmt.Errorf("execution failed for %v: %w", result.FailedNodes(), result.rootCause)
	default:
		logger.Info("🏁 Run succeeded.", "run_id", runID)
		return result, nil
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "worker_id", workerID)

	for node := range e.ready {
		workerLogger := logger.With("worker_id", workerID, "node_id", node.ID)

		if ctx.Err() != nil {
			e.terminateOnce(node, dag.StateCancelled, ctx.Err())
			// Dependents still hold accounting slots; release them or the
			// run never drains.
			e.propagate(ctx, node, dag.StateCancelled)
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		node.SetState(dag.StateRunning)

		var err error
		if node.Kind == dag.KindLoop {
			err = e.finalizeCollector(ctx, node)
		} else {
			err = e.executeTaskNode(ctx, node)
		}

		if err != nil {
			if ctx.Err() != nil {
				workerLogger.Warn("Node cancelled mid-flight.", "error", err)
				node.Err = err
				node.SetState(dag.StateCancelled)
				e.propagate(ctx, node, dag.StateCancelled)
			} else {
				workerLogger.Error("Node execution failed.", "error", err)
				node.Err = err
				node.SetState(dag.StateFailed)
				e.propagate(ctx, node, dag.StateSkipped)
			}
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Node execution succeeded.")
		node.SetState(dag.StateSucceeded)
		e.unlockDependents(ctx, node)
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "worker_id", workerID)
}

// unlockDependents decrements each dependent's dependency counter and hands
// newly ready nodes to the scheduler.
func (e *Executor) unlockDependents(ctx context.Context, node *dag.Node) {
	for _, dependent := range node.Dependents {
		if dependent.DepCount.Add(-1) == 0 {
			if dependent.State().Terminal() {
				// Already skipped or cancelled through another path.
				continue
			}
			ctxlog.FromContext(ctx).Debug("Unlocking dependent node.", "node_id", node.ID, "dependent_id", dependent.ID)
			e.onReady(ctx, dependent)
		}
	}
}

// onReady routes a node whose dependencies are all satisfied. A loop
// template node reaching readiness for the first time is expanded in place;
// the second time (all instances complete) it is dispatched as the collector.
// Everything else goes straight to the worker pool.
func (e *Executor) onReady(ctx context.Context, node *dag.Node) {
	if node.Kind == dag.KindLoop && !node.Expanded() {
		e.expandLoop(ctx, node)
		return
	}
	node.SetState(dag.StateReady)
	e.dispatch(node)
}

// dispatch hands a node to the worker pool without ever blocking the caller.
// Loop expansion grows the graph past the channel's initial capacity, so the
// overflow send moves to a goroutine. A dispatched node is still pending in
// the run accounting, which keeps the channel open until it is consumed.
func (e *Executor) dispatch(node *dag.Node) {
	select {
	case e.ready <- node:
	default:
		go func() { e.ready <- node }()
	}
}

// terminateOnce moves a node that never ran into a terminal state, exactly
// once, and releases its slot in the run accounting.
func (e *Executor) terminateOnce(node *dag.Node, state dag.State, err error) {
	node.SkipOnce.Do(func() {
		node.Err = err
		node.SetState(state)
		e.wg.Done()
	})
}

// propagate recursively marks all downstream nodes with the given terminal
// state. Used with StateSkipped on failure (fail-fast) and StateCancelled on
// abort. Independent branches are untouched and keep executing.
func (e *Executor) propagate(ctx context.Context, node *dag.Node, state dag.State) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		dep := dependent
		dep.SkipOnce.Do(func() {
			logger.Warn("Terminating dependent node due to upstream outcome.",
				"node_id", dep.ID, "upstream", node.ID, "state", state.String())
			if state == dag.StateCancelled {
				dep.Err = fmt.Errorf("not started: run cancelled while waiting on '%s'", node.ID)
			} else {
				dep.Err = fmt.Errorf("skipped due to upstream failure of '%s'", node.ID)
			}
			dep.SetState(state)
			e.wg.Done()
			e.propagate(ctx, dep, state)
		})
	}
}
