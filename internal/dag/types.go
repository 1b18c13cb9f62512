package dag

import (
	"sync"
	"sync/atomic"

	"github.com/vk/rayflow/internal/artifact"
	"github.com/vk/rayflow/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// NodeKind distinguishes the three node flavors in the graph.
type NodeKind int

const (
	// KindTask is a plain executable task node.
	KindTask NodeKind = iota
	// KindLoop is a template node with a loop block. It is never executed
	// directly; once its collection is discovered it acts as the collector
	// that aggregates its instances' outputs.
	KindLoop
	// KindInstance is one expanded instance of a loop template node.
	KindInstance
)

// State is the lifecycle state of a node during a run.
type State int32

const (
	StatePending State = iota
	StateReady
	StateRunning
	StateSucceeded
	StateFailed
	StateSkipped
	StateCancelled
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether a node in this state will never run again.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped, StateCancelled:
		return true
	}
	return false
}

// Node represents a single vertex in the graph.
type Node struct {
	// ID is the unique identifier, e.g. "task.create_octree" or
	// "task.raytracing[grid1]" for a loop instance.
	ID string
	// Name is the bare task name from the workflow file.
	Name string
	Kind NodeKind
	// Task is the originating task config. Instances share their template
	// node's config; per-item differences live in Item, SubFolder, SubPaths.
	Task *config.Task

	// Deps holds the set of nodes this node depends on (predecessors).
	Deps map[string]*Node
	// Dependents holds the set of nodes that depend on this node (successors).
	Dependents map[string]*Node

	// DeclOrder is the declaration position used as the topological-sort
	// tie-break. Instances inherit their template's position.
	DeclOrder int

	// Item and the resolved patterns below are set on instance nodes only.
	Item      *artifact.LoopItem
	SubFolder string
	SubPaths  map[string]string

	// Execution state, owned by the executor. Err and Output are written
	// before the terminal state is stored, which publishes them to readers.
	StateAtomic atomic.Int32
	Err         error
	Output      cty.Value

	// DepCount is the number of unsatisfied dependencies. A node becomes
	// ready when it reaches zero.
	DepCount atomic.Int32

	// SkipOnce guards the single terminal transition of a node that is
	// skipped or cancelled without running.
	SkipOnce sync.Once

	// expanded flips when a loop template node has been fanned out into its
	// instances. Its second readiness (all instances complete) then runs the
	// collector.
	expanded atomic.Bool
}

// Expanded reports whether a loop template node has already been fanned out.
func (n *Node) Expanded() bool {
	return n.expanded.Load()
}

// MarkExpanded records that loop expansion has happened for this node.
func (n *Node) MarkExpanded() {
	n.expanded.Store(true)
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	return State(n.StateAtomic.Load())
}

// SetState stores a new lifecycle state.
func (n *Node) SetState(s State) {
	n.StateAtomic.Store(int32(s))
}

// Graph is a collection of nodes and their dependency edges. Loop expansion
// adds nodes while workers are running, so all map access goes through the
// mutex.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node

	// order is the deterministic topological ordering of the build-time
	// nodes, computed once construction succeeds.
	order []string
}

// NewGraph creates an initialized, empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Node returns the node with the given id, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes currently in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Snapshot returns the current node set as a slice. The slice is a copy; the
// nodes are shared.
func (g *Graph) Snapshot() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

// TopologicalOrder returns the deterministic ordering computed at build time.
// Nodes added by loop expansion are not part of this ordering.
func (g *Graph) TopologicalOrder() []string {
	return g.order
}

// add inserts a node, failing on id collision.
func (g *Graph) add(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.ID]; exists {
		return &DuplicateNodeError{ID: n.ID}
	}
	g.nodes[n.ID] = n
	return nil
}

// addEdge records that `to` depends on `from`. Both maps are updated so the
// edge can be walked in either direction. Adding an existing edge is a no-op,
// which is how explicit and implicit declarations of the same dependency are
// unioned without duplication.
func addEdge(from, to *Node) {
	if _, exists := to.Deps[from.ID]; exists {
		return
	}
	to.Deps[from.ID] = from
	from.Dependents[to.ID] = to
}
