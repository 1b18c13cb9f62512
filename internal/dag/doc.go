// Package dag builds and validates the dependency graph of a workflow run.
// It turns task declarations into nodes, unions explicit depends_on edges
// with implicit edges derived from argument references, rejects cycles and
// unresolved references before anything executes, and expands loop template
// nodes into per-item instances once their collection is discovered.
package dag
