package dag

import (
	"fmt"
	"strings"
)

// CycleError is returned when the declared dependencies form a cycle. It is
// detected during graph construction, never at execution time.
type CycleError struct {
	NodeID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving '%s'", e.NodeID)
}

// DuplicateNodeError is returned when two nodes resolve to the same id,
// either from duplicate task declarations or from loop items with colliding
// names.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id '%s'", e.ID)
}

// UnresolvedReferenceError is returned when a task references a node id,
// template type, or output name that does not exist.
type UnresolvedReferenceError struct {
	NodeID string
	Ref    string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("node '%s' references unknown identifier '%s'", e.NodeID, e.Ref)
}

// PathCollisionError is returned when two nodes resolve to the same output
// destination or sub-folder. Exclusive ownership of output paths is the
// engine's core concurrency-safety invariant, so a collision is always fatal.
type PathCollisionError struct {
	Path  string
	Nodes []string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("path '%s' claimed by multiple nodes: %s", e.Path, strings.Join(e.Nodes, ", "))
}
