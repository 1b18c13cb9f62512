package executor

import "fmt"

// TemplateExecutionError wraps the failure of a node's external template
// call. It is recorded on the node and triggers fail-fast propagation to the
// node's dependents.
type TemplateExecutionError struct {
	NodeID string
	Err    error
}

func (e *TemplateExecutionError) Error() string {
	return fmt.Sprintf("template execution failed for '%s': %v", e.NodeID, e.Err)
}

func (e *TemplateExecutionError) Unwrap() error {
	return e.Err
}
