package registry

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/vk/rayflow/internal/config"
)

// RunContext carries the per-node execution environment into a template
// handler: the node's private working directory and the declared output
// contract the handler is expected to fulfil.
type RunContext struct {
	// WorkDir is the node's exclusive output namespace. No other node writes
	// under this path.
	WorkDir string
	// Outputs are the template's declared output artifacts, keyed by logical
	// name. Each Path is relative to WorkDir.
	Outputs map[string]*config.OutputDefinition
}

// RegisteredTemplate holds the compiled Go parts of a template's run handler.
//
// Fn must have the signature
//
//	func(ctx context.Context, rc *registry.RunContext, input *T) (cty.Value, error)
//
// where *T is the struct produced by NewInput. A handler may return
// cty.NilVal, in which case the engine synthesizes the node's output object
// from the declared artifact paths; a returned object value is merged over
// the synthesized one (used by in-memory handlers that produce collection
// values directly).
type RegisteredTemplate struct {
	NewInput  func() any
	InputType reflect.Type
	Fn        any
}

// RegisterTemplate registers a Go run handler under the given name.
// Registering the same name twice is a programmer error.
func (r *Registry) RegisterTemplate(name string, handler *RegisteredTemplate) {
	if _, exists := r.HandlerRegistry[name]; exists {
		panic(fmt.Sprintf("template handler with name '%s' already registered", name))
	}
	slog.Debug("Registering template handler.", "name", name)
	r.HandlerRegistry[name] = handler
}
