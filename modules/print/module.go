// Package print provides a debugging handler that prints its input values.
package print

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print handler.
type Input struct {
	Value map[string]string `hcl:"value"`
}

// OnRunPrint is the handler for the 'print' on_run lifecycle event.
func OnRunPrint(ctx context.Context, rc *registry.RunContext, input *Input) (cty.Value, error) {
	ctxlog.FromContext(ctx).Info("Printing input")

	if input.Value == nil {
		fmt.Println("      (null)")
		return cty.NilVal, nil
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(input.Value))
	for k := range input.Value {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("      %s = %q\n", k, input.Value[k])
	}

	return cty.NilVal, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTemplate("OnRunPrint", &registry.RegisteredTemplate{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunPrint,
	})
}
