package registry

import (
	"github.com/vk/rayflow/internal/config"
)

// Module is the interface that all handler modules must implement to be
// registered with the engine.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered Go handlers and the template definitions
// loaded from manifests for a single application instance.
type Registry struct {
	HandlerRegistry    map[string]*RegisteredTemplate
	DefinitionRegistry map[string]*config.TemplateDefinition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		HandlerRegistry:    make(map[string]*RegisteredTemplate),
		DefinitionRegistry: make(map[string]*config.TemplateDefinition),
	}
}

// PopulateDefinitionsFromModel copies the loaded template definitions from
// the config model into the registry for easy access during execution.
func (r *Registry) PopulateDefinitionsFromModel(model *config.Model) {
	for key, val := range model.Templates {
		r.DefinitionRegistry[key] = val
	}
}
