package testutil

import "github.com/vk/rayflow/internal/registry"

// SimpleModule is a test helper for easily creating a mock module that
// registers a single template handler.
type SimpleModule struct {
	HandlerName string
	Handler     *registry.RegisteredTemplate
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.HandlerName != "" && m.Handler != nil {
		r.RegisterTemplate(m.HandlerName, m.Handler)
	}
}
