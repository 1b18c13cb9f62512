// Package app wires the engine together: it loads configuration into the
// model, registers template handler modules, validates manifest/handler
// parity, and drives one workflow run from graph build to routed outputs.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	registry   *registry.Registry
	model      *config.Model
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Configuration problems at this stage are fatal and panic; the CLI recovers
// and reports them as startup errors.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var configPaths []string
	if appConfig.WorkflowPath != "" {
		configPaths = append(configPaths, appConfig.WorkflowPath)
	}
	if appConfig.TemplatesPath != "" {
		configPaths = append(configPaths, appConfig.TemplatesPath)
	}

	model, err := loader.Load(ctx, configPaths...)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All handler modules registered.", "count", len(modules))

	reg.PopulateDefinitionsFromModel(model)

	if err := reg.ValidateRegistry(ctx); err != nil {
		// A mismatch between manifests and Go handlers is a programmer
		// error, not a user error.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		model:    model,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded configuration model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
