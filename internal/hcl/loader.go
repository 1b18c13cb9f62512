// Package hcl implements the config.Loader interface for HCL files. It
// discovers .hcl files, parses them, and translates the raw schema into the
// format-agnostic config model.
package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/rayflow/internal/config"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/fsutil"
	"github.com/vk/rayflow/internal/schema"
)

// Loader discovers, parses, and translates HCL configuration files.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load reads all .hcl files under the given paths, merges their blocks into a
// single raw file set, and translates it into the config model. Task
// declaration order follows file order (sorted paths) then block order within
// a file, which makes the resulting model deterministic.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var files []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		found, err := fsutil.FindFilesByExtension(p, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("discovering config files under %q: %w", p, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found under %v", paths)
	}
	logger.Debug("Discovered configuration files.", "count", len(files))

	merged := &schema.File{}
	for _, path := range files {
		hclFile, diags := l.parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", path, diags)
		}

		var raw schema.File
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", path, diags)
		}
		logger.Debug("Decoded configuration file.",
			"path", path,
			"tasks", len(raw.Tasks),
			"templates", len(raw.Templates),
		)

		merged.Inputs = append(merged.Inputs, raw.Inputs...)
		merged.Tasks = append(merged.Tasks, raw.Tasks...)
		merged.Outputs = append(merged.Outputs, raw.Outputs...)
		merged.Templates = append(merged.Templates, raw.Templates...)
	}

	model, err := l.translate(ctx, merged)
	if err != nil {
		return nil, err
	}
	logger.Debug("Configuration translated into unified model.",
		"tasks", len(model.Workflow.Tasks),
		"templates", len(model.Templates),
	)
	return model, nil
}
