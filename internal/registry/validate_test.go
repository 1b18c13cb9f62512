package registry

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rayflow/internal/config"
	"github.com/zclconf/go-cty/cty"
)

func definition(onRun string, inputs map[string]cty.Type) *config.TemplateDefinition {
	def := &config.TemplateDefinition{
		Type:      "test_template",
		Lifecycle: &config.Lifecycle{OnRun: onRun},
		Inputs:    make(map[string]*config.InputDefinition),
		Outputs:   make(map[string]*config.OutputDefinition),
	}
	for name, ty := range inputs {
		def.Inputs[name] = &config.InputDefinition{Name: name, Type: ty}
	}
	return def
}

func TestValidateRegistry_Parity(t *testing.T) {
	t.Parallel()

	type input struct {
		Command string `hcl:"command"`
		Retries int64  `hcl:"retries"`
	}

	r := New()
	r.RegisterTemplate("OnRunTest", &RegisteredTemplate{
		NewInput:  func() any { return new(input) },
		InputType: reflect.TypeOf(input{}),
		Fn:        func() {},
	})
	r.DefinitionRegistry["test_template"] = definition("OnRunTest", map[string]cty.Type{
		"command": cty.String,
		"retries": cty.Number,
	})

	require.NoError(t, r.ValidateRegistry(context.Background()))
}

func TestValidateRegistry_MissingHandler(t *testing.T) {
	t.Parallel()

	r := New()
	r.DefinitionRegistry["test_template"] = definition("OnRunMissing", nil)

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'OnRunMissing' is not registered")
}

func TestValidateRegistry_ManifestInputMissingFromStruct(t *testing.T) {
	t.Parallel()

	type input struct {
		Command string `hcl:"command"`
	}

	r := New()
	r.RegisterTemplate("OnRunTest", &RegisteredTemplate{
		NewInput:  func() any { return new(input) },
		InputType: reflect.TypeOf(input{}),
		Fn:        func() {},
	})
	r.DefinitionRegistry["test_template"] = definition("OnRunTest", map[string]cty.Type{
		"command": cty.String,
		"extra":   cty.String,
	})

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input 'extra' which is not found in Go struct")
}

func TestValidateRegistry_StructFieldMissingFromManifest(t *testing.T) {
	t.Parallel()

	type input struct {
		Command string `hcl:"command"`
		Hidden  string `hcl:"hidden"`
	}

	r := New()
	r.RegisterTemplate("OnRunTest", &RegisteredTemplate{
		NewInput:  func() any { return new(input) },
		InputType: reflect.TypeOf(input{}),
		Fn:        func() {},
	})
	r.DefinitionRegistry["test_template"] = definition("OnRunTest", map[string]cty.Type{
		"command": cty.String,
	})

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'hidden' which is not declared in manifest")
}

func TestValidateRegistry_TypeMismatch(t *testing.T) {
	t.Parallel()

	type input struct {
		Retries string `hcl:"retries"`
	}

	r := New()
	r.RegisterTemplate("OnRunTest", &RegisteredTemplate{
		NewInput:  func() any { return new(input) },
		InputType: reflect.TypeOf(input{}),
		Fn:        func() {},
	})
	r.DefinitionRegistry["test_template"] = definition("OnRunTest", map[string]cty.Type{
		"retries": cty.Number,
	})

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")
}

func TestValidateRegistry_DynamicTypeSkipsStaticCheck(t *testing.T) {
	t.Parallel()

	type input struct {
		Anything string `hcl:"anything"`
	}

	r := New()
	r.RegisterTemplate("OnRunTest", &RegisteredTemplate{
		NewInput:  func() any { return new(input) },
		InputType: reflect.TypeOf(input{}),
		Fn:        func() {},
	})
	r.DefinitionRegistry["test_template"] = definition("OnRunTest", map[string]cty.Type{
		"anything": cty.DynamicPseudoType,
	})

	require.NoError(t, r.ValidateRegistry(context.Background()))
}

func TestRegisterTemplate_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterTemplate("OnRunDup", &RegisteredTemplate{Fn: func() {}})
	assert.Panics(t, func() {
		r.RegisterTemplate("OnRunDup", &RegisteredTemplate{Fn: func() {}})
	})
}
