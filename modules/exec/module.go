// Package exec provides the template handler that shells out to an external
// executable. Simulation steps are black boxes to the engine: the handler
// runs them inside the node's private working directory and the engine picks
// up whatever artifacts they declared.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/rayflow/internal/ctxlog"
	"github.com/vk/rayflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the exec handler.
type Input struct {
	Command string `hcl:"command"`
	// Args are passed verbatim; no shell interpolation happens.
	Args []string `hcl:"args"`
	// InputPath, when set, is exported to the process as RAYFLOW_INPUT. For
	// loop instances this is the per-item slice of a shared artifact.
	InputPath string `hcl:"input_path"`
	// Retries is the number of re-attempts after a transient failure.
	Retries int64 `hcl:"retries"`
	// TimeoutSeconds bounds a single attempt; zero means no bound beyond the
	// run context.
	TimeoutSeconds int64 `hcl:"timeout_seconds"`
}

// OnRunExec is the handler for the 'exec' on_run lifecycle event. It returns
// cty.NilVal so the engine synthesizes the output object from the declared
// artifact paths.
func OnRunExec(ctx context.Context, rc *registry.RunContext, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("command", input.Command)

	attempt := 0
	run := func() error {
		attempt++
		attemptCtx := ctx
		if input.TimeoutSeconds > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
			defer cancel()
		}

		cmd := exec.CommandContext(attemptCtx, input.Command, input.Args...)
		cmd.Dir = rc.WorkDir
		cmd.Env = os.Environ()
		if input.InputPath != "" {
			cmd.Env = append(cmd.Env, "RAYFLOW_INPUT="+input.InputPath)
		}
		cmd.Env = append(cmd.Env, "RAYFLOW_WORKDIR="+rc.WorkDir)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		logger.Debug("Executing command.", "attempt", attempt, "args", input.Args, "dir", rc.WorkDir)
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				// The run was aborted; retrying would fight the cancellation.
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("command failed: %w (stderr: %s)", err, stderr.String())
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(input.Retries)),
		ctx,
	)
	if err := backoff.Retry(run, policy); err != nil {
		return cty.NilVal, fmt.Errorf("after %d attempt(s): %w", attempt, err)
	}

	return cty.NilVal, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTemplate("OnRunExec", &registry.RegisteredTemplate{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunExec,
	})
}
