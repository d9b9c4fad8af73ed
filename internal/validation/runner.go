package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandResult is the outcome of an external command that ran to exit.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external linters. An error means the command could not be
// started or was killed, not that it exited nonzero.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("%s: %w", name, err)
}
