package gitver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Runner executes the version-control tool and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecRunner runs git as a subprocess.
type ExecRunner struct {
	// Binary is the tool to execute (default: "git")
	Binary string

	execCommand func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecRunner returns an ExecRunner for the git binary on PATH.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Binary:      "git",
		execCommand: exec.CommandContext,
	}
}

var _ Runner = (*ExecRunner)(nil)

// Run executes the tool in dir and blocks until it exits. Messages are forced
// to the C locale so callers can match on them. Any failure is returned as a
// *ToolExecutionError carrying whatever output was captured. A process killed
// because ctx ended also matches ctx.Err() under errors.Is.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	binary := r.Binary
	if binary == "" {
		binary = "git"
	}
	execCommand := r.execCommand
	if execCommand == nil {
		execCommand = exec.CommandContext
	}

	cmd := execCommand(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C", "LANG=C")

	output, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	if err != nil {
		return output, &ToolExecutionError{
			Args:   args,
			Dir:    dir,
			Output: string(output),
			Err:    err,
		}
	}
	return output, nil
}
