package gitver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotWorkingCopy is returned by the native backend when the handle does
// not point into a repository go-git can open.
var ErrNotWorkingCopy = errors.New("not a git working copy")

// ToolExecutionError reports a git invocation that could not be started or
// exited with a failure the resolver does not recover from.
type ToolExecutionError struct {
	Args   []string
	Dir    string
	Output string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg != "" {
		return fmt.Sprintf("git %s: %s: %v", strings.Join(e.Args, " "), msg, e.Err)
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status of the tool, or -1 if it never ran.
func (e *ToolExecutionError) ExitCode() int {
	var exitErr interface{ ExitCode() int }
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// exited reports whether the tool ran to completion with a non-zero status,
// as opposed to failing to start or being killed by the context.
func exited(err error) bool {
	var toolErr *ToolExecutionError
	if !errors.As(err, &toolErr) {
		return false
	}
	return toolErr.ExitCode() > 0
}
