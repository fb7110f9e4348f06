package venv

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command is a single subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Argv returns the full argument vector including the program name.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes subprocesses. Implementations block until the child exits
// and return a non-nil error for a non-zero exit status.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec, streaming child output.
type ExecRunner struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
}

// NewExecRunner creates a runner that streams to stdout and stderr. A zero
// timeout means no limit.
func NewExecRunner(stdout, stderr io.Writer, timeout time.Duration) *ExecRunner {
	return &ExecRunner{Stdout: stdout, Stderr: stderr, Timeout: timeout}
}

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = nil
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	if c.Stdout == nil {
		c.Stdout = os.Stderr
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}

	if err := c.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
