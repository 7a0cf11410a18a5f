// Package execcmd wraps external tool invocation behind a narrow interface
// so checks and remediations can be tested against captured output instead
// of live system state.
package execcmd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Result holds everything a caller may inspect about a finished command.
// A timeout is folded into ExitCode -1; it is never distinguished from any
// other failure and never retried.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Failed reports whether the command did not complete successfully.
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Runner executes an external command with a bounded runtime and captures
// stdout, stderr and the exit code.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
	// RunWithInput feeds input on the command's stdin.
	RunWithInput(ctx context.Context, input string, name string, args ...string) Result
}

type runner struct {
	timeout time.Duration
	logger  hclog.Logger
}

// NewRunner returns a Runner that bounds every invocation by timeout.
func NewRunner(timeout time.Duration, logger hclog.Logger) Runner {
	return &runner{timeout: timeout, logger: logger}
}

func (r *runner) Run(ctx context.Context, name string, args ...string) Result {
	return r.RunWithInput(ctx, "", name, args...)
}

func (r *runner) RunWithInput(ctx context.Context, input string, name string, args ...string) Result {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case cctx.Err() == context.DeadlineExceeded:
		r.logger.Error("command timed out", "command", name, "timeout", r.timeout)
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = "command timed out"
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Binary missing, permission denied on the binary, etc.
			r.logger.Debug("command failed to start", "command", name, "error", err)
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}

	r.logger.Debug("external command finished",
		"command", name, "args", strings.Join(args, " "), "exit_code", res.ExitCode)
	return res
}
