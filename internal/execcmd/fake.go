package execcmd

import (
	"context"
	"strings"
)

// Fake is a Runner for tests, keyed by the full command line. Unmatched
// commands behave like a missing binary.
type Fake struct {
	// Responses maps "name arg1 arg2 ..." to the canned result.
	Responses map[string]Result
	// Calls records every command line in invocation order.
	Calls []string
}

// NewFake returns an empty Fake runner.
func NewFake() *Fake {
	return &Fake{Responses: make(map[string]Result)}
}

// On registers a canned result for the given command line.
func (f *Fake) On(commandLine string, res Result) *Fake {
	f.Responses[commandLine] = res
	return f
}

func (f *Fake) Run(_ context.Context, name string, args ...string) Result {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.Calls = append(f.Calls, line)
	if res, ok := f.Responses[line]; ok {
		return res
	}
	return Result{ExitCode: -1, Stderr: "no canned response for: " + line}
}

// RunWithInput ignores the input and dispatches like Run.
func (f *Fake) RunWithInput(ctx context.Context, _ string, name string, args ...string) Result {
	return f.Run(ctx, name, args...)
}

// CallCount returns how many times the given command line was executed.
func (f *Fake) CallCount(commandLine string) int {
	n := 0
	for _, c := range f.Calls {
		if c == commandLine {
			n++
		}
	}
	return n
}
