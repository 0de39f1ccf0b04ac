// Package build runs the external build tool for a project root with an
// ordered list of goals. The build itself is opaque: callers only see an
// exit code.
package build

import (
	"context"
	"errors"
	"time"
)

// ErrNoCommand is returned when an invoker has nothing to execute.
var ErrNoCommand = errors.New("no build command configured")

// Request describes one build invocation.
type Request struct {
	Root  string
	Goals []string
}

// Result is the outcome of an invocation that ran to completion. A
// non-zero ExitCode is a failed build, not an invocation error.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Invoker runs builds. Cancelling ctx asks a started build to terminate;
// Run returns once it has.
type Invoker interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (Result, error)

func (f InvokerFunc) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
