package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/benaskins/devmode/internal/logbuf"
)

const defaultStopTimeout = 10 * time.Second

// NativeConfig holds configuration for a build tool run on the host.
type NativeConfig struct {
	Command     string        // e.g. "mvn" or "./mvnw -B"
	Args        []string      // placed before the goals
	Env         []string      // appended to the current environment
	StopTimeout time.Duration // SIGTERM grace period before SIGKILL
	Output      *logbuf.Ring  // captures stdout and stderr; may be nil
}

// Native runs the build tool as a child process in its own process group,
// so cancellation reaches the JVMs it forks.
type Native struct {
	command     string
	args        []string
	env         []string
	stopTimeout time.Duration
	output      *logbuf.Ring
}

func NewNative(cfg NativeConfig) *Native {
	parts := strings.Fields(cfg.Command)
	var command string
	var args []string
	if len(parts) > 0 {
		command = parts[0]
		args = parts[1:]
	}
	args = append(args, cfg.Args...)

	stop := cfg.StopTimeout
	if stop <= 0 {
		stop = defaultStopTimeout
	}

	return &Native{
		command:     command,
		args:        args,
		env:         cfg.Env,
		stopTimeout: stop,
		output:      cfg.Output,
	}
}

// CommandLine returns the full argv for a request, for logging.
func (n *Native) CommandLine(req Request) []string {
	argv := append([]string{n.command}, n.args...)
	return append(argv, req.Goals...)
}

func (n *Native) Run(ctx context.Context, req Request) (Result, error) {
	if n.command == "" {
		return Result{ExitCode: -1}, ErrNoCommand
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("build cancelled before start: %w", err)
	}

	args := slices.Concat(n.args, req.Goals)
	cmd := exec.Command(n.command, args...)
	cmd.Dir = req.Root
	cmd.Env = append(os.Environ(), n.env...)
	cmd.Stdin = nil

	var out io.Writer = io.Discard
	if n.output != nil {
		n.output.Reset()
		out = n.output
	}
	cmd.Stdout = out
	cmd.Stderr = out
	// A descendant that left the process group can hold the output pipe
	// open after the build exits.
	cmd.WaitDelay = n.stopTimeout
	setProcessGroup(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("starting %s: %w", n.command, err)
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return n.result(err, started)

	case <-ctx.Done():
		terminateGroup(pid)
		var err error
		select {
		case err = <-done:
		case <-time.After(n.stopTimeout):
			killGroup(pid)
			err = <-done
		}
		res, _ := n.result(err, started)
		return res, fmt.Errorf("build cancelled: %w", ctx.Err())
	}
}

func (n *Native) result(waitErr error, started time.Time) (Result, error) {
	res := Result{Duration: time.Since(started)}
	if waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay) {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, fmt.Errorf("waiting for %s: %w", n.command, waitErr)
}
