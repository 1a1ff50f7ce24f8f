// Package command provides command execution adapters.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// RealRunner executes actual commands.
type RealRunner struct{}

// NewRealRunner creates a new RealRunner.
func NewRealRunner() *RealRunner {
	return &RealRunner{}
}

// Run executes a command and returns the result.
func (r *RealRunner) Run(ctx context.Context, command string, args ...string) (ports.CommandResult, error) {
	return r.Exec(ctx, ports.Exec{Command: command, Args: args})
}

// Exec starts a command and drains stdout and stderr concurrently, copying
// each stream to the optional writers in e. Both streams are fully read
// before the exit status is collected. A non-zero exit is reported in the
// result, not as an error.
func (r *RealRunner) Exec(ctx context.Context, e ports.Exec) (ports.CommandResult, error) {
	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return ports.CommandResult{}, fmt.Errorf("failed to open stdout: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return ports.CommandResult{}, fmt.Errorf("failed to open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return ports.CommandResult{}, err
	}

	var stdout, stderr strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdoutPipe, &stdout, e.Stdout)
	go drain(&wg, stderrPipe, &stderr, e.Stderr)
	wg.Wait()

	err = cmd.Wait()

	result := ports.CommandResult{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}

	return result, nil
}

func drain(wg *sync.WaitGroup, r io.Reader, collect *strings.Builder, tee io.Writer) {
	defer wg.Done()
	var w io.Writer = collect
	if tee != nil {
		w = io.MultiWriter(collect, tee)
	}
	_, _ = io.Copy(w, r)
}

// Ensure RealRunner implements the command ports.
var (
	_ ports.CommandRunner = (*RealRunner)(nil)
	_ ports.ExecRunner    = (*RealRunner)(nil)
)
