// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"io"
)

// CommandResult represents the result of executing a command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success returns true if the command exited with code 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// CommandCall records a command invocation.
type CommandCall struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// CommandRunner executes commands and collects their output.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (CommandResult, error)
}

// Exec describes a command started in a given directory with extra
// environment variables. Output is copied to Stdout and Stderr while the
// command runs, in addition to being collected in the CommandResult.
type Exec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// ExecRunner runs commands described by Exec.
type ExecRunner interface {
	Exec(ctx context.Context, e Exec) (CommandResult, error)
}
