// Package mocks provides test doubles for testing.
package mocks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// CommandRunner is a thread-safe test double for ports.CommandRunner and
// ports.ExecRunner.
type CommandRunner struct {
	mu       sync.RWMutex
	results  map[string]ports.CommandResult
	errors   map[string]error
	fallback *ports.CommandResult
	calls    []ports.CommandCall
}

// NewCommandRunner creates a new CommandRunner mock.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		results: make(map[string]ports.CommandResult),
		errors:  make(map[string]error),
		calls:   make([]ports.CommandCall, 0),
	}
}

// AddResult registers an expected command and its result.
func (m *CommandRunner) AddResult(command string, args []string, result ports.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[buildKey(command, args)] = result
}

// AddError registers an expected command that should return an error.
func (m *CommandRunner) AddError(command string, args []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[buildKey(command, args)] = err
}

// SetDefault sets the result of commands with no registered result.
func (m *CommandRunner) SetDefault(result ports.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &result
}

// Run executes a mock command.
func (m *CommandRunner) Run(ctx context.Context, command string, args ...string) (ports.CommandResult, error) {
	return m.Exec(ctx, ports.Exec{Command: command, Args: args})
}

// Exec executes a mock command, copying the registered output to the
// writers of e.
func (m *CommandRunner) Exec(_ context.Context, e ports.Exec) (ports.CommandResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ports.CommandCall{
		Command: e.Command,
		Args:    e.Args,
		Dir:     e.Dir,
		Env:     e.Env,
	})
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := buildKey(e.Command, e.Args)
	if err, ok := m.errors[key]; ok {
		return ports.CommandResult{}, err
	}

	result, ok := m.results[key]
	if !ok {
		if m.fallback == nil {
			return ports.CommandResult{}, fmt.Errorf("no mock result for command: %s %v", e.Command, e.Args)
		}
		result = *m.fallback
	}
	copyOutput(e.Stdout, result.Stdout)
	copyOutput(e.Stderr, result.Stderr)
	return result, nil
}

// Calls returns all recorded command invocations.
func (m *CommandRunner) Calls() []ports.CommandCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]ports.CommandCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Reset clears all registered results, errors, and recorded calls.
func (m *CommandRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string]ports.CommandResult)
	m.errors = make(map[string]error)
	m.fallback = nil
	m.calls = make([]ports.CommandCall, 0)
}

func copyOutput(w io.Writer, s string) {
	if w != nil && s != "" {
		_, _ = io.WriteString(w, s)
	}
}

// buildKey creates a unique key for a command and its arguments.
func buildKey(command string, args []string) string {
	return command + ":" + strings.Join(args, ":")
}

var (
	_ ports.CommandRunner = (*CommandRunner)(nil)
	_ ports.ExecRunner    = (*CommandRunner)(nil)
)
