//go:build e2e

package framework

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
)

// Result represents the result of running a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Success returns true if the command exited with code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// Contains checks if stdout contains the given substring.
func (r *Result) Contains(s string) bool {
	return strings.Contains(r.Stdout, s)
}

// StderrContains checks if stderr contains the given substring.
func (r *Result) StderrContains(s string) bool {
	return strings.Contains(r.Stderr, s)
}

// Runner executes artifacts commands against the environment repository.
type Runner struct {
	t   *testing.T
	env *Environment
}

// NewRunner creates a new command runner.
func NewRunner(t *testing.T, env *Environment) *Runner {
	return &Runner{
		t:   t,
		env: env,
	}
}

func (r *Runner) command(args ...string) (*exec.Cmd, *bytes.Buffer, *bytes.Buffer) {
	full := append([]string{"--repository", r.env.RepoDir(), "--log-level", "error"}, args...)
	cmd := exec.Command(r.env.BinaryPath(), full...)
	cmd.Dir = r.env.RootDir()
	cmd.Env = append(cmd.Env,
		"HOME="+r.env.HomeDir(),
		"PATH="+os.Getenv("PATH"),
		"TMPDIR="+r.env.RootDir(),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	return cmd, &stdout, &stderr
}

func newResult(err error, stdout, stderr *bytes.Buffer) *Result {
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Err:    err,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		result.Err = nil // Exit code is not an error
	} else if err != nil {
		result.ExitCode = -1
	}
	return result
}

// Run executes the artifacts command with the given arguments.
func (r *Runner) Run(args ...string) *Result {
	r.t.Helper()

	cmd, stdout, stderr := r.command(args...)
	return newResult(cmd.Run(), stdout, stderr)
}

// RunConcurrently starts every command before waiting for any of them, so
// the processes contend for the repository lock.
func (r *Runner) RunConcurrently(commands ...[]string) []*Result {
	r.t.Helper()

	results := make([]*Result, len(commands))
	var wg sync.WaitGroup
	for i, args := range commands {
		cmd, stdout, stderr := r.command(args...)
		if err := cmd.Start(); err != nil {
			results[i] = newResult(err, stdout, stderr)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = newResult(cmd.Wait(), stdout, stderr)
		}()
	}
	wg.Wait()
	return results
}

// Version runs the version command.
func (r *Runner) Version() *Result {
	return r.Run("version")
}

// Install runs the install command for the given specifications.
func (r *Runner) Install(specs ...string) *Result {
	return r.Run(append([]string{"install"}, specs...)...)
}

// Path runs the path command.
func (r *Runner) Path(spec string, attributes ...string) *Result {
	args := []string{"path", spec}
	for _, a := range attributes {
		args = append(args, "--attribute", a)
	}
	return r.Run(args...)
}

// Exports writes the exports of every installed artifact to stdout.
func (r *Runner) Exports() *Result {
	return r.Run("exports", "--output", "-")
}

// Scenario provides a fluent interface for writing BDD-style tests.
type Scenario struct {
	t      *testing.T
	env    *Environment
	runner *Runner
	result *Result
}

// NewScenario creates a new test scenario.
func NewScenario(t *testing.T) *Scenario {
	env := NewEnvironment(t)
	return &Scenario{
		t:      t,
		env:    env,
		runner: NewRunner(t, env),
	}
}

// Given sets up the test preconditions.
func (s *Scenario) Given(description string, setup func(*Environment)) *Scenario {
	s.t.Helper()
	s.t.Logf("Given %s", description)
	setup(s.env)
	return s
}

// When executes the action under test.
func (s *Scenario) When(description string, action func(*Runner) *Result) *Scenario {
	s.t.Helper()
	s.t.Logf("When %s", description)
	s.result = action(s.runner)
	return s
}

// Then asserts the expected outcome.
func (s *Scenario) Then(description string, assertion func(*testing.T, *Result)) *Scenario {
	s.t.Helper()
	s.t.Logf("Then %s", description)
	assertion(s.t, s.result)
	return s
}

// And is an alias for Then for chaining assertions.
func (s *Scenario) And(description string, assertion func(*testing.T, *Result)) *Scenario {
	return s.Then(description, assertion)
}

// Environment returns the test environment for direct access.
func (s *Scenario) Environment() *Environment {
	return s.env
}

// Runner returns the command runner.
func (s *Scenario) Runner() *Runner {
	return s.runner
}

// Result returns the last command result.
func (s *Scenario) Result() *Result {
	return s.result
}
