//go:build e2e

// Package framework provides the E2E test infrastructure for the artifacts
// binary.
package framework

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// Environment is an isolated repository plus a scripts directory shared by
// every process a scenario starts.
type Environment struct {
	t          *testing.T
	rootDir    string
	repoDir    string
	scriptsDir string
	homeDir    string
	binaryPath string
}

var (
	buildOnce   sync.Once
	binaryPath  string
	buildErr    error
	projectRoot string
)

// findProjectRoot locates the directory holding go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// buildBinary builds the artifacts binary once per test run.
func buildBinary(t *testing.T) (string, error) {
	buildOnce.Do(func() {
		projectRoot, buildErr = findProjectRoot()
		if buildErr != nil {
			return
		}

		binaryPath = filepath.Join(os.TempDir(), "artifacts-e2e-test")

		cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/artifacts")
		cmd.Dir = projectRoot

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			buildErr = err
			t.Logf("Build stderr: %s", stderr.String())
		}
	})

	return binaryPath, buildErr
}

// NewEnvironment creates a new isolated test environment.
func NewEnvironment(t *testing.T) *Environment {
	t.Helper()

	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash is not available")
	}

	binary, err := buildBinary(t)
	if err != nil {
		t.Fatalf("Failed to build binary: %v", err)
	}

	rootDir := t.TempDir()
	env := &Environment{
		t:          t,
		rootDir:    rootDir,
		repoDir:    filepath.Join(rootDir, "repo"),
		scriptsDir: filepath.Join(rootDir, "scripts"),
		homeDir:    filepath.Join(rootDir, "home"),
		binaryPath: binary,
	}

	for _, dir := range []string{env.scriptsDir, env.homeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	return env
}

// RootDir returns the path to the test root directory.
func (e *Environment) RootDir() string {
	return e.rootDir
}

// RepoDir returns the repository every command runs against.
func (e *Environment) RepoDir() string {
	return e.repoDir
}

// HomeDir returns the path to the simulated home directory.
func (e *Environment) HomeDir() string {
	return e.homeDir
}

// BinaryPath returns the path to the built binary.
func (e *Environment) BinaryPath() string {
	return e.binaryPath
}

// WriteScript writes an executable install script and returns its path.
func (e *Environment) WriteScript(name, content string) string {
	e.t.Helper()

	path := filepath.Join(e.scriptsDir, name)
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+content), 0o755); err != nil {
		e.t.Fatalf("Failed to write script %s: %v", path, err)
	}
	return path
}

// Path returns the absolute path of a file under the root directory.
func (e *Environment) Path(path string) string {
	return filepath.Join(e.rootDir, path)
}

// FileExists checks if a file exists under the root directory.
func (e *Environment) FileExists(path string) bool {
	_, err := os.Stat(e.Path(path))
	return err == nil
}

// ReadFile reads a file under the root directory.
func (e *Environment) ReadFile(path string) string {
	e.t.Helper()

	content, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
