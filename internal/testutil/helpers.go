// Package testutil provides test helpers and utilities for repository tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTempFile writes content to a file in the specified directory.
func WriteTempFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err, "failed to create directory for: %s", filename)
	err = os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err, "failed to write temp file: %s", filename)

	return path
}

// WriteScript writes an executable bash script with the given body.
func WriteScript(t *testing.T, dir, filename, body string) string {
	t.Helper()

	path := WriteTempFile(t, dir, filename, "#!/bin/bash\n"+body+"\n")
	require.NoError(t, os.Chmod(path, 0o755))
	return path
}

// WriteSizedFile writes a file of exactly size bytes.
func WriteSizedFile(t *testing.T, dir, filename string, size int) string {
	t.Helper()

	return WriteTempFile(t, dir, filename, string(make([]byte, size)))
}

// RequireBash skips the test when bash is not installed.
func RequireBash(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

// SetEnv sets an environment variable for the duration of the test.
func SetEnv(t *testing.T, key, value string) {
	t.Helper()

	original, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))

	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, original)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}
