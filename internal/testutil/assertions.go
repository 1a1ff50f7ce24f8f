package testutil

import (
	"os"
	"testing"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// AssertFileExists asserts that a file exists at the given path.
func AssertFileExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "file does not exist", "expected file to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.False(t, info.IsDir(), "expected file but got directory: %s", path)
}

// AssertDirExists asserts that a directory exists at the given path.
func AssertDirExists(t testing.TB, path string) {
	t.Helper()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		assert.Fail(t, "directory does not exist", "expected directory to exist: %s", path)
		return
	}
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "expected directory but got file: %s", path)
}

// AssertNotExists asserts that nothing exists at the given path.
func AssertNotExists(t testing.TB, path string) {
	t.Helper()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected path to not exist: %s", path)
}

// AssertFileContains asserts that a file contains the expected substring.
func AssertFileContains(t testing.TB, path, expected string) {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.Contains(t, string(content), expected)
}

// AssertState asserts that a record exists and is in the given state.
func AssertState(t testing.TB, a *artifact.Artifact, state artifact.State) {
	t.Helper()

	require.NotNil(t, a, "expected artifact record")
	assert.Equal(t, state, a.State, "unexpected state for %s", a)
}

// AssertYAMLEquals asserts that two YAML strings are semantically equal.
func AssertYAMLEquals(t testing.TB, expected, actual string) {
	t.Helper()

	var expectedDoc, actualDoc interface{}
	require.NoError(t, yaml.Unmarshal([]byte(expected), &expectedDoc), "failed to parse expected YAML")
	require.NoError(t, yaml.Unmarshal([]byte(actual), &actualDoc), "failed to parse actual YAML")

	assert.Equal(t, expectedDoc, actualDoc)
}
