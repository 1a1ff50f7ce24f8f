package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound indicates no record matches an identity.
	ErrNotFound = errors.New("artifact not found")
	// ErrStoreCorrupt indicates the metadata file could not be decoded.
	ErrStoreCorrupt = errors.New("metadata store is corrupt")
)

// MissingScriptError indicates the install script named by a request does
// not exist. Installation is aborted before any state change.
type MissingScriptError struct {
	Path string
}

func (e *MissingScriptError) Error() string {
	return fmt.Sprintf("install script not found: %s", e.Path)
}

// AttributeResolutionError indicates the install script did not provide a
// value for every unresolved attribute. Missing names attributes the script
// never wrote; Empty names attributes it wrote without a value, which cannot
// form an install path or export name.
type AttributeResolutionError struct {
	Artifact string
	Missing  []string
	Empty    []string
	Err      error
}

func (e *AttributeResolutionError) Error() string {
	msg := fmt.Sprintf("unable to resolve attributes for %s", e.Artifact)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(": missing %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Empty) > 0 {
		msg += fmt.Sprintf(": empty value for %s", strings.Join(e.Empty, ", "))
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *AttributeResolutionError) Unwrap() error {
	return e.Err
}

// ScriptFailureError indicates an install script capability exited with a
// non-zero status.
type ScriptFailureError struct {
	Function string
	ExitCode int
	Stderr   string
}

func (e *ScriptFailureError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Function, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
