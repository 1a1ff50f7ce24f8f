package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorization.
const (
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"
	ErrCodeConfigParse    = "CONFIG_PARSE"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
)

// UserError represents a user-friendly error with an actionable suggestion.
type UserError struct {
	Code       string
	Message    string
	Context    string
	Suggestion string
	Underlying error
}

// Error returns the message and its location.
func (e *UserError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s (at %s)", e.Message, e.Context)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is matches another UserError with the same code.
func (e *UserError) Is(target error) bool {
	var t *UserError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Format returns a fully formatted error with all details.
func (e *UserError) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, "\n  Location: %s", e.Context)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	return b.String()
}

// NewConfigNotFoundError reports a missing configuration file.
func NewConfigNotFoundError(path string) *UserError {
	return &UserError{
		Code:       ErrCodeConfigNotFound,
		Message:    "configuration file not found",
		Context:    path,
		Suggestion: "pass --config with an existing artifacts.yaml or artifacts.toml, or omit it to use defaults",
	}
}

// NewParseError reports a configuration file that could not be decoded.
func NewParseError(path string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeConfigParse,
		Message:    fmt.Sprintf("failed to parse configuration: %v", err),
		Context:    path,
		Suggestion: "check the file syntax; sizes look like \"10GB\" and durations like \"500ms\"",
		Underlying: err,
	}
}

// ValidationError represents one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewInvalidError folds validation errors into one UserError.
func NewInvalidError(path string, errs []ValidationError) *UserError {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return &UserError{
		Code:    ErrCodeConfigInvalid,
		Message: "invalid configuration: " + strings.Join(msgs, "; "),
		Context: path,
	}
}
