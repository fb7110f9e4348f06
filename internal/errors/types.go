// Package errors defines the structured error taxonomy used across pybootstrap.
//
// Errors fall into a small number of categories that decide how the CLI
// reacts: configuration and state problems are usually recoverable and only
// logged, while subprocess failures abort the reconciliation and surface the
// child's exit code to the caller.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeState      ErrorType = "state"
	ErrorTypeSubprocess ErrorType = "subprocess"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidPath         = "ERR_INVALID_PATH"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeInterpreterNotFound = "ERR_INTERPRETER_NOT_FOUND"
	ErrCodeVersionProbe        = "ERR_VERSION_PROBE"
	ErrCodeResolve             = "ERR_RESOLVE_WATCHSET"
	ErrCodeFingerprint         = "ERR_FINGERPRINT"
	ErrCodeStateCorrupt        = "ERR_STATE_CORRUPT"
	ErrCodeStateWrite          = "ERR_STATE_WRITE"
	ErrCodeVenvRemove          = "ERR_VENV_REMOVE"
	ErrCodeVenvCreate          = "ERR_VENV_CREATE"
	ErrCodePipBootstrap        = "ERR_PIP_BOOTSTRAP"
	ErrCodeInstall             = "ERR_INSTALL"
	ErrCodeLaunch              = "ERR_LAUNCH"
	ErrCodeInternalError       = "ERR_INTERNAL"
)

// BootstrapError is a structured error type with context.
type BootstrapError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *BootstrapError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Path != "" {
		parts = append(parts, e.Path+":")
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BootstrapError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a BootstrapError of the same type and code.
func (e *BootstrapError) Is(target error) bool {
	var t *BootstrapError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *BootstrapError) WithContext(key string, value interface{}) *BootstrapError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the filesystem path the error relates to.
func (e *BootstrapError) WithPath(path string) *BootstrapError {
	e.Path = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *BootstrapError {
	return &BootstrapError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *BootstrapError {
	return &BootstrapError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *BootstrapError {
	return &BootstrapError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var be *BootstrapError
	if errors.As(err, &be) {
		return be.Recoverable
	}

	return false
}

// IsType checks whether err carries the given error type anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var be *BootstrapError
		if !errors.As(err, &be) {
			return false
		}
		if be.Type == t {
			return true
		}
		err = be.Cause
	}

	return false
}

// IsSubprocess checks if an error was caused by a failing child process.
func IsSubprocess(err error) bool {
	return IsType(err, ErrorTypeSubprocess)
}

// IsConfig checks if an error is configuration-related.
func IsConfig(err error) bool {
	return IsType(err, ErrorTypeConfig)
}
