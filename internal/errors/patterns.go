package errors

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Wrap wraps an error with additional context, creating a BootstrapError if
// the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *BootstrapError {
	if err == nil {
		return nil
	}

	var be *BootstrapError
	if errors.As(err, &be) {
		return &BootstrapError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       be,
			Context:     copyContext(be.Context),
			Path:        be.Path,
			Recoverable: be.Recoverable,
		}
	}

	return &BootstrapError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeState,
	}
}

// WrapIO wraps an error as an I/O error.
func WrapIO(err error, code, message string) *BootstrapError {
	e := Wrap(err, ErrorTypeIO, code, message)
	if e != nil {
		e.Recoverable = false
	}
	return e
}

// WrapConfig wraps an error as a configuration error.
func WrapConfig(err error, code, message string) *BootstrapError {
	e := Wrap(err, ErrorTypeConfig, code, message)
	if e != nil {
		e.Recoverable = false
	}
	return e
}

// FileOperationError creates a file operation error carrying the path.
func FileOperationError(operation, filePath string, cause error) *BootstrapError {
	code := fmt.Sprintf("ERR_FILE_%s", strings.ToUpper(operation))
	return WrapIO(cause, code, operation+" failed").WithPath(filePath)
}

// StateCorrupt describes an unreadable state file. It is recoverable: the
// caller falls back to an empty prior state.
func StateCorrupt(path string, cause error) *BootstrapError {
	return Wrap(cause, ErrorTypeState, ErrCodeStateCorrupt, "state file is not valid JSON").
		WithPath(path)
}

// ConfigInvalid creates a configuration error for a single setting.
func ConfigInvalid(setting, message string, value interface{}) *BootstrapError {
	return NewConfigError(
		ErrCodeConfigInvalid,
		fmt.Sprintf("invalid configuration for %s: %s", setting, message),
	).WithContext("setting", setting).WithContext("value", value)
}

// SubprocessFailed creates the fatal error returned when an external tool
// exits non-zero or cannot be started.
func SubprocessFailed(code string, argv []string, cause error) *BootstrapError {
	e := &BootstrapError{
		Type:    ErrorTypeSubprocess,
		Code:    code,
		Message: "command failed: " + strings.Join(argv, " "),
		Cause:   cause,
	}
	e.WithContext("argv", argv)

	var exitErr *exec.ExitError
	if errors.As(cause, &exitErr) {
		e.WithContext("exit_code", exitErr.ExitCode())
	}

	return e
}

// ExitCode returns the process exit code a CLI should use for err. Child
// process exit codes are propagated; everything else maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	// *exec.ExitError and CLI usage errors both report their own code.
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) && coder.ExitCode() > 0 {
		return coder.ExitCode()
	}

	var be *BootstrapError
	if errors.As(err, &be) && be.Context != nil {
		if code, ok := be.Context["exit_code"].(int); ok && code > 0 {
			return code
		}
	}

	return 1
}

func copyContext(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetErrorContext extracts context information from a BootstrapError.
func GetErrorContext(err error) map[string]interface{} {
	var be *BootstrapError
	if errors.As(err, &be) {
		context := copyContext(be.Context)
		if context == nil {
			context = make(map[string]interface{})
		}
		if be.Path != "" {
			context["path"] = be.Path
		}
		context["type"] = string(be.Type)
		context["code"] = be.Code
		context["recoverable"] = be.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}
