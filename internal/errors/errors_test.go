package errors

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapErrorError(t *testing.T) {
	testCases := []struct {
		name     string
		err      *BootstrapError
		expected string
	}{
		{
			name:     "message only",
			err:      &BootstrapError{Message: "boom"},
			expected: "boom",
		},
		{
			name:     "code and message",
			err:      &BootstrapError{Code: ErrCodeInstall, Message: "install failed"},
			expected: "[ERR_INSTALL] install failed",
		},
		{
			name: "with path and cause",
			err: &BootstrapError{
				Code:    ErrCodeStateWrite,
				Message: "write failed",
				Path:    ".venv/.env_state.json",
				Cause:   fmt.Errorf("disk full"),
			},
			expected: "[ERR_STATE_WRITE] .venv/.env_state.json: write failed: disk full",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestBootstrapErrorIs(t *testing.T) {
	err := Wrap(fmt.Errorf("io"), ErrorTypeIO, ErrCodeVenvRemove, "remove failed")

	assert.True(t, errors.Is(err, &BootstrapError{Type: ErrorTypeIO, Code: ErrCodeVenvRemove}))
	assert.False(t, errors.Is(err, &BootstrapError{Type: ErrorTypeIO, Code: ErrCodeVenvCreate}))
	assert.False(t, errors.Is(err, fmt.Errorf("io")))
}

func TestWrap(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeIO, "X", "y"))
		assert.Nil(t, WrapIO(nil, "X", "y"))
	})

	t.Run("plain error", func(t *testing.T) {
		cause := fmt.Errorf("permission denied")
		err := WrapIO(cause, ErrCodeStateWrite, "cannot persist state")

		require.NotNil(t, err)
		assert.Equal(t, ErrorTypeIO, err.Type)
		assert.False(t, err.Recoverable)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("nested bootstrap error keeps context without aliasing", func(t *testing.T) {
		inner := NewValidationError(ErrCodeInvalidPath, "bad path").WithContext("path", "../x")
		outer := Wrap(inner, ErrorTypeConfig, ErrCodeConfigInvalid, "config rejected")
		outer.WithContext("extra", 1)

		assert.Equal(t, "../x", outer.Context["path"])
		assert.NotContains(t, inner.Context, "extra")
		assert.True(t, IsType(outer, ErrorTypeValidation))
		assert.True(t, IsConfig(outer))
	})
}

func TestStateCorruptIsRecoverable(t *testing.T) {
	err := StateCorrupt("/p/.venv/.env_state.json", fmt.Errorf("unexpected EOF"))

	assert.True(t, IsRecoverable(err))
	assert.Equal(t, ErrorTypeState, err.Type)
	assert.Equal(t, "/p/.venv/.env_state.json", err.Path)
}

func TestConfigInvalid(t *testing.T) {
	err := ConfigInvalid("venv_dir", "must be relative", "/abs")

	assert.True(t, IsConfig(err))
	assert.Equal(t, "venv_dir", err.Context["setting"])
	assert.Equal(t, "/abs", err.Context["value"])
	assert.Contains(t, err.Error(), "invalid configuration for venv_dir")
}

func TestSubprocessFailed(t *testing.T) {
	argv := []string{"python3", "-m", "venv", ".venv"}
	err := SubprocessFailed(ErrCodeVenvCreate, argv, fmt.Errorf("exec: not found"))

	assert.True(t, IsSubprocess(err))
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, argv, err.Context["argv"])
	assert.Contains(t, err.Error(), "python3 -m venv .venv")
	assert.Equal(t, 1, ExitCode(err))

	wrapped := fmt.Errorf("reconcile: %w", err)
	assert.True(t, IsSubprocess(wrapped))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("generic")))

	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	runErr := exec.Command("sh", "-c", "exit 3").Run()
	require.Error(t, runErr)

	err := SubprocessFailed(ErrCodeInstall, []string{"pip", "install"}, runErr)
	assert.Equal(t, 3, err.Context["exit_code"])
	assert.Equal(t, 3, ExitCode(err))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("outer: %w", err)))
}

func TestGetErrorContext(t *testing.T) {
	err := FileOperationError("read", "requirements.txt", fmt.Errorf("eof"))
	ctx := GetErrorContext(err)

	assert.Equal(t, "ERR_FILE_READ", ctx["code"])
	assert.Equal(t, "requirements.txt", ctx["path"])
	assert.Equal(t, "io", ctx["type"])

	plain := GetErrorContext(fmt.Errorf("plain"))
	assert.Equal(t, "unknown", plain["type"])
}
