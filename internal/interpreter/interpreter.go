// Package interpreter locates the host Python used to build managed
// environments and reports its version.
package interpreter

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/conneroisu/pybootstrap/internal/errors"
)

// versionScript prints major.minor.micro of the running interpreter.
const versionScript = "import sys; print('%d.%d.%d' % sys.version_info[:3])"

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// Probe reports the version of a Python interpreter.
type Probe interface {
	Version(ctx context.Context, python string) (string, error)
}

// ExecProbe asks the interpreter itself for its version.
type ExecProbe struct {
	Timeout time.Duration
}

// Version runs python and parses the printed version.
func (p ExecProbe) Version(ctx context.Context, python string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, "-c", versionScript)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	argv := []string{python, "-c", versionScript}
	if err := cmd.Run(); err != nil {
		return "", errors.SubprocessFailed(errors.ErrCodeVersionProbe, argv, err).
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}

	return ParseVersion(stdout.String())
}

// ParseVersion extracts a major.minor.micro version from probe output.
func ParseVersion(output string) (string, error) {
	version := versionPattern.FindString(strings.TrimSpace(output))
	if version == "" {
		return "", errors.NewValidationError(errors.ErrCodeVersionProbe, "unrecognised interpreter version").
			WithContext("output", output)
	}
	return version, nil
}

// Resolver chooses the host interpreter.
type Resolver struct {
	// Configured is the interpreter name or path from configuration.
	Configured string
	// LookPath searches PATH; nil means exec.LookPath.
	LookPath func(file string) (string, error)
}

// Host returns the interpreter to build with. When desired is set and a
// python<desired> executable is on PATH, it is preferred over the
// configured interpreter.
func (r Resolver) Host(desired string) (string, error) {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if desired != "" && !strings.ContainsAny(desired, `/\ `) {
		if p, err := lookPath("python" + desired); err == nil {
			return p, nil
		}
	}

	configured := strings.TrimSpace(r.Configured)
	if configured == "" {
		return "", errors.NewConfigError(errors.ErrCodeInterpreterNotFound, "no host interpreter configured")
	}

	if strings.ContainsRune(configured, filepath.Separator) || strings.ContainsRune(configured, '/') {
		if _, err := os.Stat(configured); err != nil {
			return "", errors.WrapConfig(err, errors.ErrCodeInterpreterNotFound, "host interpreter not found").
				WithPath(configured)
		}
		return configured, nil
	}

	p, err := lookPath(configured)
	if err != nil {
		return "", errors.WrapConfig(err, errors.ErrCodeInterpreterNotFound, "host interpreter not on PATH").
			WithContext("python", configured)
	}
	return p, nil
}
