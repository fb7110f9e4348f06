// Package drift decides whether the managed environment must be rebuilt
// because the desired Python version moved.
package drift

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/pybootstrap/internal/errors"
)

// Pin sources.
const (
	SourceNone = ""
	SourceEnv  = "env"
	SourceFile = "file"
)

// Pin is the desired runtime version and where it came from.
type Pin struct {
	Version string `json:"version" yaml:"version"`
	Source  string `json:"source" yaml:"source"`
}

// Set reports whether a desired version is configured.
func (p Pin) Set() bool { return p.Version != "" }

// Desired reads the desired version: the environment variable named envVar
// when non-empty, otherwise the first line of pinFile trimmed, otherwise
// unset. A missing pin file is not an error.
func Desired(envVar, pinFile string) (Pin, error) {
	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return Pin{Version: v, Source: SourceEnv}, nil
		}
	}
	if pinFile == "" {
		return Pin{}, nil
	}

	f, err := os.Open(pinFile)
	if err != nil {
		if os.IsNotExist(err) {
			return Pin{}, nil
		}
		return Pin{}, errors.FileOperationError("read", pinFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		if v := strings.TrimSpace(scanner.Text()); v != "" {
			return Pin{Version: v, Source: SourceFile}, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Pin{}, errors.FileOperationError("read", pinFile, err)
	}
	return Pin{}, nil
}

// NeedsProbe reports whether the running version has to be known to decide
// drift. It is false on the fast path where the pin did not change.
func NeedsProbe(desired, priorDesired string) bool {
	return desired != "" && desired != priorDesired
}

// Detect applies the drift rule: with a desired version set, drift exists
// when current does not start with desired and the desired version differs
// from the one recorded last time.
func Detect(desired, priorDesired, current string) (bool, string) {
	if desired == "" {
		return false, ""
	}
	if strings.HasPrefix(current, desired) {
		return false, ""
	}
	if priorDesired == desired {
		return false, ""
	}
	return true, Reason(desired)
}

// Reason formats the recreate reason for a drifted desired version.
func Reason(desired string) string {
	return fmt.Sprintf("python version drift (desired %s)", desired)
}

// VersionFunc returns the version of the runtime the project currently runs on.
type VersionFunc func(ctx context.Context) (string, error)

// Result is the outcome of Check.
type Result struct {
	Drift   bool
	Reason  string
	Current string
	Probed  bool
}

// Check is Detect with a lazily obtained current version: current is only
// called when NeedsProbe is true.
func Check(ctx context.Context, desired, priorDesired string, current VersionFunc) (Result, error) {
	if !NeedsProbe(desired, priorDesired) {
		return Result{}, nil
	}

	version, err := current(ctx)
	if err != nil {
		return Result{}, err
	}

	drifted, reason := Detect(desired, priorDesired, version)
	return Result{Drift: drifted, Reason: reason, Current: version, Probed: true}, nil
}
