// Package venv owns the managed virtualenv: it creates, destroys and
// recreates it, bootstraps pip inside it and installs project dependencies.
//
// All subprocesses go through a Runner so the lifecycle can be exercised
// without a Python toolchain.
package venv

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/logging"
)

// Manifest kinds used by Install.
const (
	ManifestNone         = ""
	ManifestRequirements = "requirements"
	ManifestProject      = "project"
)

// HostFunc resolves the interpreter used to create the environment.
type HostFunc func(ctx context.Context) (string, error)

// StaticHost returns a HostFunc that always yields name.
func StaticHost(name string) HostFunc {
	return func(context.Context) (string, error) { return name, nil }
}

// Options configures a Manager.
type Options struct {
	// Root is the absolute project root.
	Root string
	// Dir is the absolute environment directory.
	Dir string
	// Host resolves the interpreter that creates the environment.
	Host HostFunc
	// Requirements and Project are manifest names relative to Root.
	Requirements string
	Project      string
	// PipArgs are appended to every dependency install.
	PipArgs []string
}

// Manager performs lifecycle operations on one environment directory.
type Manager struct {
	opts   Options
	runner Runner
	logger logging.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(opts Options, runner Runner, logger logging.Logger) *Manager {
	if opts.Host == nil {
		opts.Host = StaticHost("python3")
	}
	if opts.Requirements == "" {
		opts.Requirements = "requirements.txt"
	}
	if opts.Project == "" {
		opts.Project = "pyproject.toml"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{opts: opts, runner: runner, logger: logger.WithComponent("venv")}
}

// Dir returns the environment directory.
func (m *Manager) Dir() string { return m.opts.Dir }

// Layout probes the environment directory.
func (m *Manager) Layout() Layout { return DetectLayout(m.opts.Dir) }

// Interpreter returns the environment's interpreter path.
func (m *Manager) Interpreter() string { return m.Layout().Interpreter() }

// Exists reports whether the environment's interpreter is present.
func (m *Manager) Exists() bool { return m.Layout().HasInterpreter() }

// HasLibDir reports whether the environment has a library directory.
func (m *Manager) HasLibDir() bool { return m.Layout().HasLibDir() }

// Ensure returns the interpreter of a usable environment. With no reasons the
// existing environment is reused untouched; otherwise it is rebuilt.
func (m *Manager) Ensure(ctx context.Context, reasons []string) (string, error) {
	if len(reasons) == 0 {
		return m.Interpreter(), nil
	}
	return m.Recreate(ctx, strings.Join(reasons, ", "))
}

// Recreate removes the environment, creates a fresh one with the host
// interpreter and upgrades its packaging tools.
func (m *Manager) Recreate(ctx context.Context, reason string) (string, error) {
	if err := m.Remove(); err != nil {
		return "", err
	}

	host, err := m.opts.Host(ctx)
	if err != nil {
		return "", err
	}

	m.logger.Info(ctx, "creating venv: "+reason, "dir", m.opts.Dir, "host", host)

	create := Command{Name: host, Args: []string{"-m", "venv", m.opts.Dir}, Dir: m.opts.Root}
	if err := m.run(ctx, errors.ErrCodeVenvCreate, create); err != nil {
		return "", err
	}

	python := m.Interpreter()
	bootstrap := Command{
		Name: python,
		Args: []string{"-m", "pip", "install", "--upgrade", "pip", "wheel", "setuptools"},
		Dir:  m.opts.Root,
	}
	if err := m.run(ctx, errors.ErrCodePipBootstrap, bootstrap); err != nil {
		return "", err
	}

	return python, nil
}

// Manifest reports which manifest Install would use.
func (m *Manager) Manifest() string {
	if isFile(m.requirementsPath()) {
		return ManifestRequirements
	}
	if isFile(filepath.Join(m.opts.Root, filepath.FromSlash(m.opts.Project))) {
		return ManifestProject
	}
	return ManifestNone
}

// Install installs project dependencies with python. A requirements file
// takes precedence over an editable install of the project with its dev
// extra. It reports whether an install ran; with no manifest it logs and
// returns false.
func (m *Manager) Install(ctx context.Context, python string) (bool, error) {
	var cmd Command
	switch m.Manifest() {
	case ManifestRequirements:
		cmd = Command{Name: python, Args: []string{"-m", "pip", "install", "-r", m.requirementsPath()}, Dir: m.opts.Root}
	case ManifestProject:
		cmd = Command{Name: python, Args: []string{"-m", "pip", "install", "-e", ".[dev]"}, Dir: m.opts.Root}
	default:
		m.logger.Info(ctx, "no "+m.opts.Requirements+" or "+m.opts.Project+" found; skipping installs")
		return false, nil
	}
	cmd.Args = append(cmd.Args, m.opts.PipArgs...)

	if err := m.run(ctx, errors.ErrCodeInstall, cmd); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the environment directory. Removing a missing environment
// is not an error.
func (m *Manager) Remove() error {
	dir := filepath.Clean(m.opts.Dir)
	if dir == "" || dir == "." || dir == string(filepath.Separator) || dir == filepath.Clean(m.opts.Root) {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, "refusing to remove environment directory").
			WithPath(m.opts.Dir)
	}

	if err := os.RemoveAll(dir); err != nil {
		return errors.WrapIO(err, errors.ErrCodeVenvRemove, "cannot remove environment").WithPath(dir)
	}
	return nil
}

func (m *Manager) requirementsPath() string {
	return filepath.Join(m.opts.Root, filepath.FromSlash(m.opts.Requirements))
}

func (m *Manager) run(ctx context.Context, code string, cmd Command) error {
	m.logger.Info(ctx, "$ "+cmd.String())
	if err := m.runner.Run(ctx, cmd); err != nil {
		return errors.SubprocessFailed(code, cmd.Argv(), err)
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
