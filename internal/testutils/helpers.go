// Package testutils holds fixtures shared by package tests: temporary
// projects, a recording subprocess runner and a scripted version probe.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pybootstrap/internal/config"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

// CreateTempProject creates an empty project root for testing.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)
	return root
}

// WriteProjectFile writes content to rel below root, creating directories.
func WriteProjectFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// CreateTestConfig returns a configuration with every default applied for
// the project at root.
func CreateTestConfig(root string) *config.Config {
	return &config.Config{
		Root:              root,
		VenvDir:           config.DefaultVenvDir,
		StateFile:         config.DefaultStateFile,
		Watch:             append([]string(nil), config.DefaultWatch...),
		IgnoreFile:        config.DefaultIgnoreFile,
		Python:            "python3",
		PythonVersionEnv:  "PYBOOTSTRAP_TEST_PYTHON_VERSION",
		PythonVersionFile: config.DefaultPythonVersionFile,
		RequirementsFile:  config.DefaultRequirementsFile,
		ProjectFile:       config.DefaultProjectFile,
		WatchDebounce:     config.DefaultWatchDebounce,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// FakeRunner records commands instead of running them. A "-m venv <dir>"
// command materialises the interpreter and library directory so lifecycle
// checks behave as after a real creation.
type FakeRunner struct {
	mu       sync.Mutex
	commands []venv.Command
	failures map[string]error

	// SkipLibDir leaves out the lib directory when simulating creation.
	SkipLibDir bool
}

// NewFakeRunner creates a recording runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{failures: make(map[string]error)}
}

// FailOn makes every command whose rendered form contains match fail with err.
func (f *FakeRunner) FailOn(match string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[match] = err
}

// Run implements venv.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd venv.Command) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	var injected error
	for match, err := range f.failures {
		if strings.Contains(cmd.String(), match) {
			injected = err
			break
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if injected != nil {
		return injected
	}

	if len(cmd.Args) == 3 && cmd.Args[0] == "-m" && cmd.Args[1] == "venv" {
		return f.materialise(cmd.Args[2])
	}
	return nil
}

func (f *FakeRunner) materialise(dir string) error {
	layout := venv.Layout{Dir: dir, Windows: runtime.GOOS == "windows"}
	if err := os.MkdirAll(layout.BinDir(), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(layout.Interpreter(), []byte("#!fake\n"), 0o755); err != nil {
		return err
	}
	if f.SkipLibDir {
		return nil
	}
	return os.MkdirAll(filepath.Join(dir, "lib"), 0o755)
}

// Commands returns a copy of the recorded commands.
func (f *FakeRunner) Commands() []venv.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]venv.Command(nil), f.commands...)
}

// Calls returns how many commands ran.
func (f *FakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

// Rendered returns every recorded command as a string.
func (f *FakeRunner) Rendered() []string {
	cmds := f.Commands()
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.String())
	}
	return out
}

// Reset forgets recorded commands but keeps injected failures.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
}

// FakeProbe reports interpreter versions and records which interpreters
// were asked.
type FakeProbe struct {
	mu       sync.Mutex
	version  string
	versions map[string]string
	err      error
	asked    []string
}

// NewFakeProbe creates a probe reporting version for every interpreter.
func NewFakeProbe(version string) *FakeProbe {
	return &FakeProbe{version: version, versions: make(map[string]string)}
}

// Version implements interpreter.Probe.
func (p *FakeProbe) Version(ctx context.Context, python string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, python)
	if p.err != nil {
		return "", p.err
	}
	if v, ok := p.versions[python]; ok {
		return v, nil
	}
	return p.version, nil
}

// SetVersionFor makes the interpreter at python report version.
func (p *FakeProbe) SetVersionFor(python, version string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[python] = version
}

// Asked returns the interpreters probed so far, in order.
func (p *FakeProbe) Asked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asked...)
}

// SetVersion changes the reported version.
func (p *FakeProbe) SetVersion(version string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version = version
}

// SetError makes subsequent probes fail.
func (p *FakeProbe) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Calls returns how many probes ran.
func (p *FakeProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.asked)
}
