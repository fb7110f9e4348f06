package venv_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/logging"
	"github.com/conneroisu/pybootstrap/internal/testutils"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

func newManager(t *testing.T, root string, runner venv.Runner, pipArgs ...string) (*venv.Manager, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Output: &buf})
	m := venv.NewManager(venv.Options{
		Root:    root,
		Dir:     filepath.Join(root, ".venv"),
		Host:    venv.StaticHost("/usr/bin/python3"),
		PipArgs: pipArgs,
	}, runner, logger)
	return m, &buf
}

func TestEnsureWithoutReasonsReuses(t *testing.T) {
	root := testutils.CreateTempProject(t)
	runner := testutils.NewFakeRunner()
	m, _ := newManager(t, root, runner)

	python, err := m.Ensure(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, m.Interpreter(), python)
	assert.Zero(t, runner.Calls())
}

func TestEnsureRecreates(t *testing.T) {
	root := testutils.CreateTempProject(t)
	runner := testutils.NewFakeRunner()
	m, logs := newManager(t, root, runner)

	stale := testutils.WriteProjectFile(t, root, ".venv/stale.txt", "old")

	python, err := m.Ensure(context.Background(), []string{"missing venv", "python version drift (desired 3.12)"})
	require.NoError(t, err)

	dir := filepath.Join(root, ".venv")
	assert.Equal(t, venv.DetectLayout(dir).Interpreter(), python)
	assert.NoFileExists(t, stale)
	assert.True(t, m.Exists())
	assert.True(t, m.HasLibDir())

	assert.Equal(t, []string{
		"/usr/bin/python3 -m venv " + dir,
		python + " -m pip install --upgrade pip wheel setuptools",
	}, runner.Rendered())
	assert.Contains(t, logs.String(), "creating venv: missing venv, python version drift (desired 3.12)")
}

func TestRecreateSubprocessFailure(t *testing.T) {
	root := testutils.CreateTempProject(t)
	runner := testutils.NewFakeRunner()
	boom := stderrors.New("exit status 1")
	runner.FailOn("-m venv", boom)
	m, _ := newManager(t, root, runner)

	_, err := m.Recreate(context.Background(), "missing venv")
	require.Error(t, err)
	assert.True(t, errors.IsSubprocess(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, runner.Calls(), "no further commands after a failure")
}

func TestInstall(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		pipArgs  []string
		expected func(root string) []string
		ran      bool
	}{
		{
			name:  "requirements file",
			files: []string{"requirements.txt", "pyproject.toml"},
			expected: func(root string) []string {
				return []string{"PY -m pip install -r " + filepath.Join(root, "requirements.txt")}
			},
			ran: true,
		},
		{
			name:  "project file with dev extra",
			files: []string{"pyproject.toml"},
			expected: func(string) []string {
				return []string{"PY -m pip install -e .[dev]"}
			},
			ran: true,
		},
		{
			name:    "extra pip args appended",
			files:   []string{"pyproject.toml"},
			pipArgs: []string{"--no-cache-dir"},
			expected: func(string) []string {
				return []string{"PY -m pip install -e .[dev] --no-cache-dir"}
			},
			ran: true,
		},
		{
			name:  "no manifest",
			files: nil,
			expected: func(string) []string {
				return []string{}
			},
			ran: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testutils.CreateTempProject(t)
			for _, f := range tt.files {
				testutils.WriteProjectFile(t, root, f, "")
			}
			runner := testutils.NewFakeRunner()
			m, logs := newManager(t, root, runner, tt.pipArgs...)

			ran, err := m.Install(context.Background(), "PY")
			require.NoError(t, err)
			assert.Equal(t, tt.ran, ran)
			assert.Equal(t, tt.expected(root), runner.Rendered())

			for _, c := range runner.Commands() {
				assert.Equal(t, root, c.Dir)
			}
			if !tt.ran {
				assert.Contains(t, logs.String(), "no requirements.txt or pyproject.toml found; skipping installs")
			}
		})
	}
}

func TestInstallFailureIsFatal(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "requirements.txt", "flask\n")
	runner := testutils.NewFakeRunner()
	runner.FailOn("install -r", stderrors.New("exit status 2"))
	m, _ := newManager(t, root, runner)

	ran, err := m.Install(context.Background(), "PY")
	require.Error(t, err)
	assert.False(t, ran)

	var be *errors.BootstrapError
	require.True(t, stderrors.As(err, &be))
	assert.Equal(t, errors.ErrCodeInstall, be.Code)
}

func TestManifest(t *testing.T) {
	root := testutils.CreateTempProject(t)
	m, _ := newManager(t, root, testutils.NewFakeRunner())

	assert.Equal(t, venv.ManifestNone, m.Manifest())
	testutils.WriteProjectFile(t, root, "pyproject.toml", "")
	assert.Equal(t, venv.ManifestProject, m.Manifest())
	testutils.WriteProjectFile(t, root, "requirements.txt", "")
	assert.Equal(t, venv.ManifestRequirements, m.Manifest())
}

func TestRemove(t *testing.T) {
	root := testutils.CreateTempProject(t)
	m, _ := newManager(t, root, testutils.NewFakeRunner())

	require.NoError(t, m.Remove(), "removing a missing environment succeeds")

	testutils.WriteProjectFile(t, root, ".venv/bin/python", "")
	require.NoError(t, m.Remove())
	_, err := os.Stat(m.Dir())
	assert.True(t, os.IsNotExist(err))

	unsafe := venv.NewManager(venv.Options{Root: root, Dir: root}, testutils.NewFakeRunner(), nil)
	assert.Error(t, unsafe.Remove())
}

func TestDetectLayout(t *testing.T) {
	root := testutils.CreateTempProject(t)

	posix := filepath.Join(root, "posix")
	testutils.WriteProjectFile(t, root, "posix/bin/python", "")
	layout := venv.DetectLayout(posix)
	assert.False(t, layout.Windows)
	assert.Equal(t, filepath.Join(posix, "bin", "python"), layout.Interpreter())

	win := filepath.Join(root, "win")
	testutils.WriteProjectFile(t, root, "win/Scripts/python.exe", "")
	testutils.WriteProjectFile(t, root, "win/Lib/site.py", "")
	layout = venv.DetectLayout(win)
	assert.True(t, layout.Windows)
	assert.Equal(t, filepath.Join(win, "Scripts"), layout.BinDir())
	assert.True(t, layout.HasLibDir())

	empty := venv.DetectLayout(filepath.Join(root, "none"))
	assert.Equal(t, runtime.GOOS == "windows", empty.Windows)
	assert.False(t, empty.HasInterpreter())
	assert.False(t, empty.HasLibDir())
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	var stdout, stderr bytes.Buffer
	runner := venv.NewExecRunner(&stdout, &stderr, 0)

	err := runner.Run(context.Background(), venv.Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())

	err = runner.Run(context.Background(), venv.Command{Name: "sh", Args: []string{"-c", "exit 5"}})
	require.Error(t, err)
	assert.Equal(t, 5, errors.ExitCode(err))
}
