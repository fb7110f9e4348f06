// Package launcher runs the user's application inside the managed
// environment once reconciliation has produced an interpreter.
//
// The environment is activated the way an activate script would: its bin
// directory goes first on PATH and VIRTUAL_ENV points at it.
package launcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/shlex"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/logging"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

// Environment variables naming the application entry.
const (
	EnvAppFactory = "APP_FACTORY"
	EnvAppCmd     = "APP_CMD"
)

// Usage is printed when no entry is configured.
const Usage = `Usage:
  pybootstrap run [-- <command ...>]

Environment options:
  APP_FACTORY='app:create_app'  # application factory, started with debug=True
  APP_CMD='flask run'           # command to execute
  PYTHON_VERSION='3.12' or .python-version
  BOOTSTRAP_WATCH='requirements.txt,pyproject.toml,src/**/*.py'
`

// ErrNoEntry is returned when neither arguments nor an entry variable name
// something to run.
var ErrNoEntry = stderrors.New("no command, APP_FACTORY or APP_CMD configured")

// Kind says where an Entry came from.
type Kind string

const (
	KindArgs    Kind = "args"
	KindFactory Kind = "factory"
	KindCommand Kind = "command"
)

// factoryScript imports module sys.argv[1], calls sys.argv[2] and runs the
// returned application in debug mode.
const factoryScript = `import importlib, sys
mod, func = sys.argv[1], sys.argv[2]
app = getattr(importlib.import_module(mod), func)()
print("[bootstrap] Starting app from factory %s:%s" % (mod, func), flush=True)
app.run(debug=True)
`

// Entry is the resolved program to launch. When Python is true the program
// is run by the managed interpreter.
type Entry struct {
	Kind   Kind
	Argv   []string
	Python bool
}

// Resolve picks the entry to run: explicit args first, then a
// module:function factory, then a shell-split command line.
func Resolve(args []string, factory, appCmd string) (Entry, error) {
	if len(args) > 0 {
		return Entry{Kind: KindArgs, Argv: append([]string(nil), args...)}, nil
	}

	if factory = strings.TrimSpace(factory); factory != "" {
		mod, fn, ok := strings.Cut(factory, ":")
		if !ok || mod == "" || fn == "" || strings.Contains(fn, ":") {
			return Entry{}, errors.ConfigInvalid(EnvAppFactory, "expected module:function", factory)
		}
		return Entry{Kind: KindFactory, Argv: []string{"-c", factoryScript, mod, fn}, Python: true}, nil
	}

	if appCmd = strings.TrimSpace(appCmd); appCmd != "" {
		argv, err := shlex.Split(appCmd)
		if err != nil {
			return Entry{}, errors.ConfigInvalid(EnvAppCmd, err.Error(), appCmd)
		}
		if len(argv) == 0 {
			return Entry{}, ErrNoEntry
		}
		return Entry{Kind: KindCommand, Argv: argv}, nil
	}

	return Entry{}, ErrNoEntry
}

// FromEnv resolves the entry from args and the process environment.
func FromEnv(args []string) (Entry, error) {
	return Resolve(args, os.Getenv(EnvAppFactory), os.Getenv(EnvAppCmd))
}

// Environ returns base with the environment at layout activated.
func Environ(base []string, layout venv.Layout) []string {
	out := make([]string, 0, len(base)+2)
	path := ""
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case strings.EqualFold(key, "PATH"):
			path = value
		case key == "VIRTUAL_ENV", key == "PYTHONHOME":
		default:
			out = append(out, kv)
		}
	}

	bin := layout.BinDir()
	if path == "" {
		path = bin
	} else {
		path = bin + string(os.PathListSeparator) + path
	}

	return append(out, "PATH="+path, "VIRTUAL_ENV="+layout.Dir)
}

// Launcher starts entries inside one managed environment.
type Launcher struct {
	Layout venv.Layout
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	logger logging.Logger
}

// New creates a launcher for the environment at layout, running programs
// from dir with the process's standard streams.
func New(layout venv.Layout, dir string, logger logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Launcher{
		Layout: layout,
		Dir:    dir,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger.WithComponent("launcher"),
	}
}

// Command builds the process for entry without starting it.
func (l *Launcher) Command(ctx context.Context, entry Entry) (*exec.Cmd, error) {
	if len(entry.Argv) == 0 {
		return nil, ErrNoEntry
	}

	name, args := entry.Argv[0], entry.Argv[1:]
	if entry.Python {
		name, args = l.Layout.Interpreter(), entry.Argv
	} else {
		name = l.lookPath(name)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = l.Dir
	cmd.Env = Environ(os.Environ(), l.Layout)
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	return cmd, nil
}

// Run starts entry and waits for it. A non-zero exit is returned as a
// subprocess error carrying the child's exit code.
func (l *Launcher) Run(ctx context.Context, entry Entry) error {
	cmd, err := l.Command(ctx, entry)
	if err != nil {
		return err
	}

	switch entry.Kind {
	case KindCommand:
		l.logger.Info(ctx, "executing APP_CMD: "+strings.Join(entry.Argv, " "))
	case KindFactory:
		l.logger.Info(ctx, fmt.Sprintf("starting app from factory %s:%s", entry.Argv[2], entry.Argv[3]))
	default:
		l.logger.Debug(ctx, "executing command", "argv", entry.Argv)
	}

	if err := cmd.Run(); err != nil {
		return errors.SubprocessFailed(errors.ErrCodeLaunch, cmd.Args, err)
	}
	return nil
}

// lookPath prefers executables installed in the environment, since
// exec.Command resolves names against the parent's PATH.
func (l *Launcher) lookPath(name string) string {
	if strings.ContainsAny(name, `/\`) {
		return name
	}
	candidates := []string{filepath.Join(l.Layout.BinDir(), name)}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = append(candidates, filepath.Join(l.Layout.BinDir(), name+".exe"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return name
}
