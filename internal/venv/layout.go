package venv

import (
	"os"
	"path/filepath"
	"runtime"
)

// Layout describes where a virtualenv keeps its interpreter. POSIX
// environments use bin/python, Windows environments Scripts/python.exe.
type Layout struct {
	Dir     string
	Windows bool
}

// DetectLayout probes dir for either interpreter location and falls back to
// the layout of the running platform.
func DetectLayout(dir string) Layout {
	if exists(filepath.Join(dir, "Scripts", "python.exe")) {
		return Layout{Dir: dir, Windows: true}
	}
	if exists(filepath.Join(dir, "bin", "python")) {
		return Layout{Dir: dir}
	}
	return Layout{Dir: dir, Windows: runtime.GOOS == "windows"}
}

// BinDir returns the directory holding the environment's executables.
func (l Layout) BinDir() string {
	if l.Windows {
		return filepath.Join(l.Dir, "Scripts")
	}
	return filepath.Join(l.Dir, "bin")
}

// Interpreter returns the path of the environment's Python.
func (l Layout) Interpreter() string {
	if l.Windows {
		return filepath.Join(l.BinDir(), "python.exe")
	}
	return filepath.Join(l.BinDir(), "python")
}

// HasInterpreter reports whether the interpreter file exists.
func (l Layout) HasInterpreter() bool {
	return exists(l.Interpreter())
}

// HasLibDir reports whether either lib or Lib exists in the environment.
func (l Layout) HasLibDir() bool {
	return exists(filepath.Join(l.Dir, "lib")) || exists(filepath.Join(l.Dir, "Lib"))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
