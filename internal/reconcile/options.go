package reconcile

import (
	"path/filepath"

	"github.com/conneroisu/pybootstrap/internal/config"
)

// Options are the explicit inputs of one engine. Paths are absolute.
type Options struct {
	Root      string
	VenvDir   string
	StatePath string

	Watch        []string
	IgnoreFile   string
	Requirements string
	Project      string

	PythonVersionEnv  string
	PythonVersionFile string
	HostPython        string

	PipArgs             []string
	ReinstallOnRecreate bool
}

// OptionsFromConfig resolves cfg into engine options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	root, err := cfg.ProjectRoot()
	if err != nil {
		return Options{}, err
	}

	pinFile := filepath.FromSlash(cfg.PythonVersionFile)
	if !filepath.IsAbs(pinFile) {
		pinFile = filepath.Join(root, pinFile)
	}

	return Options{
		Root:                root,
		VenvDir:             cfg.VenvPath(root),
		StatePath:           cfg.StatePath(root),
		Watch:               append([]string(nil), cfg.Watch...),
		IgnoreFile:          cfg.IgnoreFile,
		Requirements:        cfg.RequirementsFile,
		Project:             cfg.ProjectFile,
		PythonVersionEnv:    cfg.PythonVersionEnv,
		PythonVersionFile:   pinFile,
		HostPython:          cfg.Python,
		PipArgs:             append([]string(nil), cfg.PipArgs...),
		ReinstallOnRecreate: cfg.ReinstallOnRecreate,
	}, nil
}
