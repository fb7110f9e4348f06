// Package config provides configuration management for pybootstrap using
// Viper for loading from a .bootstrap.yml file, BOOTSTRAP_ prefixed
// environment variables, and command-line flags.
//
// Every value has a default that reproduces the conventional project layout:
// a .venv directory at the project root, a .env_state.json state file inside
// it, a .bootstrapignore ignore file and a .python-version pin file.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/logging"
)

// DefaultWatch is the set of manifest patterns watched when no override is
// configured.
var DefaultWatch = []string{
	"requirements.txt",
	"requirements-dev.txt",
	"pyproject.toml",
	"poetry.lock",
	"Pipfile.lock",
	"setup.cfg",
}

const (
	DefaultVenvDir           = ".venv"
	DefaultStateFile         = ".env_state.json"
	DefaultIgnoreFile        = ".bootstrapignore"
	DefaultPythonVersionEnv  = "PYTHON_VERSION"
	DefaultPythonVersionFile = ".python-version"
	DefaultRequirementsFile  = "requirements.txt"
	DefaultProjectFile       = "pyproject.toml"
	DefaultWatchDebounce     = 300 * time.Millisecond
)

// Config is the fully resolved pybootstrap configuration.
type Config struct {
	Root                string        `mapstructure:"root" yaml:"root"`
	VenvDir             string        `mapstructure:"venv_dir" yaml:"venv_dir"`
	StateFile           string        `mapstructure:"state_file" yaml:"state_file"`
	Watch               []string      `mapstructure:"watch" yaml:"watch"`
	IgnoreFile          string        `mapstructure:"ignore_file" yaml:"ignore_file"`
	Python              string        `mapstructure:"python" yaml:"python"`
	PythonVersionEnv    string        `mapstructure:"python_version_env" yaml:"python_version_env"`
	PythonVersionFile   string        `mapstructure:"python_version_file" yaml:"python_version_file"`
	RequirementsFile    string        `mapstructure:"requirements_file" yaml:"requirements_file"`
	ProjectFile         string        `mapstructure:"project_file" yaml:"project_file"`
	PipArgs             []string      `mapstructure:"pip_args" yaml:"pip_args"`
	ReinstallOnRecreate bool          `mapstructure:"reinstall_on_recreate" yaml:"reinstall_on_recreate"`
	SubprocessTimeout   time.Duration `mapstructure:"subprocess_timeout" yaml:"subprocess_timeout"`
	WatchDebounce       time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce"`
	LogLevel            string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat           string        `mapstructure:"log_format" yaml:"log_format"`
	LogFile             string        `mapstructure:"log_file" yaml:"log_file"`
}

// DefaultPython returns the host interpreter name used when none is
// configured.
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// SetDefaults registers every key with viper. Registration is required for
// BOOTSTRAP_* environment variables to reach Unmarshal.
func SetDefaults() {
	viper.SetDefault("root", ".")
	viper.SetDefault("venv_dir", DefaultVenvDir)
	viper.SetDefault("state_file", DefaultStateFile)
	viper.SetDefault("watch", []string{})
	viper.SetDefault("ignore_file", DefaultIgnoreFile)
	viper.SetDefault("python", DefaultPython())
	viper.SetDefault("python_version_env", DefaultPythonVersionEnv)
	viper.SetDefault("python_version_file", DefaultPythonVersionFile)
	viper.SetDefault("requirements_file", DefaultRequirementsFile)
	viper.SetDefault("project_file", DefaultProjectFile)
	viper.SetDefault("pip_args", []string{})
	viper.SetDefault("reinstall_on_recreate", false)
	viper.SetDefault("subprocess_timeout", time.Duration(0))
	viper.SetDefault("watch_debounce", DefaultWatchDebounce)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("log_file", "")
}

// Load builds a Config from the global viper instance, applies defaults for
// anything left empty and validates the result. The host interpreter and the
// debounce interval take their defaults from SetDefaults only, so an explicit
// empty interpreter is rejected rather than silently replaced.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "cannot decode configuration")
	}

	// Environment values arrive as one comma-separated string.
	config.Watch = splitList(viper.Get("watch"))
	config.PipArgs = splitFields(viper.Get("pip_args"))

	if config.Root == "" {
		config.Root = "."
	}
	if config.VenvDir == "" {
		config.VenvDir = DefaultVenvDir
	}
	if config.StateFile == "" {
		config.StateFile = DefaultStateFile
	}
	if len(config.Watch) == 0 {
		config.Watch = append([]string(nil), DefaultWatch...)
	}
	if config.IgnoreFile == "" {
		config.IgnoreFile = DefaultIgnoreFile
	}
	if config.PythonVersionEnv == "" {
		config.PythonVersionEnv = DefaultPythonVersionEnv
	}
	if config.PythonVersionFile == "" {
		config.PythonVersionFile = DefaultPythonVersionFile
	}
	if config.RequirementsFile == "" {
		config.RequirementsFile = DefaultRequirementsFile
	}
	if config.ProjectFile == "" {
		config.ProjectFile = DefaultProjectFile
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ProjectRoot returns the absolute project root.
func (c *Config) ProjectRoot() (string, error) {
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot resolve project root").WithPath(c.Root)
	}
	return abs, nil
}

// VenvPath returns the managed environment directory under root.
func (c *Config) VenvPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(c.VenvDir))
}

// StatePath returns the state file location for the environment under root.
func (c *Config) StatePath(root string) string {
	return filepath.Join(c.VenvPath(root), filepath.FromSlash(c.StateFile))
}

// LoggerConfig translates the logging keys into a logging.LoggerConfig.
func (c *Config) LoggerConfig() (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.ConfigInvalid("log_level", err.Error(), c.LogLevel)
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = c.LogFormat
	return lc, nil
}

func splitList(raw interface{}) []string {
	var items []string
	switch v := raw.(type) {
	case string:
		items = strings.Split(v, ",")
	case []string:
		for _, s := range v {
			items = append(items, strings.Split(s, ",")...)
		}
	case []interface{}:
		for _, s := range v {
			items = append(items, strings.Split(fmt.Sprint(s), ",")...)
		}
	}

	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func splitFields(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	}
	return nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateRelativePath("venv_dir", config.VenvDir); err != nil {
		return err
	}
	if err := validateRelativePath("state_file", config.StateFile); err != nil {
		return err
	}
	if err := validateRelativePath("ignore_file", config.IgnoreFile); err != nil {
		return err
	}

	if strings.TrimSpace(config.Python) == "" {
		return errors.ConfigInvalid("python", "host interpreter must not be empty", config.Python)
	}
	if strings.TrimSpace(config.PythonVersionEnv) == "" {
		return errors.ConfigInvalid("python_version_env", "environment variable name must not be empty", config.PythonVersionEnv)
	}

	if config.SubprocessTimeout < 0 {
		return errors.ConfigInvalid("subprocess_timeout", "must not be negative", config.SubprocessTimeout)
	}
	if config.WatchDebounce < 0 {
		return errors.ConfigInvalid("watch_debounce", "must not be negative", config.WatchDebounce)
	}

	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return errors.ConfigInvalid("log_level", err.Error(), config.LogLevel)
	}
	switch config.LogFormat {
	case "text", "json":
	default:
		return errors.ConfigInvalid("log_format", "must be text or json", config.LogFormat)
	}

	return nil
}

// validateRelativePath rejects absolute paths and paths that escape the
// project root.
func validateRelativePath(setting, path string) error {
	if path == "" {
		return errors.ConfigInvalid(setting, "empty path", path)
	}

	cleanPath := filepath.Clean(filepath.FromSlash(path))

	if filepath.IsAbs(cleanPath) || filepath.VolumeName(cleanPath) != "" {
		return errors.ConfigInvalid(setting, "should be relative path", path)
	}

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return errors.ConfigInvalid(setting, "contains path traversal", path)
	}

	if cleanPath == "." {
		return errors.ConfigInvalid(setting, "must name a location below the project root", path)
	}

	return nil
}
