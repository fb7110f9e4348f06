// Package cmd provides the command-line interface for pybootstrap.
//
// This package implements all CLI commands using the Cobra framework. Every
// command that touches the environment goes through one reconcile.Engine
// built from the resolved configuration.
//
// # Available Commands
//
//   - run: reconcile, then run a command, APP_FACTORY or APP_CMD in the venv
//   - sync: reconcile and print the managed interpreter path
//   - status: show the reconcile plan without changing anything
//   - watch: reconcile again whenever a watched manifest changes
//   - clean: remove the managed environment
//   - doctor: diagnose the host interpreter, pin, manifests and state
//   - config: show or validate the resolved configuration
//   - version: print build information
//
// # Command Examples
//
//	// Run the test suite inside an up-to-date environment
//	pybootstrap run -- pytest -q
//
//	// Capture the interpreter for scripts
//	PY=$(pybootstrap sync)
//
//	// Inspect what the next reconcile would do
//	pybootstrap status --format json
//
// # Configuration Integration
//
// Values are resolved with clear precedence:
//
//  1. Command-line flags (--config, --root, --log-level)
//  2. BOOTSTRAP_CONFIG_FILE environment variable, naming the config file
//  3. Individual environment variables (BOOTSTRAP_WATCH, BOOTSTRAP_VENV_DIR, ...)
//  4. Configuration file (.bootstrap.yml)
//  5. Default values
//
// The desired Python version is read from PYTHON_VERSION, then from the
// .python-version file.
//
// # Output and Exit Codes
//
// Machine-readable results go to stdout; logs and the output of pip and venv
// go to stderr. A failing child process propagates its exit code, and run
// exits with status 2 when no command is configured.
package cmd
