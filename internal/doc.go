// Package internal contains the core implementation packages for pybootstrap.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - resolver: Watch-set discovery from glob patterns and the ignore file
//   - fingerprint: Content hashing of the watch set
//   - state: Persisted record of the last successful reconcile
//   - drift: Desired Python version and drift detection
//   - interpreter: Host interpreter selection and version probing
//   - venv: Virtual environment lifecycle and dependency installation
//   - reconcile: Planning and running one reconciliation
//   - launcher: Application entry resolution and launch inside the venv
//   - watcher: File system monitoring with debouncing
//   - config: Configuration management with validation
//   - errors: Typed errors and exit codes
//   - logging: Structured logging on log/slog
//
// # Flow
//
// A reconcile resolves the watch set, fingerprints it and compares the result
// with the recorded state. The environment is recreated when it is missing or
// the desired Python version drifted, dependencies are reinstalled when the
// fingerprint changed, and the new state is written only after every step
// succeeded.
package internal
