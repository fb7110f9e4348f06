// Package state persists what the last successful reconciliation decided,
// so the next invocation can tell whether anything changed.
//
// The state file lives inside the managed environment and is rewritten in
// full after every reconciliation. A missing or unreadable file is never an
// error: it simply means there is no prior state.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/conneroisu/pybootstrap/internal/errors"
	"github.com/conneroisu/pybootstrap/internal/logging"
)

// State is the persisted record of the last reconciliation.
type State struct {
	Hash            string   `json:"hash" yaml:"hash"`
	Python          string   `json:"python" yaml:"python"`
	DesiredPython   *string  `json:"desired_python" yaml:"desired_python"`
	VenvInterpreter string   `json:"venv_interpreter" yaml:"venv_interpreter"`
	Watched         []string `json:"watched" yaml:"watched"`
}

// IsZero reports whether s carries no information, which is how an absent,
// empty or corrupt state file is represented.
func (s State) IsZero() bool {
	return s.Hash == "" &&
		s.Python == "" &&
		s.DesiredPython == nil &&
		s.VenvInterpreter == "" &&
		len(s.Watched) == 0
}

// Desired returns the recorded desired version, or "" when none was set.
func (s State) Desired() string {
	if s.DesiredPython == nil {
		return ""
	}
	return *s.DesiredPython
}

// DesiredPtr converts a desired version into its persisted form, where an
// unset version is stored as null.
func DesiredPtr(desired string) *string {
	if desired == "" {
		return nil
	}
	return &desired
}

// LoadStatus describes how a Load call found the state file.
type LoadStatus int

const (
	LoadOK LoadStatus = iota
	LoadMissing
	LoadCorrupt
)

func (s LoadStatus) String() string {
	switch s {
	case LoadOK:
		return "ok"
	case LoadMissing:
		return "missing"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Store reads and writes State at a fixed path. It performs no locking;
// concurrent reconciliations of one project are unsupported.
type Store struct {
	path   string
	logger logging.Logger
}

// NewStore creates a store for the state file at path.
func NewStore(path string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{path: path, logger: logger.WithComponent("state")}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted state. Absent and malformed files both yield the
// zero State; a malformed file is logged as a warning.
func (s *Store) Load(ctx context.Context) (State, LoadStatus) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, LoadMissing
		}
		s.logger.Warn(ctx, err, "cannot read state file, treating as empty", "path", s.path)
		return State{}, LoadCorrupt
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn(ctx, errors.StateCorrupt(s.path, err), "ignoring corrupt state file")
		return State{}, LoadCorrupt
	}

	return st, LoadOK
}

// Save replaces the state file with st. The write goes to a temporary file in
// the same directory which is then renamed over the old one.
func (s *Store) Save(st State) error {
	if st.Watched == nil {
		st.Watched = []string{}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeStateWrite, "cannot encode state", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeStateWrite, "cannot create state directory").WithPath(s.path)
	}

	if err := atomicWrite(s.path, data); err != nil {
		return errors.WrapIO(err, errors.ErrCodeStateWrite, "cannot write state file").WithPath(s.path)
	}
	return nil
}

// Remove deletes the state file if it exists.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.FileOperationError("remove", s.path, err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".env_state-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
