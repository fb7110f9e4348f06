// Package reconcile decides, on every invocation, whether the managed Python
// environment is stale and brings it up to date.
//
// A reconciliation walks a fixed sequence: resolve the watched files,
// fingerprint them, load the prior state, decide whether to recreate the
// environment, decide whether to install dependencies, and persist the new
// state. The engine returns the interpreter path of the managed environment;
// switching to it is the caller's job.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/pybootstrap/internal/drift"
	"github.com/conneroisu/pybootstrap/internal/fingerprint"
	"github.com/conneroisu/pybootstrap/internal/interpreter"
	"github.com/conneroisu/pybootstrap/internal/logging"
	"github.com/conneroisu/pybootstrap/internal/resolver"
	"github.com/conneroisu/pybootstrap/internal/state"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

// Action summarises what a reconciliation did to the environment.
type Action string

const (
	// ActionReuse means the environment was reused and nothing was installed.
	ActionReuse Action = "reuse"
	// ActionReinstall means the environment was reused and dependencies were
	// installed.
	ActionReinstall Action = "reinstall"
	// ActionRecreate means the environment was rebuilt.
	ActionRecreate Action = "recreate"
	// ActionSkip means an install was due but no manifest exists.
	ActionSkip Action = "skip"
)

// Reasons an install is triggered.
const (
	InstallNoPriorState  = "no prior state"
	InstallHashChanged   = "dependency fingerprint changed"
	InstallLibDirMissing = "library directory missing"
	InstallAfterRecreate = "environment recreated"
	RecreateMissingVenv  = "missing venv"
)

// Where the current Python version of a plan came from.
const (
	// CurrentFromState is the version recorded when the existing environment
	// was built.
	CurrentFromState = "state"
	// CurrentFromEnvironment is the version reported by the existing
	// environment's interpreter.
	CurrentFromEnvironment = "environment"
	// CurrentFromHost is the version of the host interpreter a recreate
	// would build with.
	CurrentFromHost = "host"
)

// Engine reconciles one project's managed environment.
type Engine struct {
	opts     Options
	probe    interpreter.Probe
	resolver interpreter.Resolver
	store    *state.Store
	manager  *venv.Manager
	logger   logging.Logger
	newRunID func() string
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLookPath replaces the PATH lookup used to find host interpreters.
func WithLookPath(lookPath func(string) (string, error)) EngineOption {
	return func(e *Engine) { e.resolver.LookPath = lookPath }
}

// WithRunID replaces the run identifier generator.
func WithRunID(fn func() string) EngineOption {
	return func(e *Engine) { e.newRunID = fn }
}

// New creates an engine. runner executes lifecycle subprocesses and probe
// reports host interpreter versions.
func New(opts Options, runner venv.Runner, probe interpreter.Probe, logger logging.Logger, options ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if probe == nil {
		probe = interpreter.ExecProbe{}
	}

	e := &Engine{
		opts:     opts,
		probe:    probe,
		resolver: interpreter.Resolver{Configured: opts.HostPython},
		store:    state.NewStore(opts.StatePath, logger),
		logger:   logger.WithComponent("reconcile"),
		newRunID: uuid.NewString,
	}
	for _, o := range options {
		o(e)
	}

	e.manager = venv.NewManager(venv.Options{
		Root:         opts.Root,
		Dir:          opts.VenvDir,
		Host:         e.host,
		Requirements: opts.Requirements,
		Project:      opts.Project,
		PipArgs:      opts.PipArgs,
	}, runner, logger)

	return e
}

// Store returns the engine's state store.
func (e *Engine) Store() *state.Store { return e.store }

// Manager returns the engine's lifecycle manager.
func (e *Engine) Manager() *venv.Manager { return e.manager }

// Options returns the options the engine was built with.
func (e *Engine) Options() Options { return e.opts }

// host resolves the interpreter that builds the environment, honouring the
// desired version when a matching pythonX.Y is on PATH.
func (e *Engine) host(ctx context.Context) (string, error) {
	pin, err := drift.Desired(e.opts.PythonVersionEnv, e.opts.PythonVersionFile)
	if err != nil {
		return "", err
	}
	return e.resolver.Host(pin.Version)
}

// HostInterpreter returns the interpreter a recreate would build with.
func (e *Engine) HostInterpreter(ctx context.Context) (string, error) {
	return e.host(ctx)
}

func (e *Engine) hostVersion(ctx context.Context) (string, error) {
	python, err := e.host(ctx)
	if err != nil {
		return "", err
	}
	return e.probe.Version(ctx, python)
}

// currentVersion returns the version of the runtime the project currently
// runs on. An existing environment answers for itself, from the recorded
// state or by asking its interpreter. The host interpreter is probed only
// when there is no environment.
func (e *Engine) currentVersion(ctx context.Context, prior state.State, p *Plan) (string, error) {
	switch {
	case e.manager.Exists() && prior.Python != "":
		p.CurrentFrom = CurrentFromState
		return prior.Python, nil
	case e.manager.Exists():
		p.CurrentFrom = CurrentFromEnvironment
		return e.probe.Version(ctx, e.manager.Interpreter())
	default:
		p.CurrentFrom = CurrentFromHost
		return e.hostVersion(ctx)
	}
}

// Plan is the set of decisions a reconciliation would take right now.
type Plan struct {
	Watched     []string    `json:"watched" yaml:"watched"`
	Fingerprint string      `json:"fingerprint" yaml:"fingerprint"`
	Prior       state.State `json:"prior" yaml:"prior"`
	PriorStatus string      `json:"prior_status" yaml:"prior_status"`
	Desired     drift.Pin   `json:"desired" yaml:"desired"`
	Current     string      `json:"current_python,omitempty" yaml:"current_python,omitempty"`
	CurrentFrom string      `json:"current_from,omitempty" yaml:"current_from,omitempty"`
	Probed      bool        `json:"probed" yaml:"probed"`
	Recreate    bool        `json:"recreate" yaml:"recreate"`
	Reasons     []string    `json:"recreate_reasons" yaml:"recreate_reasons"`
	Install     bool        `json:"install" yaml:"install"`
	InstallWhy  []string    `json:"install_reasons" yaml:"install_reasons"`
	Manifest    string      `json:"manifest" yaml:"manifest"`
	Interpreter string      `json:"interpreter" yaml:"interpreter"`
	Action      Action      `json:"action" yaml:"action"`
}

// Result describes a completed reconciliation.
type Result struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Interpreter string        `json:"interpreter" yaml:"interpreter"`
	Action      Action        `json:"action" yaml:"action"`
	Recreated   bool          `json:"recreated" yaml:"recreated"`
	Installed   bool          `json:"installed" yaml:"installed"`
	Reasons     []string      `json:"reasons" yaml:"reasons"`
	Fingerprint string        `json:"fingerprint" yaml:"fingerprint"`
	Watched     []string      `json:"watched" yaml:"watched"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Plan computes the decisions of a reconciliation without changing
// anything on disk. A Python version is looked up only when the desired
// version changed since the last run.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	ws, err := resolver.Build(e.opts.Root, resolver.Options{
		Patterns:     e.opts.Watch,
		IgnoreFile:   e.opts.IgnoreFile,
		Requirements: e.opts.Requirements,
		SkipDirs:     []string{e.opts.VenvDir},
	})
	if err != nil {
		return nil, err
	}

	hash, err := fingerprint.WatchSet(ws)
	if err != nil {
		return nil, err
	}

	prior, status := e.store.Load(ctx)

	pin, err := drift.Desired(e.opts.PythonVersionEnv, e.opts.PythonVersionFile)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Watched:     ws.Rel(),
		Fingerprint: hash,
		Prior:       prior,
		PriorStatus: status.String(),
		Desired:     pin,
		Manifest:    e.manager.Manifest(),
	}

	if !e.manager.Exists() {
		p.Reasons = append(p.Reasons, RecreateMissingVenv)
	}

	check, err := drift.Check(ctx, pin.Version, prior.Desired(), func(ctx context.Context) (string, error) {
		return e.currentVersion(ctx, prior, p)
	})
	if err != nil {
		return nil, err
	}
	p.Probed = check.Probed
	p.Current = check.Current
	if check.Drift {
		p.Reasons = append(p.Reasons, check.Reason)
	}
	p.Recreate = len(p.Reasons) > 0

	if prior.IsZero() {
		p.InstallWhy = append(p.InstallWhy, InstallNoPriorState)
	} else if prior.Hash != hash {
		p.InstallWhy = append(p.InstallWhy, InstallHashChanged)
	}
	if !p.Recreate && !e.manager.HasLibDir() {
		p.InstallWhy = append(p.InstallWhy, InstallLibDirMissing)
	}
	if p.Recreate && e.opts.ReinstallOnRecreate {
		p.InstallWhy = append(p.InstallWhy, InstallAfterRecreate)
	}
	p.Install = len(p.InstallWhy) > 0

	p.Interpreter = e.manager.Interpreter()
	switch {
	case p.Recreate:
		p.Action = ActionRecreate
	case p.Install && p.Manifest == venv.ManifestNone:
		p.Action = ActionSkip
	case p.Install:
		p.Action = ActionReinstall
	default:
		p.Action = ActionReuse
	}

	return p, nil
}

// Reconcile brings the managed environment up to date and returns its
// interpreter. Any subprocess failure aborts immediately without rollback
// and without persisting state.
func (e *Engine) Reconcile(ctx context.Context) (*Result, error) {
	runID := e.newRunID()
	logger := e.logger.With("run_id", runID)
	op := logging.StartOperation(logger, "reconcile")
	started := time.Now()

	result, err := e.reconcile(ctx, logger)
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}
	op.End(ctx)

	result.RunID = runID
	result.Duration = time.Since(started)
	return result, nil
}

func (e *Engine) reconcile(ctx context.Context, logger logging.Logger) (*Result, error) {
	plan, err := e.Plan(ctx)
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "plan computed",
		"watched", len(plan.Watched),
		"fingerprint", plan.Fingerprint,
		"prior_state", plan.PriorStatus,
		"desired_python", plan.Desired.Version,
		"recreate", plan.Recreate,
		"install", plan.Install,
	)

	// Record the version of the runtime the environment is built with.
	python := plan.Prior.Python
	switch {
	case plan.Recreate && plan.CurrentFrom == CurrentFromHost:
		python = plan.Current
	case plan.Recreate:
		if python, err = e.hostVersion(ctx); err != nil {
			return nil, err
		}
	case plan.CurrentFrom == CurrentFromEnvironment:
		python = plan.Current
	}

	interp, err := e.manager.Ensure(ctx, plan.Reasons)
	if err != nil {
		return nil, err
	}

	install, why := plan.Install, plan.InstallWhy
	if plan.Recreate && !e.manager.HasLibDir() {
		install = true
		why = append(why, InstallLibDirMissing)
	}

	installed := false
	if install {
		logger.Info(ctx, "installing dependencies", "reasons", strings.Join(why, ", "))
		if installed, err = e.manager.Install(ctx, interp); err != nil {
			return nil, err
		}
	}

	next := state.State{
		Hash:            plan.Fingerprint,
		Python:          python,
		DesiredPython:   state.DesiredPtr(plan.Desired.Version),
		VenvInterpreter: interp,
		Watched:         plan.Watched,
	}
	if err := e.store.Save(next); err != nil {
		return nil, err
	}

	action := ActionReuse
	switch {
	case plan.Recreate:
		action = ActionRecreate
	case installed:
		action = ActionReinstall
	case install:
		action = ActionSkip
	}

	logger.Info(ctx, "environment ready", "action", string(action), "interpreter", interp)

	return &Result{
		Interpreter: interp,
		Action:      action,
		Recreated:   plan.Recreate,
		Installed:   installed,
		Reasons:     plan.Reasons,
		Fingerprint: plan.Fingerprint,
		Watched:     plan.Watched,
	}, nil
}
