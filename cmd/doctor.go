package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pybootstrap/internal/drift"
	"github.com/conneroisu/pybootstrap/internal/interpreter"
	"github.com/conneroisu/pybootstrap/internal/reconcile"
	"github.com/conneroisu/pybootstrap/internal/state"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the project's environment setup",
	Long: `Check everything reconciliation depends on without changing anything:

- the host interpreter and its version
- the desired Python pin
- which dependency manifest will be installed
- whether pyproject.toml defines the dev extra used for editable installs
- the managed environment and its state file

Examples:
  pybootstrap doctor
  pybootstrap doctor --format json`,
	RunE: runDoctor,
}

var doctorFormat string

// Check statuses.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
	StatusInfo    = "info"
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name       string `json:"name" yaml:"name"`
	Status     string `json:"status" yaml:"status"`
	Message    string `json:"message" yaml:"message"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
	Root      string             `json:"root" yaml:"root"`
	Platform  string             `json:"platform" yaml:"platform"`
	Results   []DiagnosticResult `json:"results" yaml:"results"`
	Summary   ReportSummary      `json:"summary" yaml:"summary"`
}

// ReportSummary provides an overview of diagnostic results
type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	OK       int `json:"ok" yaml:"ok"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Errors   int `json:"errors" yaml:"errors"`
	Info     int `json:"info" yaml:"info"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().StringVarP(&doctorFormat, "format", "f", "table", "Output format (table|json|yaml)")
	AddFlagValidation(doctorCmd, "format", func(format string) error {
		return ValidateFormat(format, []string{"table", "json", "yaml"})
	})
}

func runDoctor(cmd *cobra.Command, args []string) error {
	_, engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	report := diagnose(cmd.Context(), engine, interpreter.ExecProbe{Timeout: 10 * time.Second})

	out := cmd.OutOrStdout()
	switch doctorFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		err = encoder.Encode(report)
		if cerr := encoder.Close(); err == nil {
			err = cerr
		}
	case "table":
		writeDoctorTable(out, report)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", doctorFormat)
	}
	if err != nil {
		return err
	}

	if report.Summary.Errors > 0 {
		return fmt.Errorf("%d check(s) failed", report.Summary.Errors)
	}
	return nil
}

// diagnose runs every check against engine's project.
func diagnose(ctx context.Context, engine *reconcile.Engine, probe interpreter.Probe) *DoctorReport {
	opts := engine.Options()
	report := &DoctorReport{
		Timestamp: time.Now(),
		Root:      opts.Root,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	pin, pinErr := drift.Desired(opts.PythonVersionEnv, opts.PythonVersionFile)

	checks := []func() DiagnosticResult{
		func() DiagnosticResult { return checkHostInterpreter(ctx, engine, pin, probe) },
		func() DiagnosticResult { return checkPin(pin, pinErr) },
		func() DiagnosticResult { return checkManifest(engine) },
		func() DiagnosticResult { return checkDevExtra(opts) },
		func() DiagnosticResult { return checkEnvironment(engine) },
		func() DiagnosticResult { return checkState(ctx, engine) },
	}
	for _, check := range checks {
		result := check()
		report.Results = append(report.Results, result)
		report.Summary.Total++
		switch result.Status {
		case StatusOK:
			report.Summary.OK++
		case StatusWarning:
			report.Summary.Warnings++
		case StatusError:
			report.Summary.Errors++
		case StatusInfo:
			report.Summary.Info++
		}
	}
	return report
}

func checkHostInterpreter(ctx context.Context, engine *reconcile.Engine, pin drift.Pin, probe interpreter.Probe) DiagnosticResult {
	r := DiagnosticResult{Name: "host interpreter"}

	host, err := engine.HostInterpreter(ctx)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.Suggestion = "install Python or set BOOTSTRAP_PYTHON to an interpreter path"
		return r
	}

	v, err := probe.Version(ctx, host)
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("%s: %v", host, err)
		return r
	}

	r.Status = StatusOK
	r.Message = fmt.Sprintf("%s (%s)", host, v)
	if pin.Set() {
		if drifted, _ := drift.Detect(pin.Version, "", v); drifted {
			r.Status = StatusWarning
			r.Suggestion = fmt.Sprintf("install python%s so it is picked up as host", pin.Version)
		}
	}
	return r
}

func checkPin(pin drift.Pin, err error) DiagnosticResult {
	r := DiagnosticResult{Name: "python pin"}
	switch {
	case err != nil:
		r.Status = StatusError
		r.Message = err.Error()
	case !pin.Set():
		r.Status = StatusInfo
		r.Message = "no desired version; drift detection disabled"
		r.Suggestion = "add a .python-version file or set PYTHON_VERSION"
	default:
		r.Status = StatusOK
		r.Message = fmt.Sprintf("%s from %s", pin.Version, pin.Source)
	}
	return r
}

func checkManifest(engine *reconcile.Engine) DiagnosticResult {
	opts := engine.Options()
	r := DiagnosticResult{Name: "manifest"}
	switch engine.Manager().Manifest() {
	case venv.ManifestRequirements:
		r.Status = StatusOK
		r.Message = "installing from " + opts.Requirements
	case venv.ManifestProject:
		r.Status = StatusOK
		r.Message = "editable install of " + opts.Project + " with the dev extra"
	default:
		r.Status = StatusWarning
		r.Message = "no " + opts.Requirements + " or " + opts.Project + " found; installs will be skipped"
	}
	return r
}

// pyproject is the subset of pyproject.toml doctor inspects.
type pyproject struct {
	Project struct {
		Name                 string              `toml:"name"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

func checkDevExtra(opts reconcile.Options) DiagnosticResult {
	r := DiagnosticResult{Name: "dev extra"}
	path := filepath.Join(opts.Root, filepath.FromSlash(opts.Project))

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.Status = StatusInfo
		r.Message = opts.Project + " not present"
		return r
	}
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}

	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("cannot parse %s: %v", opts.Project, err)
		return r
	}

	if _, ok := doc.Project.OptionalDependencies["dev"]; !ok {
		r.Status = StatusWarning
		r.Message = "[project.optional-dependencies] has no dev extra"
		r.Suggestion = "pip install -e .[dev] will install the project without development tools"
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("dev extra lists %d package(s)", len(doc.Project.OptionalDependencies["dev"]))
	return r
}

func checkEnvironment(engine *reconcile.Engine) DiagnosticResult {
	m := engine.Manager()
	r := DiagnosticResult{Name: "environment"}
	switch {
	case !m.Exists():
		r.Status = StatusInfo
		r.Message = m.Dir() + " missing; the next reconcile creates it"
	case !m.HasLibDir():
		r.Status = StatusWarning
		r.Message = "library directory missing; the next reconcile reinstalls"
	default:
		r.Status = StatusOK
		r.Message = m.Interpreter()
	}
	return r
}

func checkState(ctx context.Context, engine *reconcile.Engine) DiagnosticResult {
	r := DiagnosticResult{Name: "state file"}
	st, status := engine.Store().Load(ctx)
	switch status {
	case state.LoadOK:
		r.Status = StatusOK
		r.Message = fmt.Sprintf("%d watched file(s) recorded", len(st.Watched))
	case state.LoadMissing:
		r.Status = StatusInfo
		r.Message = "no state recorded yet"
	default:
		r.Status = StatusWarning
		r.Message = engine.Store().Path() + " is unreadable and will be treated as empty"
	}
	return r
}

func writeDoctorTable(out io.Writer, report *DoctorReport) {
	symbols := map[string]string{
		StatusOK:      "✅",
		StatusWarning: "⚠️ ",
		StatusError:   "❌",
		StatusInfo:    "ℹ️ ",
	}

	fmt.Fprintf(out, "🔍 pybootstrap doctor: %s\n\n", report.Root)
	for _, r := range report.Results {
		fmt.Fprintf(out, "%s %s: %s\n", symbols[r.Status], r.Name, r.Message)
		if r.Suggestion != "" {
			fmt.Fprintf(out, "   💡 %s\n", r.Suggestion)
		}
	}
	fmt.Fprintf(out, "\n%d ok, %d warning(s), %d error(s), %d info\n",
		report.Summary.OK, report.Summary.Warnings, report.Summary.Errors, report.Summary.Info)
}
