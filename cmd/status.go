package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pybootstrap/internal/reconcile"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the next reconcile would do",
	Long: `Compute the reconcile plan without changing anything: the watched files,
their fingerprint, the recorded state and whether the environment would be
recreated or reinstalled.

A Python version is only looked up when the desired version changed since the
last reconcile: the existing environment answers from its recorded state, and
the host interpreter is probed only when there is no environment yet.

Examples:
  pybootstrap status              # Human readable table
  pybootstrap status -f json      # Machine readable plan`,
	RunE: runStatus,
}

var statusFormat string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "table", "Output format (table|json|yaml)")
	AddFlagValidation(statusCmd, "format", func(format string) error {
		return ValidateFormat(format, []string{"table", "json", "yaml"})
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	plan, err := engine.Plan(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch statusFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(plan)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(plan)
	case "table":
		return writePlanTable(out, plan)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", statusFormat)
	}
}

func writePlanTable(out io.Writer, plan *reconcile.Plan) error {
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	desired := "unset"
	if plan.Desired.Set() {
		desired = fmt.Sprintf("%s (%s)", plan.Desired.Version, plan.Desired.Source)
	}
	recorded := plan.Prior.Python
	if recorded == "" {
		recorded = "-"
	}

	fmt.Fprintf(w, "Action:\t%s\n", title.String(string(plan.Action)))
	fmt.Fprintf(w, "Interpreter:\t%s\n", plan.Interpreter)
	fmt.Fprintf(w, "Desired Python:\t%s\n", desired)
	fmt.Fprintf(w, "Recorded Python:\t%s\n", recorded)
	if plan.Probed {
		fmt.Fprintf(w, "Current Python:\t%s (%s)\n", plan.Current, plan.CurrentFrom)
	}
	fmt.Fprintf(w, "State:\t%s\n", title.String(plan.PriorStatus))
	fmt.Fprintf(w, "Manifest:\t%s\n", title.String(plan.Manifest))
	fmt.Fprintf(w, "Fingerprint:\t%s\n", orDash(plan.Fingerprint))
	if len(plan.Reasons) > 0 {
		fmt.Fprintf(w, "Recreate:\t%s\n", strings.Join(plan.Reasons, ", "))
	}
	if len(plan.InstallWhy) > 0 {
		fmt.Fprintf(w, "Install:\t%s\n", strings.Join(plan.InstallWhy, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nWatched files (%d):\n", len(plan.Watched))
	for _, rel := range plan.Watched {
		fmt.Fprintf(out, "  %s\n", rel)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
