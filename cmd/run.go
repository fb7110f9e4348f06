package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pybootstrap/internal/launcher"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

var runCmd = &cobra.Command{
	Use:   "run [-- command [args...]]",
	Short: "Reconcile the environment, then run a command inside it",
	Long: `Reconcile the managed environment and run a command with it activated:
its bin directory first on PATH and VIRTUAL_ENV set.

Without arguments the entry comes from the environment:
  APP_FACTORY='app:create_app'  imports the factory and runs app.run(debug=True)
  APP_CMD='flask run'           runs the command line, split like a shell would

Examples:
  pybootstrap run -- pytest -q
  APP_FACTORY=app:create_app pybootstrap run
  APP_CMD="gunicorn app:app" pybootstrap run`,
	Aliases: []string{"r"},
	RunE:    runRun,
}

// errUsage makes the process exit with status 2.
type errUsage struct{ error }

func (e errUsage) ExitCode() int { return 2 }

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	_, engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	result, err := engine.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	entry, err := launcher.FromEnv(args)
	if stderrors.Is(err, launcher.ErrNoEntry) {
		fmt.Fprint(cmd.OutOrStdout(), launcher.Usage)
		return errUsage{err}
	}
	if err != nil {
		return err
	}

	l := launcher.New(venv.DetectLayout(engine.Manager().Dir()), engine.Options().Root, logger)
	l.Stdin = cmd.InOrStdin()
	l.Stdout = cmd.OutOrStdout()
	l.Stderr = cmd.ErrOrStderr()

	logger.Debug(cmd.Context(), "launching", "interpreter", result.Interpreter, "kind", string(entry.Kind))
	return l.Run(cmd.Context(), entry)
}
