package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the managed environment and its state",
	Long: `Remove the managed virtual environment directory, including the state file
stored inside it. The next reconcile recreates everything from scratch.`,
	RunE: runClean,
}

var cleanStateOnly bool

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVar(&cleanStateOnly, "state-only", false, "only forget the recorded state, forcing a reinstall")
}

func runClean(cmd *cobra.Command, args []string) error {
	_, engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	if cleanStateOnly {
		if err := engine.Store().Remove(); err != nil {
			return err
		}
		logger.Info(cmd.Context(), "removed state file", "path", engine.Store().Path())
		return nil
	}

	dir := engine.Manager().Dir()
	if err := engine.Manager().Remove(); err != nil {
		return err
	}
	logger.Info(cmd.Context(), "removed environment", "dir", dir)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), dir)
	return err
}
