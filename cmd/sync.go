package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the environment and print its interpreter path",
	Long: `Reconcile the managed environment and print the absolute path of its
interpreter on stdout. Logs and tool output go to stderr, so the result can
be captured by scripts:

  PY=$(pybootstrap sync) && "$PY" -m pytest`,
	Aliases: []string{"s"},
	RunE:    runSync,
}

var syncJSON bool

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "print the full reconcile result as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	_, engine, err := newEngine(cmd)
	if err != nil {
		return err
	}

	result, err := engine.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	if syncJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Interpreter)
	return err
}
