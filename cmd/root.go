package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pybootstrap/internal/config"
	"github.com/conneroisu/pybootstrap/internal/interpreter"
	"github.com/conneroisu/pybootstrap/internal/logging"
	"github.com/conneroisu/pybootstrap/internal/reconcile"
	"github.com/conneroisu/pybootstrap/internal/venv"
)

var cfgFile string

// logger is configured before any command runs.
var logger logging.Logger = logging.NewLogger(nil)

var closeLog = func() error { return nil }

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pybootstrap",
	Short: "Keep a project's Python virtual environment in sync with its manifests",
	Long: `pybootstrap makes sure a project's virtual environment exists, matches the
desired Python version and has the dependencies its manifests describe.

Every invocation fingerprints the watched manifest files and compares the
result with the state recorded last time. Unchanged projects start instantly;
changed ones are reinstalled, and a changed Python pin rebuilds the
environment from scratch.

Quick Start:
  pybootstrap run -- flask run     Reconcile, then run a command in the venv
  pybootstrap sync                 Reconcile and print the interpreter path
  pybootstrap status               Show what the next reconcile would do
  pybootstrap watch                Reconcile whenever a manifest changes
  pybootstrap clean                Remove the managed environment`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .bootstrap.yml, can also use BOOTSTRAP_CONFIG_FILE env var)")
	flags.String("root", ".", "project root")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("log-file", "", "also write JSON logs to this file")

	_ = viper.BindPFlag("root", flags.Lookup("root"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("log_file", flags.Lookup("log-file"))
}

// initConfig wires viper to the config file and BOOTSTRAP_ environment.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. BOOTSTRAP_CONFIG_FILE environment variable
//  3. .bootstrap.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("BOOTSTRAP_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".bootstrap")
	}

	config.SetDefaults()
	viper.SetEnvPrefix("BOOTSTRAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// A missing or malformed file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setupLogging builds the process logger from the resolved configuration.
func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lc, err := cfg.LoggerConfig()
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()

	if cfg.LogFile == "" {
		logger = logging.NewLogger(lc)
		closeLog = func() error { return nil }
		return nil
	}

	fl, err := logging.NewFileLogger(lc, cfg.LogFile)
	if err != nil {
		return err
	}
	logger = fl
	closeLog = fl.Close
	return nil
}

// newEngine loads configuration and builds a reconciliation engine whose
// subprocess output goes to stderr.
func newEngine(cmd *cobra.Command) (*config.Config, *reconcile.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	opts, err := reconcile.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	return cfg, reconcile.New(opts, newRunner(cmd, cfg), newProbe(cfg), logger, engineOptions...), nil
}

// Subprocess collaborators of the engine. Tests replace them.
var (
	newRunner = func(cmd *cobra.Command, cfg *config.Config) venv.Runner {
		return venv.NewExecRunner(cmd.ErrOrStderr(), cmd.ErrOrStderr(), cfg.SubprocessTimeout)
	}
	newProbe = func(cfg *config.Config) interpreter.Probe {
		return interpreter.ExecProbe{Timeout: cfg.SubprocessTimeout}
	}
	engineOptions []reconcile.EngineOption
)
