// Package commands implements the CLI commands for campwatch.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/campwatch/internal/adapter"
	"github.com/jmylchreest/campwatch/internal/config"
	"github.com/jmylchreest/campwatch/internal/logger"
)

// Process exit codes beyond those a run summary produces.
const (
	exitInfra  = 1
	exitConfig = 4
)

var rootCmd = &cobra.Command{
	Use:   "campwatch",
	Short: "Campervan rental price intelligence",
	Long: `Campwatch visits competitor campervan rental sites, collects the prices
they quote for a pickup window and writes a normalized run summary with
alerts for competitors priced well away from the market median.

Examples:
  # Scrape every registered competitor
  campwatch run --all

  # Two competitors, 30 days ahead, summary as a spreadsheet
  campwatch run --adapter roadsurfer --adapter jucy \
      --lookahead 30 --format xlsx -o summary.xlsx

  # Re-extract an earlier run from its stored pages
  campwatch run --all --replay artifacts/20260101T060000Z`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile string
	initErr error
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.campwatch.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v", err)
	})
}

func initConfig() {
	initErr = config.Init(viper.GetViper(), cfgFile)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// setup initializes the logger and loads the configuration.
func setup() (*config.Config, error) {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})
	if initErr != nil {
		return nil, initErr
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("config file loaded", "path", used)
	}
	return cfg, nil
}

// exitError carries the process exit code for a finished run.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps a command error onto the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, adapter.ErrInvalidConfig) ||
		errors.Is(err, adapter.ErrUnknownAdapter) {
		return exitConfig
	}
	return exitInfra
}

// usageError marks bad flag combinations as configuration errors.
func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", config.ErrInvalid, fmt.Sprintf(format, args...))
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
