// Package cmd implements the §6 CLI surface: start, stop, reload-rules,
// stats. Grounded on the cli/cmd package shape: one persistent
// rootCmd carrying global flags, subcommands registered from init().
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logiccorrelator/internal/config"
)

var (
	cfgFile   string
	rulesFile string
	pidFile   string
)

var rootCmd = &cobra.Command{
	Use:     "correlator",
	Short:   "Temporal event correlation core",
	Long:    `correlator runs the single-writer streaming rule evaluator described in the correlation core spec: admit, evaluate, emit, expire.`,
	Version: "0.1.0",
}

// Execute runs the CLI, returning the exit code the host process should
// use: 0 clean shutdown, 2 rule validation failure, 1 any other fatal
// error (§6 "Exit code 0 on clean shutdown, 2 on rule validation failure,
// 1 on other fatal errors").
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := err.(exitCoder); ok {
			return code.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// exitCoder lets a subcommand attach a specific exit code to its error,
// distinguishing §6's validation-failure exit (2) from other fatal
// errors (1).
type exitCoder interface {
	error
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }

func newExitError(code int, err error) error {
	return &exitError{code: code, err: err}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "rules.yaml", "rule document path")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pidfile", "/tmp/logiccorrelator/correlator.pid", "pidfile used by start/stop/reload-rules")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
