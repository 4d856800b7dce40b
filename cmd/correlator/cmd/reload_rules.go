package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

var reloadRulesCmd = &cobra.Command{
	Use:   "reload-rules",
	Short: "Signal a running correlator to reload its rule document",
	RunE:  runReloadRules,
}

func init() {
	rootCmd.AddCommand(reloadRulesCmd)
}

// runReloadRules validates the rule document locally before signaling the
// running correlator, so an operator gets the RuleValidationError list here
// rather than discovering a bad document only after the signaled process
// logs and keeps its previous rule set.
func runReloadRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return newExitError(1, fmt.Errorf("load config: %w", err))
	}

	if _, err := loadAndValidateRules(cfg); err != nil {
		return newExitError(2, err)
	}

	pid, err := readPIDFile()
	if err != nil {
		return newExitError(1, fmt.Errorf("read pidfile: %w", err))
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return newExitError(1, fmt.Errorf("find process %d: %w", pid, err))
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return newExitError(1, fmt.Errorf("signal process %d: %w", pid, err))
	}

	fmt.Printf("sent reload-rules signal to correlator (pid %d)\n", pid)
	return nil
}
