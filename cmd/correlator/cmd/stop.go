package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running correlator to shut down cleanly",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := readPIDFile()
	if err != nil {
		return newExitError(1, fmt.Errorf("read pidfile: %w", err))
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return newExitError(1, fmt.Errorf("find process %d: %w", pid, err))
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return newExitError(1, fmt.Errorf("signal process %d: %w", pid, err))
	}

	fmt.Printf("sent SIGTERM to correlator (pid %d)\n", pid)
	return nil
}
