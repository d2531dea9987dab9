package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running gateway",
	Long: `Stop a running "daisy serve" gateway gracefully.
Sends SIGTERM and waits for it to shut down, then falls back to SIGKILL.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the gateway to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	pidFile := getPIDFilePath(cfg.DataDir)

	if !isRunning(pidFile) {
		os.Remove(pidFile)
		return fmt.Errorf("gateway is not running")
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	// Wait for process to stop with timeout
	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !isRunning(pidFile) {
			fmt.Fprintln(out, "Gateway stopped successfully")
			os.Remove(pidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	os.Remove(pidFile)
	fmt.Fprintln(out, "Gateway killed")
	return nil
}
