package cli

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long:  `Show whether a "daisy serve" gateway is running for the configured data directory.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	pidFile := getPIDFilePath(cfg.DataDir)

	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if fileInfo, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
	}
	fmt.Fprintf(out, "Address: %s\n", net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)))

	return nil
}
