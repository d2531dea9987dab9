package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/daisy/pkg/gateway"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tool gateway",
	Long: `Start the authenticated tool gateway in the foreground.
Browser clients connect on /ws, scripts call /rpc with the shared secret,
and Prometheus scrapes /metrics. Stop it with Ctrl-C or "daisy stop".`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides gateway.host)")
	serveCmd.Flags().IntVar(&servePort, "port", -1, "listen port (overrides gateway.port, 0 picks a free port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Gateway.Host = serveHost
	}
	if servePort >= 0 {
		cfg.Gateway.Port = servePort
	}
	cfg.Gateway.Enabled = true

	pidFile := getPIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("gateway is already running (PID file: %s)", pidFile)
	}

	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := newGateway(rt)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	if err := writePIDFile(pidFile); err != nil {
		srv.Stop()
		return err
	}
	defer os.Remove(pidFile)

	fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on %s\n", srv.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return srv.Stop()
}

func newGateway(rt *runtime) (*gateway.Server, error) {
	return gateway.NewServer(gateway.Config{
		Host:              rt.cfg.Gateway.Host,
		Port:              rt.cfg.Gateway.Port,
		SharedSecret:      rt.cfg.Gateway.SharedSecret,
		RequestsPerMinute: rt.cfg.Gateway.RequestsPerMinute,
		MaxConcurrent:     rt.cfg.Gateway.MaxConcurrent,
		CallTimeout:       rt.cfg.Tools.CallTimeout(),
		ShutdownTimeout:   10 * time.Second,
		Tools:             rt.manager,
		Logger:            rt.logger.With().Str("component", "gateway").Logger(),
	})
}
