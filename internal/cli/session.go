package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harun/daisy/pkg/realtime"
	"github.com/spf13/cobra"
)

var (
	sessionModality string
	sessionTurnWait time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open a Gemini Live session on stdin/stdout",
	Long: `Open a Gemini Live session with every tool registered. Each line read
from stdin is sent as one user turn and the model's text reply is printed to
stdout. Function calls from the model are dispatched locally. When the
gateway is enabled in the config it is started alongside the session.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().StringVar(&sessionModality, "modality", "TEXT", "response modality (TEXT, AUDIO)")
	sessionCmd.Flags().DurationVar(&sessionTurnWait, "turn-timeout", 2*time.Minute, "how long to wait for the model to finish a turn")
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	modality := strings.ToUpper(sessionModality)
	if modality != "" {
		cfg.Gemini.ResponseModalities = []string{modality}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Gateway.Enabled {
		srv, err := newGateway(rt)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
		rt.logger.Info().Str("addr", srv.Addr()).Msg("Gateway running alongside session")
	}

	out := cmd.OutOrStdout()
	turnDone := make(chan struct{}, 1)
	handler := realtime.Handler{
		OnText: func(text string) {
			fmt.Fprint(out, text)
		},
		OnAudio: func(mimeType string, data []byte) {
			rt.logger.Debug().Str("mime_type", mimeType).Int("bytes", len(data)).Msg("Audio chunk received")
		},
		OnTurnComplete: func() {
			fmt.Fprintln(out)
			select {
			case turnDone <- struct{}{}:
			default:
			}
		},
		OnInterrupted: func() {
			rt.logger.Debug().Msg("Model turn interrupted")
		},
	}

	sess := realtime.New(realtime.Config{
		BaseURL:            cfg.Gemini.BaseURL,
		Version:            cfg.Gemini.Version,
		APIKey:             cfg.Gemini.APIKey,
		Model:              cfg.Gemini.Model,
		Voice:              cfg.Gemini.Voice,
		SystemInstruction:  cfg.Gemini.SystemInstruction,
		ResponseModalities: cfg.Gemini.ResponseModalities,
		InputSampleRate:    cfg.Gemini.InputSampleRate,
		CallTimeout:        cfg.Tools.CallTimeout(),
		Logger:             rt.logger.With().Str("component", "realtime").Logger(),
	}, rt.manager, handler)

	if err := sess.Dial(ctx); err != nil {
		return err
	}
	defer sess.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- sess.Run(runCtx)
	}()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sess.SendText(runCtx, line); err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("failed to send turn: %w", err)
		}

		select {
		case <-turnDone:
		case err := <-runErr:
			return err
		case <-time.After(sessionTurnWait):
			rt.logger.Warn().Dur("timeout", sessionTurnWait).Msg("Model turn did not complete")
		case <-ctx.Done():
			cancel()
			return <-runErr
		}
	}
	if err := scanner.Err(); err != nil {
		rt.logger.Error().Err(err).Msg("Failed to read stdin")
	}

	cancel()
	return <-runErr
}
