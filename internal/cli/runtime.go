package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/daisy/internal/config"
	"github.com/harun/daisy/internal/logger"
	"github.com/harun/daisy/internal/observability"
	"github.com/harun/daisy/internal/tracing"
	"github.com/harun/daisy/pkg/docstore"
	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/harun/daisy/pkg/tools"
	"github.com/rs/zerolog"
)

// runtime holds everything a command needs to dispatch tool calls.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	manager *toolmanager.Manager
	closers []func() error
}

// loadConfig reads the config file and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newRuntime wires logging, tracing, the audit trail, the document store and
// the built-in tools for cfg.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := cfg.ValidateTools(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rt := &runtime{cfg: cfg}

	logs, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt.closers = append(rt.closers, logs.Close)
	rt.logger = logs.Zerolog()

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		rt.closers = append(rt.closers, observability.GetAuditLogger().Close)
	}

	if cfg.Telemetry.Enabled {
		opts := tracing.Options{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		}
		if cfg.Telemetry.Endpoint != "" {
			exporter, err := tracing.NewOTLPExporter(ctx, cfg.Telemetry.Endpoint)
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("failed to create trace exporter: %w", err)
			}
			opts.Exporter = exporter
		}
		if err := tracing.InitOpenTelemetry(opts); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		rt.closers = append(rt.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracing.ShutdownOpenTelemetry(shutdownCtx)
		})
	}

	opts := tools.Options{
		Image: tools.ImageOptions{
			APIKey:  cfg.Tools.Image.APIKey,
			BaseURL: cfg.Tools.Image.BaseURL,
			Model:   cfg.Tools.Image.Model,
			Width:   cfg.Tools.Image.Width,
			Height:  cfg.Tools.Image.Height,
			Steps:   cfg.Tools.Image.Steps,
		},
		Search: tools.SearchOptions{
			APIKey:   cfg.Tools.Search.APIKey,
			EngineID: cfg.Tools.Search.EngineID,
			BaseURL:  cfg.Tools.Search.BaseURL,
		},
		Weather: tools.WeatherOptions{
			GeocodingURL: cfg.Tools.Weather.GeocodingURL,
			ForecastURL:  cfg.Tools.Weather.ForecastURL,
		},
		Logger: &rt.logger,
	}

	if cfg.Tools.Documents.Enabled {
		store, err := docstore.Open(docstore.Config{
			DBPath: cfg.Tools.Documents.DBPath,
			Logger: rt.logger.With().Str("component", "docstore").Logger(),
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		opts.Documents = store
	}

	sender := tools.NewSMTPSender(tools.SMTPOptions{
		Host:     cfg.Tools.Email.SMTPHost,
		Port:     cfg.Tools.Email.SMTPPort,
		Username: cfg.Tools.Email.Username,
		Password: cfg.Tools.Email.Password,
		From:     cfg.Tools.Email.From,
		FromName: cfg.Tools.Email.FromName,
	})
	if sender.Configured() {
		opts.Sender = sender
	}

	aliases := tools.DefaultAliases()
	for name, target := range cfg.Tools.AliasMap() {
		aliases[name] = target
	}
	rt.manager = toolmanager.New(
		toolmanager.WithAliases(aliases),
		toolmanager.WithLogger(rt.logger.With().Str("component", "toolmanager").Logger()),
	)
	if err := tools.RegisterDefaults(rt.manager, opts); err != nil {
		rt.Close()
		return nil, err
	}

	rt.logger.Debug().
		Int("tools", rt.manager.Count()).
		Bool("documents", opts.Documents != nil).
		Bool("email", opts.Sender != nil).
		Msg("Tool runtime ready")
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
