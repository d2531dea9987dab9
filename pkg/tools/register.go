package tools

import (
	"fmt"
	"net/http"
	"time"

	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options wires the built-in tools to their collaborators.
type Options struct {
	Image     ImageOptions
	Search    SearchOptions
	Weather   WeatherOptions
	Documents DocumentStore
	Sender    Sender

	// HTTPClient is shared by every outbound HTTP tool. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// DefaultAliases routes the secondary declaration names of multi-action
// tools to their registry entries.
func DefaultAliases() map[string]string {
	return map[string]string{
		"saveScribe":     "documents",
		"updateDocument": "documents",
		"getDocument":    "documents",
		"getWeather":     "weather",
	}
}

// RegisterDefaults registers every built-in tool with mgr.
func RegisterDefaults(mgr *toolmanager.Manager, opts Options) error {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	builtins := []struct {
		name string
		tool toolmanager.Tool
	}{
		{"imageGenerator", NewImageGenerator(opts.Image, client, logger.With().Str("tool", "imageGenerator").Logger())},
		{"scribeGenerator", NewScribeGenerator()},
		{"documents", NewDocuments(opts.Documents, logger.With().Str("tool", "documents").Logger())},
		{"sendEmail", NewEmailTool(opts.Sender, logger.With().Str("tool", "sendEmail").Logger())},
		{"googleSearch", NewSearch(opts.Search, client, logger.With().Str("tool", "googleSearch").Logger())},
		{"weather", NewWeather(opts.Weather, client, logger.With().Str("tool", "weather").Logger())},
	}

	for _, b := range builtins {
		if err := mgr.Register(b.name, b.tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", b.name, err)
		}
	}
	return nil
}
