package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Daisy configuration
type Config struct {
	// Gemini Live session
	Gemini GeminiConfig `json:"gemini" mapstructure:"gemini"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Telemetry
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// GeminiConfig holds the realtime model connection settings
type GeminiConfig struct {
	BaseURL            string   `json:"base_url" mapstructure:"base_url"`
	Version            string   `json:"version" mapstructure:"version"`
	Model              string   `json:"model" mapstructure:"model"`
	APIKey             string   `json:"api_key" mapstructure:"api_key"`
	Voice              string   `json:"voice" mapstructure:"voice"`
	SystemInstruction  string   `json:"system_instruction" mapstructure:"system_instruction"`
	ResponseModalities []string `json:"response_modalities" mapstructure:"response_modalities"`
	InputSampleRate    int      `json:"input_sample_rate" mapstructure:"input_sample_rate"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	CallTimeoutSeconds int             `json:"call_timeout" mapstructure:"call_timeout"`
	Aliases            []AliasConfig   `json:"aliases" mapstructure:"aliases"`
	Image              ImageConfig     `json:"image" mapstructure:"image"`
	Search             SearchConfig    `json:"search" mapstructure:"search"`
	Weather            WeatherConfig   `json:"weather" mapstructure:"weather"`
	Email              EmailConfig     `json:"email" mapstructure:"email"`
	Documents          DocumentsConfig `json:"documents" mapstructure:"documents"`
}

// AliasConfig routes an extra call name to a registered tool. Call names are
// case-sensitive and viper lowercases map keys, so aliases are a list.
type AliasConfig struct {
	Name string `json:"name" mapstructure:"name"`
	Tool string `json:"tool" mapstructure:"tool"`
}

// AliasMap returns the configured aliases keyed by call name
func (t ToolsConfig) AliasMap() map[string]string {
	out := make(map[string]string, len(t.Aliases))
	for _, a := range t.Aliases {
		out[a.Name] = a.Tool
	}
	return out
}

// CallTimeout returns the per-call tool timeout
func (t ToolsConfig) CallTimeout() time.Duration {
	return time.Duration(t.CallTimeoutSeconds) * time.Second
}

// ImageConfig holds the image generation endpoint settings
type ImageConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Model   string `json:"model" mapstructure:"model"`
	Width   int    `json:"width" mapstructure:"width"`
	Height  int    `json:"height" mapstructure:"height"`
	Steps   int    `json:"steps" mapstructure:"steps"`
}

// SearchConfig holds Google Custom Search credentials
type SearchConfig struct {
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	EngineID string `json:"engine_id" mapstructure:"engine_id"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// WeatherConfig holds Open-Meteo endpoints
type WeatherConfig struct {
	GeocodingURL string `json:"geocoding_url" mapstructure:"geocoding_url"`
	ForecastURL  string `json:"forecast_url" mapstructure:"forecast_url"`
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	SMTPHost string `json:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort int    `json:"smtp_port" mapstructure:"smtp_port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	From     string `json:"from" mapstructure:"from"`
	FromName string `json:"from_name" mapstructure:"from_name"`
}

// DocumentsConfig holds document storage settings
type DocumentsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DBPath  string `json:"db_path" mapstructure:"db_path"` // defaults to <data_dir>/documents.db
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled           bool   `json:"enabled" mapstructure:"enabled"`
	Host              string `json:"host" mapstructure:"host"`
	Port              int    `json:"port" mapstructure:"port"`
	SharedSecret      string `json:"shared_secret" mapstructure:"shared_secret"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int    `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"` // OTLP/HTTP traces URL, empty keeps spans in-process
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			BaseURL:            "wss://generativelanguage.googleapis.com/ws",
			Version:            "v1alpha",
			Model:              "models/gemini-2.0-flash-exp",
			Voice:              "Aoede",
			ResponseModalities: []string{"AUDIO"},
			InputSampleRate:    16000,
		},
		Tools: ToolsConfig{
			CallTimeoutSeconds: 30,
			Image: ImageConfig{
				BaseURL: "https://api.together.xyz/v1/",
				Model:   "black-forest-labs/FLUX.1-schnell-Free",
				Width:   1024,
				Height:  768,
				Steps:   1,
			},
			Search: SearchConfig{
				BaseURL: "https://www.googleapis.com/customsearch/v1",
			},
			Weather: WeatherConfig{
				GeocodingURL: "https://geocoding-api.open-meteo.com/v1/search",
				ForecastURL:  "https://api.open-meteo.com/v1/forecast",
			},
			Email: EmailConfig{
				SMTPPort: 587,
				FromName: "Daisy",
			},
			Documents: DocumentsConfig{
				Enabled: true,
			},
		},
		Gateway: GatewayConfig{
			Enabled:           false,
			Host:              "127.0.0.1",
			Port:              8080,
			RequestsPerMinute: 60,
			MaxConcurrent:     10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "daisy",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Gemini.APIKey = mask(c.Gemini.APIKey)
	masked.Tools.Image.APIKey = mask(c.Tools.Image.APIKey)
	masked.Tools.Search.APIKey = mask(c.Tools.Search.APIKey)
	masked.Tools.Email.Password = mask(c.Tools.Email.Password)
	masked.Gateway.SharedSecret = mask(c.Gateway.SharedSecret)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Validate checks if the configuration is valid for a realtime session
func (c *Config) Validate() error {
	if err := c.ValidateTools(); err != nil {
		return err
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api_key is required (set DAISY_GEMINI_API_KEY)")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini model is required")
	}
	if c.Gemini.BaseURL == "" {
		return fmt.Errorf("gemini base_url is required")
	}
	for _, m := range c.Gemini.ResponseModalities {
		if m != "AUDIO" && m != "TEXT" {
			return fmt.Errorf("invalid gemini response modality: %s (must be AUDIO or TEXT)", m)
		}
	}
	return nil
}

// ValidateTools checks the settings needed to run the tool manager on its own
func (c *Config) ValidateTools() error {
	if c.Tools.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("tools.call_timeout must be positive")
	}
	for _, a := range c.Tools.Aliases {
		if a.Name == "" || a.Tool == "" {
			return fmt.Errorf("tools.aliases: empty alias or target (%q -> %q)", a.Name, a.Tool)
		}
	}
	if c.Tools.Email.SMTPHost != "" && c.Tools.Email.From == "" {
		return fmt.Errorf("tools.email.from is required when smtp_host is set")
	}
	if c.Gateway.Enabled && c.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway shared_secret is required when the gateway is enabled (set DAISY_GATEWAY_SHARED_SECRET)")
	}
	return nil
}
