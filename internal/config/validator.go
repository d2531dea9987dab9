package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

var (
	googleKeyPattern = regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`)
	engineIDPattern  = regexp.MustCompile(`^[A-Za-z0-9:_-]+$`)
	voicePattern     = regexp.MustCompile(`^[A-Z][a-z]+$`)
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "gemini", "google":
		if !googleKeyPattern.MatchString(key) {
			return fmt.Errorf("invalid Google API key format (should start with AIza and be 39 characters)")
		}
	case "together":
		if strings.ContainsAny(key, " \t\n") {
			return fmt.Errorf("invalid Together API key format (contains whitespace)")
		}
		if len(key) < 20 {
			return fmt.Errorf("invalid Together API key format (too short)")
		}
	}

	return nil
}

// ValidateEngineID validates a Custom Search engine id
func (v *Validator) ValidateEngineID(id string) error {
	if id == "" {
		return fmt.Errorf("search engine id cannot be empty")
	}
	if !engineIDPattern.MatchString(id) {
		return fmt.Errorf("invalid search engine id format")
	}
	return nil
}

// ValidateModel validates a Gemini model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if !strings.HasPrefix(model, "models/") {
		return fmt.Errorf("invalid model name: %s (must start with models/)", model)
	}
	return nil
}

// ValidateVoice validates a prebuilt voice name
func (v *Validator) ValidateVoice(voice string) error {
	if voice == "" {
		return nil // server default
	}
	if !voicePattern.MatchString(voice) {
		return fmt.Errorf("invalid voice name: %s", voice)
	}
	return nil
}

// ValidateEmailAddress validates a sender or recipient address
func (v *Validator) ValidateEmailAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("email address cannot be empty")
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("invalid email address: %s", addr)
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateURL validates an absolute URL with one of the given schemes
func (v *Validator) ValidateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL: %s", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid URL scheme: %s (must be one of: %s)", u.Scheme, strings.Join(schemes, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Gemini
	if cfg.Gemini.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Gemini.APIKey, "gemini"); err != nil {
			errors = append(errors, fmt.Errorf("gemini: %w", err))
		}
	}
	if err := v.ValidateModel(cfg.Gemini.Model); err != nil {
		errors = append(errors, fmt.Errorf("gemini: %w", err))
	}
	if err := v.ValidateURL(cfg.Gemini.BaseURL, "ws", "wss"); err != nil {
		errors = append(errors, fmt.Errorf("gemini: %w", err))
	}
	if err := v.ValidateVoice(cfg.Gemini.Voice); err != nil {
		errors = append(errors, fmt.Errorf("gemini: %w", err))
	}
	if cfg.Gemini.InputSampleRate < 0 {
		errors = append(errors, fmt.Errorf("gemini input_sample_rate must be >= 0"))
	}

	// Tools
	if cfg.Tools.CallTimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("tools.call_timeout must be positive"))
	}
	if cfg.Tools.Image.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Tools.Image.APIKey, "together"); err != nil {
			errors = append(errors, fmt.Errorf("tools.image: %w", err))
		}
	}
	if cfg.Tools.Image.Width <= 0 || cfg.Tools.Image.Height <= 0 {
		errors = append(errors, fmt.Errorf("tools.image width and height must be positive"))
	}
	if cfg.Tools.Image.Steps <= 0 {
		errors = append(errors, fmt.Errorf("tools.image.steps must be positive"))
	}
	if cfg.Tools.Search.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Tools.Search.APIKey, "google"); err != nil {
			errors = append(errors, fmt.Errorf("tools.search: %w", err))
		}
		if err := v.ValidateEngineID(cfg.Tools.Search.EngineID); err != nil {
			errors = append(errors, fmt.Errorf("tools.search: %w", err))
		}
	}
	if cfg.Tools.Email.SMTPHost != "" {
		if err := v.ValidatePort(cfg.Tools.Email.SMTPPort); err != nil {
			errors = append(errors, fmt.Errorf("tools.email: %w", err))
		}
		if err := v.ValidateEmailAddress(cfg.Tools.Email.From); err != nil {
			errors = append(errors, fmt.Errorf("tools.email: %w", err))
		}
	}

	// Gateway
	if cfg.Gateway.Enabled {
		if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
			errors = append(errors, fmt.Errorf("gateway: %w", err))
		}
		if cfg.Gateway.SharedSecret == "" {
			errors = append(errors, fmt.Errorf("gateway: shared_secret is required when enabled"))
		}
	}
	if cfg.Gateway.RequestsPerMinute < 0 {
		errors = append(errors, fmt.Errorf("gateway requests_per_minute must be >= 0"))
	}
	if cfg.Gateway.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("gateway max_concurrent must be >= 0"))
	}

	// Telemetry
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("telemetry sample_ratio must be between 0 and 1, got %f", cfg.Telemetry.SampleRatio))
	}
	if cfg.Telemetry.Endpoint != "" {
		if err := v.ValidateURL(cfg.Telemetry.Endpoint, "http", "https"); err != nil {
			errors = append(errors, fmt.Errorf("telemetry: %w", err))
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
