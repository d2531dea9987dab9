package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (DAISY_GEMINI_API_KEY, ...)
const EnvPrefix = "DAISY"

// secretEnv binds secret keys to their environment variables. Secrets are
// expected to come from the environment and are never written back by Save.
var secretEnv = map[string][]string{
	"gemini.api_key":        {"DAISY_GEMINI_API_KEY", "GEMINI_API_KEY"},
	"tools.image.api_key":   {"DAISY_TOOLS_IMAGE_API_KEY", "DAISY_TOGETHER_API_KEY"},
	"tools.search.api_key":  {"DAISY_TOOLS_SEARCH_API_KEY", "DAISY_GOOGLE_SEARCH_API_KEY"},
	"tools.email.password":  {"DAISY_TOOLS_EMAIL_PASSWORD", "DAISY_EMAIL_PASSWORD"},
	"gateway.shared_secret": {"DAISY_GATEWAY_SHARED_SECRET"},
}

// envKeys are non-secret keys that may also be overridden from the environment
var envKeys = []string{
	"gemini.base_url",
	"gemini.version",
	"gemini.model",
	"gemini.voice",
	"gemini.system_instruction",
	"tools.call_timeout",
	"tools.search.engine_id",
	"tools.email.smtp_host",
	"tools.email.smtp_port",
	"tools.email.username",
	"tools.email.from",
	"gateway.enabled",
	"gateway.host",
	"gateway.port",
	"logging.level",
	"logging.file",
	"telemetry.enabled",
	"telemetry.endpoint",
	"data_dir",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and environment
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range secretEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// A missing file is fine: defaults plus environment
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDefaultPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaultPaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".daisy")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "daisy.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.Tools.Documents.DBPath == "" {
		cfg.Tools.Documents.DBPath = filepath.Join(cfg.DataDir, "documents.db")
	}
	return nil
}

// Save saves the configuration to file. Secrets are left out.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	clean := withoutSecrets(cfg)

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("gemini", clean.Gemini)
	v.Set("tools", clean.Tools)
	v.Set("gateway", clean.Gateway)
	v.Set("logging", clean.Logging)
	v.Set("telemetry", clean.Telemetry)
	v.Set("data_dir", clean.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return os.Chmod(configPath, 0600)
}

func withoutSecrets(cfg *Config) Config {
	clean := *cfg
	clean.Gemini.APIKey = ""
	clean.Tools.Image.APIKey = ""
	clean.Tools.Search.APIKey = ""
	clean.Tools.Email.Password = ""
	clean.Gateway.SharedSecret = ""
	return clean
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".daisy", "daisy.json"), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
