package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearSecretEnv blanks every secret variable so the host environment cannot leak in
func clearSecretEnv(t *testing.T) {
	t.Helper()
	for _, names := range secretEnv {
		for _, name := range names {
			t.Setenv(name, "")
		}
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		clearSecretEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "models/gemini-2.0-flash-exp", cfg.Gemini.Model)
		assert.Empty(t, cfg.Gemini.APIKey)
	})

	t.Run("load config from file", func(t *testing.T) {
		clearSecretEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"gemini": {
				"model": "models/gemini-2.0-flash-live",
				"voice": "Puck",
				"response_modalities": ["TEXT"]
			},
			"tools": {
				"call_timeout": 10,
				"aliases": [{"name": "saveNote", "tool": "documents"}],
				"email": {"smtp_host": "smtp.example.com", "from": "daisy@example.com"}
			},
			"gateway": {"enabled": true, "port": 9090}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "models/gemini-2.0-flash-live", cfg.Gemini.Model)
		assert.Equal(t, "Puck", cfg.Gemini.Voice)
		assert.Equal(t, []string{"TEXT"}, cfg.Gemini.ResponseModalities)
		assert.Equal(t, 10, cfg.Tools.CallTimeoutSeconds)
		assert.Equal(t, map[string]string{"saveNote": "documents"}, cfg.Tools.AliasMap())
		assert.Equal(t, "smtp.example.com", cfg.Tools.Email.SMTPHost)
		assert.True(t, cfg.Gateway.Enabled)
		assert.Equal(t, 9090, cfg.Gateway.Port)

		// untouched sections keep their defaults
		assert.Equal(t, "v1alpha", cfg.Gemini.Version)
		assert.Equal(t, 1024, cfg.Tools.Image.Width)
		assert.Equal(t, 587, cfg.Tools.Email.SMTPPort)
	})

	t.Run("secrets from environment", func(t *testing.T) {
		clearSecretEnv(t)
		t.Setenv("DAISY_GEMINI_API_KEY", "AIza-env-key")
		t.Setenv("DAISY_TOGETHER_API_KEY", "together-env-key")
		t.Setenv("DAISY_EMAIL_PASSWORD", "smtp-env-password")
		t.Setenv("DAISY_GATEWAY_SHARED_SECRET", "gateway-env-secret")
		t.Setenv("DAISY_GATEWAY_PORT", "7070")

		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "AIza-env-key", cfg.Gemini.APIKey)
		assert.Equal(t, "together-env-key", cfg.Tools.Image.APIKey)
		assert.Equal(t, "smtp-env-password", cfg.Tools.Email.Password)
		assert.Equal(t, "gateway-env-secret", cfg.Gateway.SharedSecret)
		assert.Equal(t, 7070, cfg.Gateway.Port)
	})

	t.Run("set default paths", func(t *testing.T) {
		clearSecretEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"data_dir": "`+tmpDir+`"}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "daisy.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "audit.log"), cfg.Logging.AuditFile)
		assert.Equal(t, filepath.Join(tmpDir, "documents.db"), cfg.Tools.Documents.DBPath)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config without secrets", func(t *testing.T) {
		clearSecretEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.Gemini.APIKey = "AIza-should-not-persist"
		cfg.Gemini.Voice = "Kore"
		cfg.Tools.Email.Password = "hunter2"
		cfg.Gateway.SharedSecret = "gateway-secret"
		cfg.Gateway.Port = 9191

		loader := NewLoader(configPath)
		err := loader.Save(cfg)
		require.NoError(t, err)

		data, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "should-not-persist")
		assert.NotContains(t, string(data), "hunter2")
		assert.NotContains(t, string(data), "gateway-secret")

		info, err := os.Stat(configPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		loadedCfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "Kore", loadedCfg.Gemini.Voice)
		assert.Equal(t, 9191, loadedCfg.Gateway.Port)
		assert.Empty(t, loadedCfg.Gemini.APIKey)

		// the caller's config keeps its secrets
		assert.Equal(t, "hunter2", cfg.Tools.Email.Password)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		loader := NewLoader(configPath)
		err := loader.Save(DefaultConfig())

		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		path := loader.GetConfigPath()
		assert.Equal(t, "/custom/path/config.json", path)
	})

	t.Run("default path", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, filepath.Join(".daisy", "daisy.json"))
	})
}
