package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		assert.True(t, hasCommand("status"), "status command should exist")
	})

	t.Run("stopped", func(t *testing.T) {
		path, _ := writeTestConfig(t, nil)

		out, err := executeCommand(t, nil, "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Status: stopped")
	})

	t.Run("running", func(t *testing.T) {
		path, dataDir := writeTestConfig(t, map[string]any{
			"gateway": map[string]any{"host": "127.0.0.1", "port": 9191},
		})
		pid := os.Getpid()
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, "daisy.pid"), []byte(strconv.Itoa(pid)), 0600))

		out, err := executeCommand(t, nil, "status", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "PID: "+strconv.Itoa(pid))
		assert.Contains(t, out, "Address: 127.0.0.1:9191")
	})
}

func TestIsRunning(t *testing.T) {
	t.Run("no pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "nonexistent.pid")
		assert.False(t, isRunning(pidFile))
	})

	t.Run("invalid pid file", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "invalid.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("invalid"), 0644))
		assert.False(t, isRunning(pidFile))
	})

	t.Run("current process", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "self.pid")
		require.NoError(t, writePIDFile(pidFile))
		assert.True(t, isRunning(pidFile))
	})
}

func TestGetPIDFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "daisy.pid"), getPIDFilePath("/data"))
	assert.Contains(t, getPIDFilePath(""), "daisy.pid")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
