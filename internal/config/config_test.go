package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes into dir for the duration of the test (t.Chdir needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_ENV", "dev")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8089, cfg.Port)
	assert.Equal(t, "wss://sfu.lumacart.dev/rtc", cfg.SFUEndpoint)
	assert.Equal(t, 45*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.DisconnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
}

func TestLoadReadsEnvSelectedFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_ENV", "test")

	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	yaml := []byte(`
mode: debug
port: 9100
control_token: local-secret
sfu_endpoint: wss://sfu.staging.local/rtc
connect_timeout: 10s
max_reconnect_attempts: 2
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "local-secret", cfg.ControlToken)
	assert.Equal(t, "wss://sfu.staging.local/rtc", cfg.SFUEndpoint)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)

	// Keys the file omits keep their defaults.
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	assert.Equal(t, "https://api.lumacart.dev", cfg.APIBaseURL)
}
