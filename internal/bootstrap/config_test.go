package bootstrap

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-sessions/config"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestInitLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLoggerWith(LoggerOptions{Level: "warn", Format: "text", Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown", "component", "sweeper")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "component=sweeper")

	buf.Reset()
	InitLoggerWith(LoggerOptions{Output: &buf}).Info("json")
	assert.Contains(t, buf.String(), `"msg":"json"`)
}

func TestLoadConfigFromMap(t *testing.T) {
	cfg, err := LoadConfigFromMap(map[string]string{
		"AUTH_POLICY": "dummy",
		"SERVICES":    "http",
	})
	require.NoError(t, err)
	assert.Equal(t, config.AuthPolicyDummy, cfg.Auth.Policy)
	assert.Equal(t, []string{"http"}, GetEnabledServices(&cfg))

	_, err = LoadConfigFromMap(map[string]string{"AUTH_POLICY": "kerberos"})
	require.Error(t, err)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.env")
	require.NoError(t, os.WriteFile(path, []byte("SESSION_DEFAULT_MAX=7\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("SESSION_DEFAULT_MAX", "")
	require.NoError(t, os.Unsetenv("SESSION_DEFAULT_MAX"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Session.DefaultMaxSessions)
}

func TestValidateServiceConfig(t *testing.T) {
	require.Error(t, ValidateServiceConfig(nil))
	require.Error(t, ValidateServiceConfig(&config.AppConfig{Services: ""}))
	require.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http"}))
}
