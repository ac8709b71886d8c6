package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.ServerURL)
	assert.Equal(t, "ws://localhost:8000/ws", cfg.LiveURL)
	assert.Equal(t, 100, cfg.HistoryPageSize)
	assert.Equal(t, 5, cfg.TypingTTLSeconds)
	assert.True(t, cfg.Notifications)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ServerURL, cfg.ServerURL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
server_url = "https://chat.example.com"
live_url = "wss://chat.example.com/ws"
history_page_size = 25
notifications = false
typing_ttl_seconds = 10
metrics_addr = ":9102"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.ServerURL)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.LiveURL)
	assert.Equal(t, 25, cfg.HistoryPageSize)
	assert.Equal(t, 10, cfg.TypingTTLSeconds)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.False(t, cfg.Notifications)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`server_url = "https://from-file"`), 0o600))

	t.Setenv("CHAT_SERVER_URL", "https://from-env")
	t.Setenv("CHAT_HISTORY_PAGE_SIZE", "50")
	t.Setenv("CHAT_TYPING_TTL_SECONDS", "9")
	t.Setenv("CHAT_NOTIFICATIONS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env", cfg.ServerURL)
	assert.Equal(t, 50, cfg.HistoryPageSize)
	assert.Equal(t, 9, cfg.TypingTTLSeconds)
	assert.False(t, cfg.Notifications)
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("CHAT_HISTORY_PAGE_SIZE", "zero")
	_, err := Load("")
	require.Error(t, err)
}

func TestInvalidTypingTTLEnv(t *testing.T) {
	t.Setenv("CHAT_TYPING_TTL_SECONDS", "-3")
	_, err := Load("")
	require.Error(t, err)
}

func TestInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`server_url = [`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
