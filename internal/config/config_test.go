package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "ALLOWED_ORIGINS", "RATE_LIMIT_WHITELIST"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8000", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "./data/roomchat.db", cfg.SQLitePath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.RateLimitWhitelist)
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16,,")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := Load()
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_ProductionRequiresDatabase(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")

	assert.Panics(t, func() { Load() })
}

func TestLoadClient_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHAT_CONFIG", dir)
	for _, key := range []string{"CHAT_API_URL", "CHAT_WS_URL", "CHAT_USER", "CHAT_DEDUP_WINDOW", "CHAT_HTTP_TIMEOUT", "CHAT_LOG_FILE", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.APIURL)
	assert.Equal(t, "ws://127.0.0.1:8000", cfg.WSURL)
	assert.Equal(t, 10*time.Second, cfg.DedupWindow)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, filepath.Join(dir, "client.log"), cfg.LogFile)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestLoadClient_EnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHAT_CONFIG", dir)
	for _, key := range []string{"CHAT_API_URL", "CHAT_WS_URL", "CHAT_USER", "CHAT_DEDUP_WINDOW"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	env := "CHAT_API_URL=https://chat.example/\nCHAT_USER=alice\nCHAT_DEDUP_WINDOW=3s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example", cfg.APIURL)
	assert.Equal(t, "wss://chat.example", cfg.WSURL)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, 3*time.Second, cfg.DedupWindow)
}

func TestLoadClient_BadDuration(t *testing.T) {
	t.Setenv("CHAT_CONFIG", t.TempDir())
	t.Setenv("CHAT_DEDUP_WINDOW", "soon")

	_, err := LoadClient()
	assert.ErrorContains(t, err, "CHAT_DEDUP_WINDOW")
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000"},
		{"https://chat.example", "wss://chat.example"},
		{"ws://already", "ws://already"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, WebSocketURL(tt.in))
		})
	}
}
