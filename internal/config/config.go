package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the server.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	AllowedOrigins []string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads server configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics when no PostgreSQL database is configured.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/roomchat.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitWhitelist: splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ClientConfig holds configuration for the chat client.
type ClientConfig struct {
	APIURL      string
	WSURL       string
	User        string
	DedupWindow time.Duration
	HTTPTimeout time.Duration
	ConfigDir   string
	LogFile     string
	LogLevel    zerolog.Level
}

// LoadClient reads client configuration. A .env file in the config
// directory is loaded first, then one in the working directory; real
// environment variables win over both.
func LoadClient() (*ClientConfig, error) {
	dir := os.Getenv("CHAT_CONFIG")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".roomchat")
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Load()

	cfg := &ClientConfig{
		APIURL:    strings.TrimRight(getEnv("CHAT_API_URL", "http://127.0.0.1:8000"), "/"),
		User:      os.Getenv("CHAT_USER"),
		ConfigDir: dir,
		LogFile:   getEnv("CHAT_LOG_FILE", filepath.Join(dir, "client.log")),
	}

	cfg.WSURL = strings.TrimRight(os.Getenv("CHAT_WS_URL"), "/")
	if cfg.WSURL == "" {
		cfg.WSURL = WebSocketURL(cfg.APIURL)
	}

	var err error
	if cfg.DedupWindow, err = getDuration("CHAT_DEDUP_WINDOW", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("CHAT_HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// WebSocketURL derives the live channel base from an HTTP base URL.
func WebSocketURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	}
	return apiURL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
