// Package config loads client configuration from an optional TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all client settings.
type Config struct {
	// ServerURL is the base URL of the directory REST API.
	ServerURL string `toml:"server_url"`
	// LiveURL is the websocket endpoint of the live delivery server.
	LiveURL string `toml:"live_url"`
	// StateDir holds the persisted session database.
	StateDir string `toml:"state_dir"`
	// HistoryPageSize bounds the history fetch on room entry.
	HistoryPageSize int `toml:"history_page_size"`
	// Notifications enables the session-scoped background channel.
	Notifications bool `toml:"notifications"`
	// TypingTTLSeconds is how long a typing notice stays visible without
	// being refreshed.
	TypingTTLSeconds int `toml:"typing_ttl_seconds"`
	// MetricsAddr, when set, serves prometheus metrics on this address.
	MetricsAddr string `toml:"metrics_addr"`
	// OTLPEndpoint, when set, enables trace export over grpc.
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ServerURL:        "http://localhost:8000",
		LiveURL:          "ws://localhost:8000/ws",
		StateDir:         filepath.Join(home, ".chat-client"),
		HistoryPageSize:  100,
		Notifications:    true,
		TypingTTLSeconds: 5,
	}
}

// Load reads path when it exists, then applies environment overrides. An
// empty path means defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	cfg.ServerURL = getEnv("CHAT_SERVER_URL", cfg.ServerURL)
	cfg.LiveURL = getEnv("CHAT_LIVE_URL", cfg.LiveURL)
	cfg.StateDir = getEnv("CHAT_STATE_DIR", cfg.StateDir)
	cfg.MetricsAddr = getEnv("CHAT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.OTLPEndpoint = getEnv("CHAT_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	if v, ok := os.LookupEnv("CHAT_HISTORY_PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CHAT_HISTORY_PAGE_SIZE %q", v)
		}
		cfg.HistoryPageSize = n
	}
	if v, ok := os.LookupEnv("CHAT_TYPING_TTL_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CHAT_TYPING_TTL_SECONDS %q", v)
		}
		cfg.TypingTTLSeconds = n
	}
	if v, ok := os.LookupEnv("CHAT_NOTIFICATIONS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHAT_NOTIFICATIONS %q", v)
		}
		cfg.Notifications = b
	}

	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 100
	}
	if cfg.TypingTTLSeconds <= 0 {
		cfg.TypingTTLSeconds = 5
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
