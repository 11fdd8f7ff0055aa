// Package config provides configuration for the relay server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultWebhookURL is used when N8N_WEBHOOK_URL is not set.
const DefaultWebhookURL = "https://rguktstuff784.app.n8n.cloud/webhook/3c15abd5-cc89-47ee-9563-5ddd20d36259/chat"

// ModeMock answers chat requests in-process instead of calling the webhook.
const ModeMock = "MOCK"

// Config holds the relay configuration.
type Config struct {
	// Server settings
	Port      int
	StaticDir string // Built frontend to serve, empty disables static serving

	// Webhook settings
	WebhookURL     string
	WebhookTimeout time.Duration
	Mode           string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Push RPC listen address, empty disables it
	RPCAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables, reading a .env file first when present.
func Load() *Config {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	return &Config{
		Port:           getEnvInt("PORT", 5000),
		StaticDir:      getEnv("STATIC_DIR", ""),
		WebhookURL:     getEnv("N8N_WEBHOOK_URL", DefaultWebhookURL),
		WebhookTimeout: time.Duration(getEnvInt("WEBHOOK_TIMEOUT_MS", 20000)) * time.Millisecond,
		Mode:           strings.ToUpper(getEnv("RELAY_MODE", "")),
		PingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		RPCAddr:        getEnv("RPC_ADDR", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
	}
}

// WebhookConfigured reports whether a webhook target is set.
func (c *Config) WebhookConfigured() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

// MockMode reports whether the mock forwarder should be used.
func (c *Config) MockMode() bool {
	return c.Mode == ModeMock
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
