package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the chat client and dev server.
type Config struct {
	Env      string
	Endpoint string // backend base URL
	PushURL  string // websocket push endpoint; derived from Endpoint when empty

	// Client identity (bearer credential supplied by the login flow,
	// which is outside this repository).
	Token    string
	UserID   string
	Username string

	// Persistent room-key cache location. Empty disables persistence
	// and keys live only for the client session.
	KeyCachePath string

	// Dev server
	Port string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:          getEnv("ENV", "development"),
		Endpoint:     getEnv("CHAT_ENDPOINT", "http://localhost:8000"),
		PushURL:      os.Getenv("CHAT_PUSH_URL"),
		Token:        os.Getenv("CHAT_TOKEN"),
		UserID:       os.Getenv("CHAT_USER_ID"),
		Username:     os.Getenv("CHAT_USERNAME"),
		KeyCachePath: os.Getenv("CHAT_KEY_CACHE"),
		Port:         getEnv("PORT", "8000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
