// Package config loads gateway settings from the environment.
package config

import (
	"os"

	"github.com/rs/zerolog"
)

// Config holds everything the process reads from the environment.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// APIKey protects every endpoint except /health.
	APIKey string
	// SessionDir is the directory holding the WhatsApp credential store.
	SessionDir string
	// LogLevel is a zerolog level name (trace, debug, info, warn, error).
	LogLevel string
	// CORSOrigins is a comma-separated allow list, "*" for any origin.
	CORSOrigins string
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset.
func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		APIKey:      getEnv("API_KEY", "change-me"),
		SessionDir:  getEnv("SESSION_DIR", "./session"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

// Level parses LogLevel, falling back to info on unknown names.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}
