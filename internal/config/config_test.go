package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "change-me", cfg.APIKey)
	assert.Equal(t, "./session", cfg.SessionDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "*", cfg.CORSOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEY", "s3cret")
	t.Setenv("SESSION_DIR", "/var/lib/zapgate/session")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "s3cret", cfg.APIKey)
	assert.Equal(t, "/var/lib/zapgate/session", cfg.SessionDir)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLevelFallsBackToInfo(t *testing.T) {
	cfg := Config{LogLevel: "loudest"}
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}
