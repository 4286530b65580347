package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.Anonymous)
}

func TestLoadOverlays(t *testing.T) {
	t.Setenv("SIWN_LISTEN_ADDR", ":8080")
	t.Setenv("SIWN_RECIPIENT", "app.near")
	t.Setenv("SIWN_ANONYMOUS", "false")
	t.Setenv("SIWN_SESSION_TTL", "48h")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "app.near", cfg.Recipient)
	assert.False(t, cfg.Anonymous)
	assert.Equal(t, 48*time.Hour, cfg.SessionTTL)
}

func TestLoadIgnoresBadDuration(t *testing.T) {
	t.Setenv("SIWN_SESSION_TTL", "soon")

	cfg := Load()
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
}
