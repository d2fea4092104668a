package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "")
	t.Setenv("MAX_BATCH_SIZE", "")
	t.Setenv("PORT", "")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 500, cfg.MaxBatchSize)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.LogRetention)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "90m")
	t.Setenv("MAX_BATCH_SIZE", "25")
	t.Setenv("DB_NAME", "metrics")

	cfg := Load()

	assert.Equal(t, 90*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, 25, cfg.MaxBatchSize)
	assert.Contains(t, cfg.DSN(), "dbname=metrics")
	assert.Contains(t, cfg.DSN(), "TimeZone=UTC")
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "soon")
	t.Setenv("MAX_BATCH_SIZE", "-3")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 500, cfg.MaxBatchSize)
}
