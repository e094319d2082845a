package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sql", cfg.CacheBackend)
	assert.Equal(t, uint(5), cfg.CacheRetryAttempts)
	assert.Equal(t, 256, cfg.RepairQueueSize)
	assert.Equal(t, []string{"*"}, cfg.Origins())
	assert.Same(t, cfg, AppConfig)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REPAIR_QUEUE_SIZE", "16")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 16, cfg.RepairQueueSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Origins())
}

func TestValidate(t *testing.T) {
	base := Config{DatabaseURL: "postgres://localhost/cardlink", JWTSecret: "x", CacheBackend: "sql", CacheRetryAttempts: 1}
	require.NoError(t, base.Validate())

	noDB := base
	noDB.DatabaseURL = ""
	assert.Error(t, noDB.ValidateCache())

	noSecret := base
	noSecret.JWTSecret = ""
	assert.Error(t, noSecret.Validate())
	assert.NoError(t, noSecret.ValidateCache(), "the batch tool does not need a secret")

	badBackend := base
	badBackend.CacheBackend = "memcached"
	assert.ErrorContains(t, badBackend.Validate(), "memcached")

	noRetry := base
	noRetry.CacheRetryAttempts = 0
	assert.Error(t, noRetry.Validate())
}
