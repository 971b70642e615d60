package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/communet/sessiond/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Retry.Interval.Std())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
livekit:
  url: https://lk.example.com
  api_key: APIkey
  api_secret: hunter2
  token_ttl: 1h
retry:
  interval: 5s
  max_attempts: 3
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "https://lk.example.com", cfg.LiveKit.URL)
	assert.Equal(t, time.Hour, cfg.LiveKit.TokenTTL.Std())
	assert.Equal(t, 5*time.Second, cfg.Retry.Interval.Std())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SESSIOND_REDIS_ADDR", "redis.prod:6379")
	t.Setenv("SESSIOND_LIVEKIT_API_SECRET", "from-env")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "redis.prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "from-env", cfg.LiveKit.APISecret)
}

func TestLoad_MalformedDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  interval: soon\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
