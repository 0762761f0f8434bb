package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here

	for _, k := range []string{
		"STOCKPANEL_BASE_URL", "STOCKPANEL_STORE", "STOCKPANEL_SESSION_TIMEOUT",
		"STOCKPANEL_RATE_LIMIT", "LOG_LEVEL", "HTTP_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "http://127.0.0.1:5000", cfg.BaseURL)
	require.Equal(t, "/api/auth", cfg.AuthPath)
	require.Equal(t, "sqlite", cfg.StoreKind)
	require.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 5*time.Minute, cfg.RefreshThreshold)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Zero(t, cfg.RateLimit)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("STOCKPANEL_BASE_URL", "https://panel.example.com")
	t.Setenv("STOCKPANEL_STORE", "redis")
	t.Setenv("STOCKPANEL_REDIS_DB", "3")
	t.Setenv("STOCKPANEL_SESSION_TIMEOUT", "45") // minutes
	t.Setenv("STOCKPANEL_REFRESH_THRESHOLD", "90s")
	t.Setenv("STOCKPANEL_RATE_LIMIT", "2.5")

	cfg := LoadConfig()
	require.Equal(t, "https://panel.example.com", cfg.BaseURL)
	require.Equal(t, "redis", cfg.StoreKind)
	require.Equal(t, 3, cfg.RedisDB)
	require.Equal(t, 45*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 90*time.Second, cfg.RefreshThreshold)
	require.Equal(t, 2.5, cfg.RateLimit)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("STOCKPANEL_REDIS_DB", "three")
	t.Setenv("STOCKPANEL_SESSION_TIMEOUT", "soon")
	t.Setenv("STOCKPANEL_RATE_LIMIT", "-1")

	cfg := LoadConfig()
	require.Equal(t, 0, cfg.RedisDB)
	require.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	require.Zero(t, cfg.RateLimit)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("STOCKPANEL_STORE", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STOCKPANEL_STORE=memory\n"), 0o600))

	// Set variables, even empty ones, win over .env. t.Setenv above restores it.
	require.NoError(t, os.Unsetenv("STOCKPANEL_STORE"))

	cfg := LoadConfig()
	require.Equal(t, "memory", cfg.StoreKind)
}
