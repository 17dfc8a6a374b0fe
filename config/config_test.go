package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env is picked up
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestNewConfigDefaults(t *testing.T) {
	inTempDir(t)
	for _, key := range []string{"PORT", "BOT_TOKEN", "DB_NAME", "ADMIN_TELEGRAM_ID", "LOW_STOCK_THRESHOLD", "MAXX_ENV", "RATE_LIMIT_PER_SECOND"} {
		t.Setenv(key, "")
	}

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Empty(t, cfg.Token)
	assert.Equal(t, "maxxpharm.db", cfg.DBName)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, 90, cfg.LogRetentionDays)
	assert.Equal(t, 2.0, cfg.RateLimitPerSecond)
	assert.False(t, cfg.Production())
}

func TestNewConfigFromEnvironment(t *testing.T) {
	inTempDir(t)
	t.Setenv("PORT", "9090")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_TELEGRAM_ID", "800703982")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOW_STOCK_THRESHOLD", "5")
	t.Setenv("RATE_LIMIT_PER_SECOND", "0.5")
	t.Setenv("MAXX_ENV", "production")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "123:abc", cfg.Token)
	assert.Equal(t, int64(800703982), cfg.AdminTelegramID)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 0.5, cfg.RateLimitPerSecond)
	assert.True(t, cfg.Production())
}

func TestNewConfigReadsDotEnv(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("DB_NAME", "")
	os.Unsetenv("DB_NAME")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_NAME=pharm-test.db\n"), 0o644))

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "pharm-test.db", cfg.DBName)
}

func TestNewConfigRejectsBadNumbers(t *testing.T) {
	inTempDir(t)
	t.Setenv("ADMIN_TELEGRAM_ID", "admin")
	_, err := NewConfig()
	assert.Error(t, err)

	t.Setenv("ADMIN_TELEGRAM_ID", "")
	t.Setenv("RATE_LIMIT_PER_SECOND", "-1")
	_, err = NewConfig()
	assert.Error(t, err)
}
