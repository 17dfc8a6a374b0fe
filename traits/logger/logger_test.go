package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bot.log")

	log, err := NewLogger("info", file)
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("order confirmed")
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"order confirmed"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("loud", "")
	assert.Error(t, err)
}
