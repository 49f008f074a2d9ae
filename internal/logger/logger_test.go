package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("RejectsBadLevel", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Format: "json"})
		assert.Error(t, err)
	})

	t.Run("FileTee", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "app.log")
		l, err := New(Config{Level: "info", Format: "console", File: &FileConfig{Enabled: true, Path: path}})
		require.NoError(t, err)

		l.WithComponent("test").WithEntity("scan", "abc").Info("hello")
		_ = l.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"component":"test"`)
		assert.Contains(t, string(data), `"entity_id":"abc"`)
	})
}

func TestSensitiveHeaders(t *testing.T) {
	assert.True(t, isSensitiveHeader("Authorization"))
	assert.True(t, isSensitiveHeader("X-Api-Key"))
	assert.False(t, isSensitiveHeader("Content-Type"))
}

func TestLine(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "[09:05:07] Scan started", Line(ts, "Scan started"))
}
