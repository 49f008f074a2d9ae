package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "piiwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, validateConfig(cfg))
	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadSize)
	assert.Equal(t, 0.85, cfg.Alerts.Thresholds["regex"])
	assert.Equal(t, 0.92, cfg.Alerts.Thresholds["transformer"])
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  trusted_proxies: [10.0.0.0/8, 127.0.0.1]
detection:
  patterns: [EMAIL, SSN]
monitor:
  history_limit: 5
alerts:
  thresholds:
    regex: 0.7
  file:
    enabled: true
    path: /tmp/alerts.jsonl
fetch:
  courtesy_delay: 1s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, []string{"EMAIL", "SSN"}, cfg.Detection.Patterns)
	assert.Equal(t, 5, cfg.Monitor.HistoryLimit)
	assert.Equal(t, 50, cfg.Monitor.AlertLimit)
	assert.Equal(t, 0.7, cfg.Alerts.Thresholds["regex"])
	assert.True(t, cfg.Alerts.File.Enabled)
	assert.Equal(t, time.Second, cfg.Fetch.CourtesyDelay)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("PIIWATCH_SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Port", "server:\n  port: 70000\n"},
		{"Threshold", "alerts:\n  thresholds:\n    regex: 1.5\n"},
		{"WebhookWithoutURL", "alerts:\n  webhook:\n    enabled: true\n"},
		{"PostgresWithoutURL", "alerts:\n  postgres:\n    enabled: true\n"},
		{"LogLevel", "logging:\n  level: loud\n"},
		{"LogFormat", "logging:\n  format: xml\n"},
		{"TrustedProxy", "server:\n  trusted_proxies: [\"not-an-ip\"]\n"},
		{"StatisticalWithoutEndpoint", "recognizers:\n  statistical:\n    enabled: true\n    endpoint: \"\"\n"},
		{"TransformerScore", "recognizers:\n  transformer:\n    enabled: true\n    min_score: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "alerts:\n  thresholds:\n    regex: 0.8\n")

	reloaded := make(chan *Config, 4)
	_, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("alerts:\n  thresholds:\n    regex: 0.6\n"), 0o600))

	// a truncating write can surface as more than one event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Alerts.Thresholds["regex"] == 0.6 {
				return
			}
		case <-deadline:
			t.Fatal("configuration change was not observed")
		}
	}
}
