package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.Alerts.File.Enabled = true
	cfg.Alerts.File.Path = filepath.Join(t.TempDir(), "alerts.jsonl")
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NotNil(t, a.Hub)
	svc := a.Services()
	assert.NotNil(t, svc.Hub)
	assert.Same(t, a.Scans, svc.Scans)
	assert.Same(t, a.Monitors, svc.Monitors)

	matches := a.Detector.Detect(ctx, "write to jane.doe@example.com")
	require.NotEmpty(t, matches)
	assert.Equal(t, "EMAIL", matches[0].Type)

	srv := httptest.NewServer(server.New(a.Config, svc, logger.NewNop()).Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "alerts")
	assert.Contains(t, body, "websocket")
	assert.NotContains(t, body, "cache")
}

func TestNewWithUnreachableCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Cache.Enabled = true
	cfg.Cache.RedisURL = "redis://127.0.0.1:1/0"

	a, err := New(ctx, cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.PageCache)
	assert.Nil(t, a.Services().Cache)
	assert.NotNil(t, a.Aggregator)
}

func TestNewWithoutWebSocket(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.WebSocket.Enabled = false

	a, err := New(ctx, cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.Nil(t, a.Hub)
	assert.Nil(t, a.Services().Hub)
	assert.Nil(t, a.Services().Connections)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		a.Run(runCtx)
		close(done)
	}()
	cancel()
	<-done
}

func TestNewRejectsBadPatterns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Detection.Patterns = []string{"NOT_A_PATTERN"}

	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestReloadThresholds(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	reloaded := testConfig(t)
	reloaded.Alerts.Thresholds = map[string]float64{"regex": 0.5}
	a.ReloadThresholds(reloaded)
	assert.Equal(t, 0.5, a.Gate.Thresholds()["regex"])

	reloaded.Alerts.Thresholds = nil
	a.ReloadThresholds(reloaded)
	assert.Equal(t, 0.85, a.Gate.Thresholds()["regex"])
}
