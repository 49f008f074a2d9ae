package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/raaihank/piiwatch/internal/scan"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	t.Run("Args", func(t *testing.T) {
		out, err := run(t, "", "analyze", "mail", "jane@example.com")
		require.NoError(t, err)

		var report scan.TextReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 1, report.TotalFindings)
		assert.Equal(t, "EMAIL", report.Findings[0].Type)
	})

	t.Run("Stdin", func(t *testing.T) {
		out, err := run(t, "nothing sensitive here", "analyze", "--fail")
		require.NoError(t, err)
		assert.Contains(t, out, `"total_findings": 0`)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("reach ops@example.org"), 0o600))

		out, err := run(t, "", "analyze", "--file", path)
		require.NoError(t, err)

		var report scan.FileReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, "notes.txt", report.Filename)
		assert.Equal(t, 1, report.PIICount)
	})

	t.Run("FailOnFindings", func(t *testing.T) {
		_, err := run(t, "", "analyze", "--fail", "jane@example.com")
		assert.ErrorIs(t, err, errFindings)
	})

	t.Run("TextAndFile", func(t *testing.T) {
		_, err := run(t, "", "analyze", "--file", "x.txt", "text")
		assert.Error(t, err)
	})
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,text\n1,jane@example.com\n2,clean\n"), 0o600))
	outPath := filepath.Join(dir, "findings.jsonl")

	out, err := run(t, "", "batch", "--input", in, "--output", outPath, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Total Records:      2")
	assert.Contains(t, out, "Total Findings:     1")
	assert.Contains(t, out, "Findings written to "+outPath)

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), `"record_id":"1"`)
	assert.NotContains(t, string(written), "jane@example.com")

	_, err = run(t, "", "batch")
	assert.Error(t, err)
}

func TestCacheCommand(t *testing.T) {
	for _, sub := range []string{"clear", "stats"} {
		t.Run(sub, func(t *testing.T) {
			_, err := run(t, "", "cache", sub, "--redis-url", "redis://127.0.0.1:1/0")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to connect to Redis")
		})
	}

	t.Run("BadURL", func(t *testing.T) {
		_, err := run(t, "", "cache", "clear", "--redis-url", "not a url")
		assert.Error(t, err)
	})

	t.Run("NoArgs", func(t *testing.T) {
		_, err := run(t, "", "cache", "clear", "extra")
		assert.Error(t, err)
	})
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "piictl "))
}

func newTestToolset(t *testing.T) *toolset {
	t.Helper()
	log := logger.NewNop()
	cfg := config.GetDefaults()
	detector, err := privacy.New(cfg.Detection, log)
	require.NoError(t, err)

	recorder := stats.NewRecorder(0, nil)
	agg := acquire.NewAggregator(nil, acquire.NewHTTPFetcher(cfg.Fetch, log), detector, acquire.Options{}, log)
	scans := scan.NewManager(scan.Config{Source: agg, Analyzer: detector, Stats: recorder}, log)
	t.Cleanup(func() { _ = scans.Close(context.Background()) })
	return &toolset{scans: scans, stats: recorder}
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCPTools(t *testing.T) {
	tools := newTestToolset(t)
	ctx := context.Background()

	t.Run("AnalyzeText", func(t *testing.T) {
		res, err := tools.analyzeText(ctx, callRequest(map[string]interface{}{"text": "call jane@example.com"}))
		require.NoError(t, err)
		assert.False(t, res.IsError)

		var report scan.TextReport
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
		assert.Equal(t, 1, report.TotalFindings)
	})

	t.Run("MissingArgument", func(t *testing.T) {
		res, err := tools.analyzeText(ctx, callRequest(nil))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), `"text"`)
	})

	t.Run("ScanURL", func(t *testing.T) {
		page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><head><title>Team</title></head><body>Contact ops@example.org</body></html>")
		}))
		defer page.Close()

		res, err := tools.scanURL(ctx, callRequest(map[string]interface{}{"url": page.URL}))
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))

		var result acquire.SourceResult
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
		assert.Equal(t, "Team", result.Title)
		assert.Equal(t, 1, result.PIICount)
	})

	t.Run("ScanURLInvalid", func(t *testing.T) {
		res, err := tools.scanURL(ctx, callRequest(map[string]interface{}{"url": "ftp://example.com"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("ScanEmailInvalid", func(t *testing.T) {
		res, err := tools.scanEmail(ctx, callRequest(map[string]interface{}{"email": "nobody"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("Stats", func(t *testing.T) {
		res, err := tools.getStats(ctx, callRequest(nil))
		require.NoError(t, err)

		var snap stats.Snapshot
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &snap))
		assert.Equal(t, 1, snap.TotalScans)
	})
}

func TestNewMCPServer(t *testing.T) {
	assert.NotNil(t, newMCPServer(newTestToolset(t)))
}
