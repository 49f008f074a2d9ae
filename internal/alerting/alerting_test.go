package alerting

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	g := NewGate(nil)

	t.Run("Defaults", func(t *testing.T) {
		assert.True(t, g.Qualifies("regex", 0.85))
		assert.True(t, g.Qualifies("REGEX", 0.95))
		assert.False(t, g.Qualifies("regex", 0.84))
		assert.True(t, g.Qualifies("transformer", 0.93))
		assert.False(t, g.Qualifies("transformer", 0.91))
		assert.False(t, g.Qualifies("statistical", 1.0))
	})

	t.Run("HotReplace", func(t *testing.T) {
		g := NewGate(nil)
		g.SetThresholds(map[string]float64{"Statistical": 0.7})
		assert.True(t, g.Qualifies("statistical", 0.75))
		assert.False(t, g.Qualifies("regex", 0.99))
		assert.Equal(t, map[string]float64{"statistical": 0.7}, g.Thresholds())
	})
}

func match(piiType, method string, sev privacy.Severity, conf float64) privacy.Match {
	return privacy.Match{Type: piiType, Value: "value-" + piiType, MaskedValue: "val***", Method: method, Severity: sev, Confidence: conf}
}

func TestSummarize(t *testing.T) {
	gate := NewGate(nil)

	t.Run("CountsAndHighAccuracy", func(t *testing.T) {
		results := []acquire.SourceResult{
			{Source: "web", URL: "https://a.example", Findings: []privacy.Match{
				match("EMAIL", "regex", privacy.SeverityHigh, 0.95),
				match("DOB", "regex", privacy.SeverityMedium, 0.65),
			}},
			{Source: "web", Error: "timeout"},
			{Source: "web", Title: "Profile", Findings: []privacy.Match{
				match("PERSON_NAME", "transformer", privacy.SeverityHigh, 0.97),
				match("PERSON_NAME", "statistical", privacy.SeverityHigh, 0.75),
			}},
		}

		s := Summarize(results, gate)
		assert.Equal(t, 4, s.TotalPII)
		assert.Equal(t, 2, s.TotalSources)
		assert.Equal(t, map[string]int{"regex": 2, "transformer": 1, "statistical": 1}, s.ByMethod)
		assert.Equal(t, map[string]int{"HIGH": 3, "MEDIUM": 1}, s.BySeverity)
		assert.Equal(t, RiskHigh, s.OverallRisk)
		assert.Len(t, s.TopFindings, 4)
		assert.Equal(t, "https://a.example", s.TopFindings[0].Source)
		assert.Equal(t, "Profile", s.TopFindings[2].Source)

		assert.Equal(t, 2, s.HighAccuracyPII)
		assert.Equal(t, map[string]int{"regex": 1, "transformer": 1}, s.HighAccuracyByMethod)
		assert.Equal(t, RiskHigh, s.HighAccuracyRisk)
		assert.True(t, s.AlertReady)
		assert.Equal(t, 0.95, s.HighAccuracyFindings[0].Confidence)
	})

	t.Run("SamplesCappedCountsNot", func(t *testing.T) {
		var findings []privacy.Match
		for i := 0; i < 25; i++ {
			findings = append(findings, match("SSN", "regex", privacy.SeverityCritical, 0.9))
		}
		s := Summarize([]acquire.SourceResult{{Source: "web", Findings: findings}}, gate)
		assert.Equal(t, 25, s.TotalPII)
		assert.Equal(t, 25, s.HighAccuracyPII)
		assert.Len(t, s.TopFindings, 10)
		assert.Len(t, s.HighAccuracyFindings, 10)
		assert.Equal(t, RiskCritical, s.OverallRisk)
	})

	t.Run("OnlyErrors", func(t *testing.T) {
		s := Summarize([]acquire.SourceResult{{Source: "web", Error: "HTTP 500"}}, gate)
		assert.Zero(t, s.TotalPII)
		assert.Zero(t, s.TotalSources)
		assert.Equal(t, RiskLow, s.OverallRisk)
		assert.False(t, s.AlertReady)
		assert.NotNil(t, s.TopFindings)
	})
}

func TestRiskFromSeverity(t *testing.T) {
	assert.Equal(t, RiskLow, RiskFromSeverity(map[string]int{}))
	assert.Equal(t, RiskLow, RiskFromSeverity(map[string]int{"LOW": 3}))
	assert.Equal(t, RiskMedium, RiskFromSeverity(map[string]int{"MEDIUM": 1, "LOW": 3}))
	assert.Equal(t, RiskCritical, RiskFromSeverity(map[string]int{"CRITICAL": 1, "HIGH": 3}))
}

func TestNewAlert(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := RunSummary{TotalPII: 7, HighAccuracyPII: 2, HighAccuracyRisk: RiskCritical, RunNo: 3,
		HighAccuracyFindings: []FindingSample{{Type: "SSN"}, {Type: "EMAIL"}}}
	a := NewAlert("mon1", `MONITOR WEB: "jane"`, s, now)

	assert.Len(t, a.ID, 10)
	assert.Equal(t, "mon1", a.MonitorID)
	assert.Equal(t, 3, a.RunNo)
	assert.Equal(t, RiskCritical, a.Risk)
	assert.Equal(t, 7, a.TotalPII)
	assert.Len(t, a.Findings, 2)
	assert.NotEqual(t, a.ID, ShortID())
}

type fakeSink struct {
	mu     sync.Mutex
	name   string
	fail   bool
	alerts []Alert
	closed bool
}

func (f *fakeSink) Name() string { return f.name }
func (f *fakeSink) Deliver(_ context.Context, a *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink down")
	}
	f.alerts = append(f.alerts, *a)
	return nil
}
func (f *fakeSink) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestDispatcher(t *testing.T) {
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", fail: true}
	d := NewDispatcher(DispatcherConfig{QueueSize: 10, Workers: 2}, []Sink{good, bad}, logger.NewNop())

	d.Dispatch(Alert{ID: "a1"})
	d.Dispatch(Alert{ID: "a2"})
	d.Close(context.Background())
	d.Dispatch(Alert{ID: "late"})

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, uint64(2), stats.Delivered["good"])
	assert.Equal(t, uint64(2), stats.Failed["bad"])
	assert.Len(t, good.alerts, 2)
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "alerts.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, s.Deliver(context.Background(), &Alert{ID: "one", RunNo: 1}))
	require.NoError(t, s.Deliver(context.Background(), &Alert{ID: "two", RunNo: 2}))
	require.NoError(t, s.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var a Alert
		require.NoError(t, json.Unmarshal(sc.Bytes(), &a))
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"one", "two"}, ids)
}

func TestWebhookSink(t *testing.T) {
	t.Run("RetriesUntilSuccess", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			var a Alert
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&a))
			assert.Equal(t, "hook", a.ID)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		s, err := NewWebhookSink(srv.URL, time.Second)
		require.NoError(t, err)
		require.NoError(t, s.Deliver(context.Background(), &Alert{ID: "hook"}))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("GivesUp", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		s, err := NewWebhookSink(srv.URL, time.Second)
		require.NoError(t, err)
		assert.Error(t, s.Deliver(context.Background(), &Alert{ID: "hook"}))
	})

	t.Run("EmptyURL", func(t *testing.T) {
		_, err := NewWebhookSink("", 0)
		assert.Error(t, err)
	})
}

func TestPostgresHelpers(t *testing.T) {
	_, err := NewPostgresSink(context.Background(), "postgres://u:p@localhost/db", "alerts; DROP TABLE x", 1)
	assert.ErrorContains(t, err, "invalid alert table name")

	assert.Equal(t, "postgres://user:***@db:5432/app", maskDatabaseURL("postgres://user:secret@db:5432/app"))
	assert.Equal(t, "postgres://db/app", maskDatabaseURL("postgres://db/app"))

	row, err := toRow(&Alert{ID: "x", Findings: []FindingSample{{Type: "SSN"}}})
	require.NoError(t, err)
	assert.Contains(t, row.Findings, `"type":"SSN"`)
}
