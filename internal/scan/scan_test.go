package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/events"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	detector *privacy.Detector
	web      func(ctx context.Context, query string) ([]acquire.SourceResult, error)
	social   []acquire.SourceResult
	email    []acquire.SourceResult
	block    chan struct{}
}

func (f *fakeSource) Web(ctx context.Context, query string, n int, sink acquire.LogSink) ([]acquire.SourceResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if sink != nil {
		sink.Log("Initiating deep search")
	}
	return f.web(ctx, query)
}

func (f *fakeSource) URL(ctx context.Context, url string, _ acquire.LogSink) (acquire.SourceResult, error) {
	return f.result(ctx, acquire.SourceURL, "mail jane.doe@example.com"), nil
}

func (f *fakeSource) Social(context.Context, string, string, acquire.LogSink) ([]acquire.SourceResult, error) {
	return f.social, nil
}

func (f *fakeSource) Email(context.Context, string, acquire.LogSink) ([]acquire.SourceResult, error) {
	return f.email, nil
}

func (f *fakeSource) result(ctx context.Context, source, text string) acquire.SourceResult {
	matches := f.detector.Detect(ctx, text)
	return acquire.SourceResult{
		Source:           source,
		PIICount:         len(matches),
		Findings:         matches,
		DetectionMethods: acquire.MethodCounts(matches),
	}
}

func newManager(t *testing.T, src *fakeSource) (*Manager, *stats.Recorder) {
	t.Helper()
	d, err := privacy.New(config.GetDefaults().Detection, logger.NewNop())
	require.NoError(t, err)
	src.detector = d
	rec := stats.NewRecorder(0, nil)
	m := NewManager(Config{Source: src, Analyzer: d, Stats: rec}, logger.NewNop())
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, rec
}

func waitDone(t *testing.T, m *Manager, id string) Session {
	t.Helper()
	log, err := m.Events(id)
	require.NoError(t, err)
	select {
	case <-log.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish")
	}
	s, err := m.Get(id)
	require.NoError(t, err)
	return s
}

func eventTypes(log *events.Log) []string {
	var out []string
	for _, ev := range log.Since(0) {
		out = append(out, ev.Type)
	}
	return out
}

func TestManagerStart(t *testing.T) {
	src := &fakeSource{}
	src.web = func(ctx context.Context, _ string) ([]acquire.SourceResult, error) {
		return []acquire.SourceResult{
			src.result(ctx, acquire.SourceWeb, "SSN 123-45-6789 and jane.doe@example.com"),
			{Source: acquire.SourceWeb, Error: "Tavily search timed out"},
		}, nil
	}
	m, rec := newManager(t, src)

	started, err := m.Start(StartRequest{Query: "  jane doe  "})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, started.Status)
	assert.Equal(t, 5, started.MaxResults)
	assert.Len(t, started.ID, 8)

	s := waitDone(t, m, started.ID)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, 100, s.Progress)
	assert.Equal(t, 2, s.TotalPII)
	assert.Equal(t, "CRITICAL", s.OverallRisk)
	assert.Len(t, s.Findings, 2)
	assert.NotNil(t, s.CompletedAt)
	require.Len(t, s.Log, 3)
	assert.Contains(t, s.Log[0], `Scan started: "jane doe"`)
	assert.Contains(t, s.Log[2], "Complete: 2 PII across 1 sources | Risk: CRITICAL")

	log, _ := m.Events(started.ID)
	assert.Equal(t, []string{"log", "progress", "log", "progress", "progress", "log", "completed"}, eventTypes(log))
	all := log.Since(0)
	final := all[4].Data.(map[string]interface{})
	assert.Equal(t, 100, final["progress"])
	last := all[6].Data.(map[string]interface{})
	assert.Equal(t, 2, last["total_findings"])

	snap := rec.Snapshot(m.Active(), 0)
	assert.Equal(t, 1, snap.TotalScans)
	assert.Equal(t, "jane doe", snap.RecentScans[0].Query)
	assert.Zero(t, snap.ActiveScans)
}

func TestManagerValidation(t *testing.T) {
	m, _ := newManager(t, &fakeSource{})
	for _, req := range []StartRequest{{Query: " "}, {Query: "q", MaxResults: 21}, {Query: "q", MaxResults: -1}} {
		_, err := m.Start(req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}

	_, err := m.Get("missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = m.Events("missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestManagerFailures(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		m, rec := newManager(t, &fakeSource{web: func(context.Context, string) ([]acquire.SourceResult, error) {
			return nil, errors.New("search exploded")
		}})
		started, err := m.Start(StartRequest{Query: "q"})
		require.NoError(t, err)

		s := waitDone(t, m, started.ID)
		assert.Equal(t, StatusError, s.Status)
		assert.Equal(t, "search exploded", s.Error)
		assert.Contains(t, s.Log[len(s.Log)-1], "ERROR: search exploded")

		log, _ := m.Events(started.ID)
		types := eventTypes(log)
		assert.Equal(t, "error", types[len(types)-1])
		assert.Zero(t, rec.Snapshot(0, 0).TotalScans)
	})

	t.Run("Panic", func(t *testing.T) {
		m, _ := newManager(t, &fakeSource{web: func(context.Context, string) ([]acquire.SourceResult, error) {
			panic("boom")
		}})
		started, err := m.Start(StartRequest{Query: "q"})
		require.NoError(t, err)

		s := waitDone(t, m, started.ID)
		assert.Equal(t, StatusError, s.Status)
		assert.Equal(t, "panic: boom", s.Error)
	})

	t.Run("Shutdown", func(t *testing.T) {
		src := &fakeSource{block: make(chan struct{})}
		m, _ := newManager(t, src)
		started, err := m.Start(StartRequest{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, 1, m.Active())

		require.NoError(t, m.Close(context.Background()))
		s, err := m.Get(started.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusError, s.Status)
		assert.Equal(t, context.Canceled.Error(), s.Error)
	})
}

func TestSnapshotIsolation(t *testing.T) {
	src := &fakeSource{}
	src.web = func(context.Context, string) ([]acquire.SourceResult, error) { return nil, nil }
	m, _ := newManager(t, src)
	started, err := m.Start(StartRequest{Query: "q"})
	require.NoError(t, err)
	waitDone(t, m, started.ID)

	a, _ := m.Get(started.ID)
	a.Log[0] = "mutated"
	b, _ := m.Get(started.ID)
	assert.NotEqual(t, "mutated", b.Log[0])
	assert.NotNil(t, b.Findings)
}

func TestDirectAnalysis(t *testing.T) {
	src := &fakeSource{}
	m, rec := newManager(t, src)
	ctx := context.Background()

	t.Run("URL", func(t *testing.T) {
		_, err := m.ScanURL(ctx, "ftp://example.com")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

		res, err := m.ScanURL(ctx, "https://example.com/about")
		require.NoError(t, err)
		assert.Equal(t, 1, res.PIICount)
		assert.Equal(t, "URL: https://example.com/about", rec.Snapshot(0, 0).RecentScans[0].Query)
		assert.Equal(t, "HIGH", rec.Snapshot(0, 0).RecentScans[0].OverallRisk)
	})

	t.Run("SocialNotFound", func(t *testing.T) {
		_, err := m.ScanSocial(ctx, "twitter", "@nobody")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		_, err = m.ScanSocial(ctx, "", "nobody")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("Social", func(t *testing.T) {
		src.social = []acquire.SourceResult{
			{Source: "direct-twitter", PIICount: 2},
			{Source: "direct-twitter", Error: "Twitter API keys required for live scan.", PIICount: 9},
		}
		results, err := m.ScanSocial(ctx, "twitter", "@jane")
		require.NoError(t, err)
		assert.Len(t, results, 2)
		recent := rec.Snapshot(0, 0).RecentScans[0]
		assert.Equal(t, "SOCIAL DISCOVERY: @jane", recent.Query)
		assert.Equal(t, 2, recent.TotalFindings)
	})

	t.Run("Email", func(t *testing.T) {
		_, err := m.ScanEmail(ctx, "jane@example.com")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		src.email = []acquire.SourceResult{{Source: acquire.SourceEmailDiscovery}}
		results, err := m.ScanEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Equal(t, "LOW", rec.Snapshot(0, 0).RecentScans[0].OverallRisk)
	})

	t.Run("File", func(t *testing.T) {
		report := m.AnalyzeFile(ctx, "dump.txt", []byte("Caf\xe9 owner SSN 123-45-6789"))
		assert.Equal(t, "dump.txt", report.Filename)
		assert.Equal(t, 26, report.FileSize)
		assert.Equal(t, 27, report.ContentLength)
		assert.Equal(t, 1, report.PIICount)
		assert.Equal(t, 1, report.BySeverity["CRITICAL"])
		assert.Equal(t, "CRITICAL", rec.Snapshot(0, 0).RecentScans[0].OverallRisk)
	})

	t.Run("Text", func(t *testing.T) {
		before := rec.Snapshot(0, 0).TotalScans
		report := m.AnalyzeText(ctx, "write to jane.doe@example.com")
		assert.Equal(t, 1, report.TotalFindings)
		assert.Equal(t, 1, report.ByMethod["regex"])
		assert.Equal(t, before, rec.Snapshot(0, 0).TotalScans)

		empty := m.AnalyzeText(ctx, "")
		assert.NotNil(t, empty.Findings)
	})
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "café", DecodeText([]byte("café")))
	assert.Equal(t, "café", DecodeText([]byte{'c', 'a', 'f', 0xe9}))
}
