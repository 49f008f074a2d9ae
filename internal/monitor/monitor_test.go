package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/alerting"
	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	sleeps   []time.Duration
	block    bool
	sleeping chan struct{}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), sleeping: make(chan struct{}, 16)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	block := c.block
	c.mu.Unlock()

	if block {
		c.sleeping <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type fakeExecutor struct {
	mu         sync.Mutex
	targets    []acquire.Target
	confidence float64
	err        error
	panicMsg   string
}

func (f *fakeExecutor) Execute(_ context.Context, t acquire.Target, sink acquire.LogSink) ([]acquire.SourceResult, error) {
	f.mu.Lock()
	f.targets = append(f.targets, t)
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	sink.Log("Web scan")
	finding := privacy.Match{Type: "EMAIL", MaskedValue: "ja***@example.com", Confidence: f.confidence, Severity: privacy.SeverityHigh, Method: privacy.MethodRegex}
	return []acquire.SourceResult{
		{Source: acquire.SourceWeb, URL: "https://a.example", PIICount: 1, Findings: []privacy.Match{finding}},
		{Source: acquire.SourceWeb, Error: "Tavily API error 500"},
	}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (d *recordingDispatcher) Dispatch(a alerting.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, a)
}

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s := NewScheduler(cfg, logger.NewNop())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func waitTerminal(t *testing.T, s *Scheduler, id string) Monitor {
	t.Helper()
	log, err := s.Events(id)
	require.NoError(t, err)
	select {
	case <-log.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not finish")
	}
	m, err := s.Get(id)
	require.NoError(t, err)
	return m
}

func eventTypes(t *testing.T, s *Scheduler, id string) []string {
	log, err := s.Events(id)
	require.NoError(t, err)
	var out []string
	for _, ev := range log.Since(0) {
		out = append(out, ev.Type)
	}
	return out
}

func TestSchedulerCompletes(t *testing.T) {
	clock := newClock()
	exec := &fakeExecutor{confidence: 0.95}
	disp := &recordingDispatcher{}
	rec := stats.NewRecorder(0, clock.Now)
	s := newScheduler(t, Config{Executor: exec, Dispatcher: disp, Stats: rec, Clock: clock})

	started, err := s.Start(Request{Mode: " WEB ", Query: "jane doe", IntervalSeconds: 30, DurationMinutes: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, started.Status)
	assert.Equal(t, "web", started.Mode)
	assert.Equal(t, 5, started.Config.MaxResults)
	assert.Equal(t, started.StartedAt.Add(time.Minute), started.EndsAt)

	m := waitTerminal(t, s, started.ID)
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, 2, m.RunCount)
	assert.Equal(t, 2, m.TotalFindings)
	assert.Equal(t, 2, m.AlertsSent)
	assert.Nil(t, m.NextRunAt)
	require.Len(t, m.History, 2)
	assert.Equal(t, 2, m.History[1].RunNo)
	assert.Equal(t, 1, m.LastSummary.TotalSources)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, clock.sleeps)
	assert.Equal(t, acquire.Target{Mode: acquire.ModeWeb, Query: "jane doe", MaxResults: 5}, exec.targets[0])

	require.Len(t, m.Alerts, 2)
	assert.Equal(t, "HIGH", m.Alerts[0].Risk)
	assert.Equal(t, started.ID, m.Alerts[0].MonitorID)
	assert.Len(t, disp.alerts, 2)

	assert.Contains(t, m.Log[0], "Monitoring started for 1 min, interval 30 sec, mode=web")
	assert.Contains(t, m.Log[len(m.Log)-1], "Monitoring completed")

	types := eventTypes(t, s, started.ID)
	assert.Equal(t, "completed", types[len(types)-1])
	assert.Contains(t, types, "run_started")
	assert.Contains(t, types, "run_completed")
	assert.Contains(t, types, "alert")

	snap := rec.Snapshot(0, s.Active())
	assert.Equal(t, 2, snap.TotalScans)
	assert.Equal(t, fmt.Sprintf("monitor-%s-2", started.ID), snap.RecentScans[0].ID)
	assert.Equal(t, `MONITOR WEB: "jane doe"`, snap.RecentScans[0].Query)
	assert.Zero(t, snap.ActiveMonitors)
}

func TestSchedulerCapsHistoryAndAlerts(t *testing.T) {
	clock := newClock()
	s := newScheduler(t, Config{
		Executor:     &fakeExecutor{confidence: 0.9},
		Clock:        clock,
		HistoryLimit: 3,
		AlertLimit:   2,
	})
	started, err := s.Start(Request{Mode: "url", URL: "https://a.example", IntervalSeconds: 30, DurationMinutes: 5})
	require.NoError(t, err)

	m := waitTerminal(t, s, started.ID)
	assert.Equal(t, 10, m.RunCount)
	require.Len(t, m.History, 3)
	assert.Equal(t, 8, m.History[0].RunNo)
	assert.Equal(t, 10, m.AlertsSent)
	require.Len(t, m.Alerts, 2)
	assert.Equal(t, 10, m.Alerts[1].RunNo)
}

func TestSchedulerSkipsLowConfidenceAlerts(t *testing.T) {
	s := newScheduler(t, Config{Executor: &fakeExecutor{confidence: 0.78}, Clock: newClock()})
	started, err := s.Start(Request{Mode: "email", Email: "jane@example.com", IntervalSeconds: 60, DurationMinutes: 1})
	require.NoError(t, err)

	m := waitTerminal(t, s, started.ID)
	assert.Equal(t, 1, m.RunCount)
	assert.Zero(t, m.AlertsSent)
	assert.Contains(t, m.Log[len(m.Log)-2], "PII found but alert skipped")
	assert.NotContains(t, eventTypes(t, s, started.ID), "alert")
}

func TestSchedulerStop(t *testing.T) {
	clock := newClock()
	clock.block = true
	s := newScheduler(t, Config{Executor: &fakeExecutor{confidence: 0.5}, Clock: clock})

	started, err := s.Start(Request{Mode: "social", Platform: "twitter", Handle: "@jane"})
	require.NoError(t, err)
	assert.Equal(t, 120, started.IntervalSeconds)
	assert.Equal(t, 60, started.DurationMinutes)

	select {
	case <-clock.sleeping:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor never slept")
	}
	assert.Equal(t, 1, s.Active())
	running, _ := s.Get(started.ID)
	require.NotNil(t, running.NextRunAt)
	assert.Equal(t, running.LastRunAt.Add(120*time.Second), *running.NextRunAt)

	status, err := s.Stop(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopping, status)

	m := waitTerminal(t, s, started.ID)
	assert.Equal(t, StatusStopped, m.Status)
	assert.Contains(t, m.Log[len(m.Log)-1], "Monitoring stopped by user")
	types := eventTypes(t, s, started.ID)
	assert.Equal(t, "stopped", types[len(types)-1])

	status, err = s.Stop(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, status)

	_, err = s.Stop("missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = s.Get("missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// gatedExecutor blocks each run until released
type gatedExecutor struct {
	fakeExecutor
	entered chan struct{}
	release chan struct{}
}

func (g *gatedExecutor) Execute(ctx context.Context, t acquire.Target, sink acquire.LogSink) ([]acquire.SourceResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeExecutor.Execute(ctx, t, sink)
}

func TestSchedulerDeadlineWinsOverStopInFinalRun(t *testing.T) {
	clock := newClock()
	exec := &gatedExecutor{
		fakeExecutor: fakeExecutor{confidence: 0.5},
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	s := newScheduler(t, Config{Executor: exec, Clock: clock})

	started, err := s.Start(Request{Mode: "web", Query: "jane doe", IntervalSeconds: 30, DurationMinutes: 1})
	require.NoError(t, err)

	select {
	case <-exec.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	// the run outlives the deadline and ignores cancellation
	clock.mu.Lock()
	clock.now = clock.now.Add(2 * time.Minute)
	clock.mu.Unlock()

	status, err := s.Stop(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopping, status)
	close(exec.release)

	m := waitTerminal(t, s, started.ID)
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, 1, m.RunCount)
	assert.Contains(t, m.Log[len(m.Log)-1], "Monitoring completed")
	types := eventTypes(t, s, started.ID)
	assert.Equal(t, "completed", types[len(types)-1])
	assert.NotContains(t, types, "stopped")
}

func TestSchedulerFailures(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		s := newScheduler(t, Config{Executor: &fakeExecutor{err: errors.New("provider down")}, Clock: newClock()})
		started, err := s.Start(Request{Mode: "web", Query: "q"})
		require.NoError(t, err)

		m := waitTerminal(t, s, started.ID)
		assert.Equal(t, StatusError, m.Status)
		assert.Equal(t, "provider down", m.Error)
		assert.Contains(t, m.Log[len(m.Log)-1], "ERROR: provider down")
		types := eventTypes(t, s, started.ID)
		assert.Equal(t, "error", types[len(types)-1])
	})

	t.Run("Panic", func(t *testing.T) {
		s := newScheduler(t, Config{Executor: &fakeExecutor{panicMsg: "nil map"}, Clock: newClock()})
		started, err := s.Start(Request{Mode: "web", Query: "q"})
		require.NoError(t, err)

		m := waitTerminal(t, s, started.ID)
		assert.Equal(t, StatusError, m.Status)
		assert.Equal(t, "panic: nil map", m.Error)
	})
}

func TestSchedulerList(t *testing.T) {
	clock := newClock()
	clock.block = true
	s := newScheduler(t, Config{Executor: &fakeExecutor{}, Clock: clock, ListLimit: 2})

	var ids []string
	for i := 0; i < 3; i++ {
		m, err := s.Start(Request{Mode: "web", Query: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	assert.Equal(t, 3, s.Active())
}

func TestRequestValidate(t *testing.T) {
	valid := []Request{
		{Mode: "web", Query: "q"},
		{Mode: "url", URL: "https://a.example"},
		{Mode: "social", Platform: "github", Handle: "jane"},
		{Mode: "email", Email: "jane@example.com"},
		{Query: "q"},
		{Mode: "all", Platform: "github", Handle: "jane"},
		{Mode: "web", Query: "q", MaxResults: 20, IntervalSeconds: 86400, DurationMinutes: 10080},
	}
	for _, r := range valid {
		assert.NoError(t, r.normalize().Validate(), "%+v", r)
	}

	invalid := map[string]Request{
		"BadMode":          {Mode: "ftp", Query: "q"},
		"WebWithoutQuery":  {Mode: "web"},
		"URLWithoutURL":    {Mode: "url"},
		"SocialNoHandle":   {Mode: "social", Platform: "github"},
		"EmailWithoutAddr": {Mode: "email"},
		"AllEmpty":         {Mode: "all"},
		"AllHalfSocial":    {Mode: "all", Platform: "github"},
		"HandleNoPlatform": {Mode: "web", Query: "q", Handle: "jane"},
		"MaxResults":       {Mode: "web", Query: "q", MaxResults: 21},
		"IntervalLow":      {Mode: "web", Query: "q", IntervalSeconds: 29},
		"IntervalHigh":     {Mode: "web", Query: "q", IntervalSeconds: 86401},
		"DurationHigh":     {Mode: "web", Query: "q", DurationMinutes: 10081},
		"DurationNegative": {Mode: "web", Query: "q", DurationMinutes: -1},
	}
	for name, r := range invalid {
		t.Run(name, func(t *testing.T) {
			err := r.normalize().Validate()
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestRequestLabel(t *testing.T) {
	cases := map[string]Request{
		`MONITOR WEB: "jane doe"`:         {Mode: "web", Query: "jane doe"},
		"MONITOR URL: https://a.example":  {Mode: "url", URL: "https://a.example"},
		"MONITOR SOCIAL: twitter @jane":   {Mode: "social", Platform: "twitter", Handle: "@jane"},
		"MONITOR EMAIL: jane@example.com": {Mode: "email", Email: "jane@example.com"},
		"MONITOR ALL: web, social, email": {Mode: "all", Query: "q", Platform: "x", Handle: "h", Email: "e@x.io"},
		"MONITOR ALL: unconfigured":       {Mode: "all"},
	}
	for want, r := range cases {
		assert.Equal(t, want, r.Label())
	}
}
