package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/alerting"
	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/events"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/raaihank/piiwatch/internal/store"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a monitor
type Status string

const (
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the monitor loop has exited
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted || s == StatusError
}

// Executor runs one aggregation pass over a target
type Executor interface {
	Execute(ctx context.Context, t acquire.Target, sink acquire.LogSink) ([]acquire.SourceResult, error)
}

// AlertDispatcher hands alerts to delivery sinks without blocking
type AlertDispatcher interface {
	Dispatch(alert alerting.Alert)
}

// Monitor is a snapshot of a scheduled scan
type Monitor struct {
	ID              string                `json:"monitor_id"`
	Status          Status                `json:"status"`
	Mode            string                `json:"mode"`
	Label           string                `json:"label"`
	Config          Request               `json:"config"`
	StartedAt       time.Time             `json:"started_at"`
	EndsAt          time.Time             `json:"ends_at"`
	IntervalSeconds int                   `json:"interval_seconds"`
	DurationMinutes int                   `json:"duration_minutes"`
	RunCount        int                   `json:"run_count"`
	TotalFindings   int                   `json:"total_findings"`
	AlertsSent      int                   `json:"alerts_sent"`
	LastRunAt       *time.Time            `json:"last_run_at"`
	NextRunAt       *time.Time            `json:"next_run_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	LastSummary     *alerting.RunSummary  `json:"last_summary"`
	History         []alerting.RunSummary `json:"history"`
	Alerts          []alerting.Alert      `json:"alerts"`
	Log             []string              `json:"log"`
	Error           string                `json:"error,omitempty"`
}

// Config holds Scheduler dependencies and limits
type Config struct {
	Executor     Executor
	Gate         *alerting.Gate
	Dispatcher   AlertDispatcher
	Stats        *stats.Recorder
	Forwarder    events.Forwarder
	Clock        Clock
	MaxEntries   int
	HistoryLimit int
	AlertLimit   int
	ListLimit    int
}

// Scheduler runs monitors, one goroutine each
type Scheduler struct {
	cfg      Config
	monitors store.Store[*entity]
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entity struct {
	mu     sync.RWMutex
	m      Monitor
	req    Request
	cancel context.CancelFunc
	events *events.Log
	clock  Clock
}

// NewScheduler creates a scheduler
func NewScheduler(cfg Config, log *logger.Logger) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Gate == nil {
		cfg.Gate = alerting.NewGate(nil)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewRecorder(0, cfg.Clock.Now)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	if cfg.AlertLimit <= 0 {
		cfg.AlertLimit = 50
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg: cfg,
		monitors: store.NewMemory(cfg.MaxEntries, func(e *entity) bool {
			return !e.status().Terminal()
		}),
		logger: log.WithComponent("monitor"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start validates the request and spawns the monitor loop
func (s *Scheduler) Start(req Request) (Monitor, error) {
	req = req.normalize()
	if err := req.Validate(); err != nil {
		return Monitor{}, err
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	now := s.cfg.Clock.Now()
	ctx, cancel := context.WithCancel(s.ctx)
	e := &entity{
		m: Monitor{
			ID:              id,
			Status:          StatusRunning,
			Mode:            req.Mode,
			Label:           req.Label(),
			Config:          req,
			StartedAt:       now,
			EndsAt:          now.Add(time.Duration(req.DurationMinutes) * time.Minute),
			IntervalSeconds: req.IntervalSeconds,
			DurationMinutes: req.DurationMinutes,
		},
		req:    req,
		cancel: cancel,
		events: events.NewLog("monitor", id, s.cfg.Forwarder, s.cfg.Clock.Now),
		clock:  s.cfg.Clock,
	}
	s.monitors.Put(id, e)
	e.logLine(fmt.Sprintf("Monitoring started for %d min, interval %d sec, mode=%s",
		req.DurationMinutes, req.IntervalSeconds, req.Mode))

	s.wg.Add(1)
	go s.loop(ctx, e)

	s.logger.Info("Monitor started",
		zap.String("monitor_id", id),
		zap.String("label", e.m.Label),
		zap.Time("ends_at", e.m.EndsAt))
	return e.snapshot(), nil
}

func (s *Scheduler) loop(ctx context.Context, e *entity) {
	defer s.wg.Done()
	defer e.cancel()
	log := s.logger.WithEntity("monitor", e.m.ID)

	err := s.runAll(ctx, e, log)
	switch {
	case err == nil:
		s.finish(e, StatusCompleted, "Monitoring completed", nil)
	case ctx.Err() != nil:
		s.finish(e, StatusStopped, "Monitoring stopped by user", nil)
	default:
		log.Error("Monitor failed", zap.Error(err))
		s.finish(e, StatusError, "ERROR: "+err.Error(), err)
	}
}

// runAll repeats runs until the deadline. It returns nil on reaching the
// deadline, ctx.Err() on cancellation and any other error as a failure.
func (s *Scheduler) runAll(ctx context.Context, e *entity, log *logger.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Monitor panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	clock := s.cfg.Clock
	endsAt := e.m.EndsAt
	interval := time.Duration(e.req.IntervalSeconds) * time.Second
	runNo := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !clock.Now().Before(endsAt) {
			return nil
		}

		runNo++
		if err := s.runOnce(ctx, e, runNo, log); err != nil {
			return err
		}

		// Reaching the deadline takes precedence over a stop that arrived
		// during the final run: the monitor ends completed, not stopped.
		now := clock.Now()
		remaining := endsAt.Sub(now)
		if remaining <= 0 {
			return nil
		}
		delay := interval
		if remaining < delay {
			delay = remaining
		}
		next := now.Add(delay)
		e.mu.Lock()
		e.m.NextRunAt = &next
		e.mu.Unlock()

		if err := clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, e *entity, runNo int, log *logger.Logger) error {
	started := e.clock.Now()
	e.mu.Lock()
	e.m.RunCount = runNo
	e.m.LastRunAt = &started
	e.mu.Unlock()
	e.logLine(fmt.Sprintf("Run #%d started", runNo))
	e.events.Append(events.TypeRunStarted, map[string]int{"run_no": runNo})

	results, err := s.cfg.Executor.Execute(ctx, e.req.Target(), acquire.LogFunc(e.logLine))
	if err != nil {
		return err
	}

	summary := alerting.Summarize(results, s.cfg.Gate)
	summary.RunNo = runNo
	summary.Timestamp = e.clock.Now()

	e.mu.Lock()
	last := summary
	e.m.LastSummary = &last
	e.m.TotalFindings += summary.TotalPII
	e.m.History = append(e.m.History, summary)
	if n := len(e.m.History); n > s.cfg.HistoryLimit {
		e.m.History = append([]alerting.RunSummary(nil), e.m.History[n-s.cfg.HistoryLimit:]...)
	}
	e.mu.Unlock()

	e.logLine(fmt.Sprintf("Run #%d complete: %d PII across %d sources | Risk: %s",
		runNo, summary.TotalPII, summary.TotalSources, summary.OverallRisk))
	e.events.Append(events.TypeRunCompleted, summary)

	s.cfg.Stats.Record(stats.Record{
		ID:            fmt.Sprintf("monitor-%s-%d", e.m.ID, runNo),
		Query:         e.m.Label,
		TotalFindings: summary.TotalPII,
		OverallRisk:   summary.OverallRisk,
		Timestamp:     summary.Timestamp,
	})

	switch {
	case summary.AlertReady:
		alert := alerting.NewAlert(e.m.ID, e.m.Label, summary, summary.Timestamp)
		e.mu.Lock()
		e.m.AlertsSent++
		e.m.Alerts = append(e.m.Alerts, alert)
		if n := len(e.m.Alerts); n > s.cfg.AlertLimit {
			e.m.Alerts = append([]alerting.Alert(nil), e.m.Alerts[n-s.cfg.AlertLimit:]...)
		}
		e.mu.Unlock()

		if s.cfg.Dispatcher != nil {
			s.cfg.Dispatcher.Dispatch(alert)
		}
		e.events.Append(events.TypeAlert, alert)
		e.logLine(fmt.Sprintf("IN-APP ALERT: %d high-accuracy findings | Risk: %s",
			summary.HighAccuracyPII, summary.HighAccuracyRisk))
		log.Info("Alert raised",
			zap.String("alert_id", alert.ID),
			zap.Int("run_no", runNo),
			zap.String("risk", alert.Risk))
	case summary.TotalPII > 0:
		e.logLine("PII found but alert skipped: no high-accuracy matches met the alert threshold")
	}
	return nil
}

// finish records the terminal state and emits the terminal event once
func (s *Scheduler) finish(e *entity, status Status, line string, cause error) {
	now := e.clock.Now()
	e.mu.Lock()
	if e.m.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	e.m.Status = status
	e.m.CompletedAt = &now
	e.m.NextRunAt = nil
	if cause != nil {
		e.m.Error = cause.Error()
	}
	e.mu.Unlock()

	e.logLine(line)
	switch status {
	case StatusError:
		e.events.Append(events.TypeError, map[string]string{"message": cause.Error()})
	default:
		e.events.Append(string(status), map[string]string{"status": string(status)})
	}
	e.events.Close()
	s.logger.Info("Monitor finished", zap.String("monitor_id", e.m.ID), zap.String("status", string(status)))
}

// Stop requests cancellation. Terminal monitors report their current status.
func (s *Scheduler) Stop(id string) (Status, error) {
	e, ok := s.monitors.Get(id)
	if !ok {
		return "", apperr.NotFound("monitor", id)
	}
	e.mu.Lock()
	if e.m.Status.Terminal() {
		status := e.m.Status
		e.mu.Unlock()
		return status, nil
	}
	e.m.Status = StatusStopping
	e.mu.Unlock()

	e.cancel()
	return StatusStopping, nil
}

// Get returns a snapshot of the monitor
func (s *Scheduler) Get(id string) (Monitor, error) {
	e, ok := s.monitors.Get(id)
	if !ok {
		return Monitor{}, apperr.NotFound("monitor", id)
	}
	return e.snapshot(), nil
}

// Events returns the monitor's event log for streaming
func (s *Scheduler) Events(id string) (*events.Log, error) {
	e, ok := s.monitors.Get(id)
	if !ok {
		return nil, apperr.NotFound("monitor", id)
	}
	return e.events, nil
}

// List returns the most recently started monitors, newest first
func (s *Scheduler) List() []Monitor {
	all := s.monitors.List()
	out := make([]Monitor, 0, s.cfg.ListLimit)
	for i := len(all) - 1; i >= 0 && len(out) < s.cfg.ListLimit; i-- {
		out = append(out, all[i].snapshot())
	}
	return out
}

// Active counts monitors that are running or stopping
func (s *Scheduler) Active() int {
	n := 0
	for _, e := range s.monitors.List() {
		if !e.status().Terminal() {
			n++
		}
	}
	return n
}

// Close stops every monitor and waits for the loops to exit
func (s *Scheduler) Close(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entity) status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.m.Status
}

func (e *entity) logLine(msg string) {
	line := logger.Line(e.clock.Now(), msg)
	e.mu.Lock()
	e.m.Log = append(e.m.Log, line)
	e.mu.Unlock()
	e.events.Append(events.TypeLog, map[string]string{"message": line})
}

func (e *entity) snapshot() Monitor {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.m
	out.History = append([]alerting.RunSummary{}, e.m.History...)
	out.Alerts = append([]alerting.Alert{}, e.m.Alerts...)
	out.Log = append([]string{}, e.m.Log...)
	out.LastRunAt = copyTime(e.m.LastRunAt)
	out.NextRunAt = copyTime(e.m.NextRunAt)
	out.CompletedAt = copyTime(e.m.CompletedAt)
	if e.m.LastSummary != nil {
		last := *e.m.LastSummary
		out.LastSummary = &last
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
