package scan

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

// Source is the acquisition surface a scan needs
type Source interface {
	Web(ctx context.Context, query string, maxResults int, sink acquire.LogSink) ([]acquire.SourceResult, error)
	URL(ctx context.Context, url string, sink acquire.LogSink) (acquire.SourceResult, error)
	Social(ctx context.Context, platform, handle string, sink acquire.LogSink) ([]acquire.SourceResult, error)
	Email(ctx context.Context, email string, sink acquire.LogSink) ([]acquire.SourceResult, error)
}

// StartRequest starts a web scan
type StartRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Config holds Manager dependencies and limits
type Config struct {
	Source            Source
	Analyzer          acquire.Analyzer
	Gate              *alerting.Gate
	Stats             *stats.Recorder
	Forwarder         events.Forwarder
	MaxEntries        int
	DefaultMaxResults int
	Now               func() time.Time
}

// Manager runs one-shot scans, one goroutine per scan
type Manager struct {
	source            Source
	analyzer          acquire.Analyzer
	gate              *alerting.Gate
	stats             *stats.Recorder
	fwd               events.Forwarder
	defaultMaxResults int
	now               func() time.Time
	sessions          store.Store[*entity]
	logger            *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a scan manager
func NewManager(cfg Config, log *logger.Logger) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = 5
	}
	if cfg.Gate == nil {
		cfg.Gate = alerting.NewGate(nil)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewRecorder(0, cfg.Now)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		source:            cfg.Source,
		analyzer:          cfg.Analyzer,
		gate:              cfg.Gate,
		stats:             cfg.Stats,
		fwd:               cfg.Forwarder,
		defaultMaxResults: cfg.DefaultMaxResults,
		now:               cfg.Now,
		sessions: store.NewMemory(cfg.MaxEntries, func(e *entity) bool {
			return !e.status().Terminal()
		}),
		logger: log.WithComponent("scan"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start validates the request and spawns the scan task
func (m *Manager) Start(req StartRequest) (Session, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Session{}, apperr.Validation("query is required")
	}
	if req.MaxResults == 0 {
		req.MaxResults = m.defaultMaxResults
	}
	if req.MaxResults < 1 || req.MaxResults > acquire.MaxSearchResults {
		return Session{}, apperr.Validation("max_results must be between 1 and %d", acquire.MaxSearchResults)
	}

	id := newID()
	e := &entity{
		s: Session{
			ID:         id,
			Query:      req.Query,
			MaxResults: req.MaxResults,
			Status:     StatusRunning,
			StartedAt:  m.now(),
		},
		events: events.NewLog("scan", id, m.fwd, m.now),
		now:    m.now,
	}
	m.sessions.Put(id, e)
	e.logLine(fmt.Sprintf("Scan started: %q", req.Query))

	m.wg.Add(1)
	go m.run(e, req)

	m.logger.Info("Scan started", zap.String("scan_id", id), zap.Int("max_results", req.MaxResults))
	return e.snapshot(), nil
}

func (m *Manager) run(e *entity, req StartRequest) {
	defer m.wg.Done()
	log := m.logger.WithEntity("scan", e.s.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Scan panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			m.fail(e, fmt.Errorf("panic: %v", r))
		}
	}()

	e.progress(10, "Searching web...")
	results, err := m.source.Web(m.ctx, req.Query, req.MaxResults, acquire.LogFunc(e.logLine))
	if err != nil {
		log.Error("Scan failed", zap.Error(err))
		m.fail(e, err)
		return
	}

	e.progress(90, "Analyzing results...")
	summary := alerting.Summarize(results, m.gate)
	completed := m.now()

	e.mu.Lock()
	e.s.Status = StatusCompleted
	e.s.Findings = results
	e.s.Progress = 100
	e.s.TotalPII = summary.TotalPII
	e.s.OverallRisk = summary.OverallRisk
	e.s.BySeverity = summary.BySeverity
	e.s.ByMethod = summary.ByMethod
	e.s.CompletedAt = &completed
	e.mu.Unlock()

	m.stats.Record(stats.Record{
		ID:            e.s.ID,
		Query:         req.Query,
		TotalFindings: summary.TotalPII,
		OverallRisk:   summary.OverallRisk,
		Timestamp:     completed,
	})

	e.events.Append(events.TypeProgress, map[string]interface{}{"progress": 100, "message": "Analysis complete"})
	e.logLine(fmt.Sprintf("Complete: %d PII across %d sources | Risk: %s",
		summary.TotalPII, summary.TotalSources, summary.OverallRisk))
	e.events.Append(events.TypeCompleted, map[string]interface{}{
		"total_findings": summary.TotalPII,
		"overall_risk":   summary.OverallRisk,
	})
	e.events.Close()
	log.Info("Scan completed",
		zap.Int("total_pii", summary.TotalPII),
		zap.String("overall_risk", summary.OverallRisk))
}

// fail moves the session to its terminal error state
func (m *Manager) fail(e *entity, err error) {
	completed := m.now()
	e.mu.Lock()
	if e.s.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	e.s.Status = StatusError
	e.s.Error = err.Error()
	e.s.CompletedAt = &completed
	e.mu.Unlock()

	e.logLine("ERROR: " + err.Error())
	e.events.Append(events.TypeError, map[string]string{"message": err.Error()})
	e.events.Close()
}

// Get returns a snapshot of the session
func (m *Manager) Get(id string) (Session, error) {
	e, ok := m.sessions.Get(id)
	if !ok {
		return Session{}, apperr.NotFound("scan", id)
	}
	return e.snapshot(), nil
}

// Events returns the session's event log for streaming
func (m *Manager) Events(id string) (*events.Log, error) {
	e, ok := m.sessions.Get(id)
	if !ok {
		return nil, apperr.NotFound("scan", id)
	}
	return e.events, nil
}

// Active counts running sessions
func (m *Manager) Active() int {
	n := 0
	for _, e := range m.sessions.List() {
		if e.status() == StatusRunning {
			n++
		}
	}
	return n
}

// Close cancels running scans and waits for their goroutines
func (m *Manager) Close(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func shortID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
