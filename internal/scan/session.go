package scan

import (
	"sync"
	"time"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/events"
	"github.com/raaihank/piiwatch/internal/logger"
)

// Status is the lifecycle state of a scan session
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions can happen
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Session is a snapshot of a one-shot web scan
type Session struct {
	ID          string                 `json:"scan_id"`
	Query       string                 `json:"query"`
	MaxResults  int                    `json:"max_results"`
	Status      Status                 `json:"status"`
	Progress    int                    `json:"progress"`
	Log         []string               `json:"log"`
	Findings    []acquire.SourceResult `json:"findings"`
	TotalPII    int                    `json:"total_pii"`
	OverallRisk string                 `json:"overall_risk,omitempty"`
	BySeverity  map[string]int         `json:"by_severity,omitempty"`
	ByMethod    map[string]int         `json:"by_method,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// entity is the live, lock-guarded session owned by its task goroutine
type entity struct {
	mu     sync.RWMutex
	s      Session
	events *events.Log
	now    func() time.Time
}

func (e *entity) snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.s
	out.Log = append([]string(nil), e.s.Log...)
	out.Findings = append([]acquire.SourceResult(nil), e.s.Findings...)
	out.BySeverity = copyCounts(e.s.BySeverity)
	out.ByMethod = copyCounts(e.s.ByMethod)
	if e.s.CompletedAt != nil {
		t := *e.s.CompletedAt
		out.CompletedAt = &t
	}
	if out.Log == nil {
		out.Log = []string{}
	}
	if out.Findings == nil {
		out.Findings = []acquire.SourceResult{}
	}
	return out
}

func (e *entity) status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.s.Status
}

// logLine appends a timestamped line and emits it as a log event
func (e *entity) logLine(msg string) {
	line := logger.Line(e.now(), msg)
	e.mu.Lock()
	e.s.Log = append(e.s.Log, line)
	e.mu.Unlock()
	e.events.Append(events.TypeLog, map[string]string{"message": line})
}

func (e *entity) progress(pct int, msg string) {
	e.mu.Lock()
	if pct > e.s.Progress {
		e.s.Progress = pct
	}
	e.mu.Unlock()
	e.events.Append(events.TypeProgress, map[string]interface{}{"progress": pct, "message": msg})
}

func copyCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
