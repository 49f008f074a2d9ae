package stats

import (
	"sync"
	"time"

	"github.com/raaihank/piiwatch/internal/alerting"
)

const recentLimit = 10

// Record is one completed execution: a scan, a monitor run or a direct analysis
type Record struct {
	ID            string    `json:"scan_id"`
	Query         string    `json:"query"`
	TotalFindings int       `json:"total_findings"`
	OverallRisk   string    `json:"overall_risk"`
	Timestamp     time.Time `json:"timestamp"`
}

// Snapshot is the aggregate served by the stats endpoint
type Snapshot struct {
	TotalScans       int            `json:"total_scans"`
	TotalFindings    int            `json:"total_findings"`
	ActiveScans      int            `json:"active_scans"`
	ActiveMonitors   int            `json:"active_monitors"`
	RiskDistribution map[string]int `json:"risk_distribution"`
	RecentScans      []Record       `json:"recent_scans"`
}

// Recorder keeps totals for every recorded execution and a bounded history
type Recorder struct {
	mu            sync.Mutex
	history       []Record
	limit         int
	totalScans    int
	totalFindings int
	risk          map[string]int
	now           func() time.Time
}

// NewRecorder creates a recorder keeping at most limit records (0 = unbounded)
func NewRecorder(limit int, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{limit: limit, risk: map[string]int{}, now: now}
}

// Record adds an execution. A zero timestamp is stamped with the current time
// and an empty risk counts as LOW.
func (r *Recorder) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if rec.OverallRisk == "" {
		rec.OverallRisk = alerting.RiskLow
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalScans++
	r.totalFindings += rec.TotalFindings
	r.risk[rec.OverallRisk]++
	r.history = append(r.history, rec)
	if r.limit > 0 && len(r.history) > r.limit {
		r.history = append([]Record(nil), r.history[len(r.history)-r.limit:]...)
	}
}

// Snapshot returns the totals with the ten most recent records, newest first
func (r *Recorder) Snapshot(activeScans, activeMonitors int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	risk := make(map[string]int, len(r.risk))
	for k, v := range r.risk {
		risk[k] = v
	}
	recent := make([]Record, 0, recentLimit)
	for i := len(r.history) - 1; i >= 0 && len(recent) < recentLimit; i-- {
		recent = append(recent, r.history[i])
	}
	return Snapshot{
		TotalScans:       r.totalScans,
		TotalFindings:    r.totalFindings,
		ActiveScans:      activeScans,
		ActiveMonitors:   activeMonitors,
		RiskDistribution: risk,
		RecentScans:      recent,
	}
}

// RiskFromCount is the coarse risk used for direct lookups: HIGH when anything was found
func RiskFromCount(n int) string {
	if n > 0 {
		return alerting.RiskHigh
	}
	return alerting.RiskLow
}
