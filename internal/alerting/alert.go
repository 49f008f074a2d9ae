package alerting

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Alert is raised when a monitor run produced high-accuracy findings
type Alert struct {
	ID              string          `json:"id"`
	MonitorID       string          `json:"monitor_id"`
	Label           string          `json:"label,omitempty"`
	RunNo           int             `json:"run_no"`
	Timestamp       time.Time       `json:"timestamp"`
	Risk            string          `json:"risk"`
	HighAccuracyPII int             `json:"high_accuracy_pii"`
	TotalPII        int             `json:"total_pii"`
	Findings        []FindingSample `json:"findings"`
}

// NewAlert builds an alert from a run summary
func NewAlert(monitorID, label string, s RunSummary, now time.Time) Alert {
	findings := make([]FindingSample, len(s.HighAccuracyFindings))
	copy(findings, s.HighAccuracyFindings)
	if len(findings) > sampleLimit {
		findings = findings[:sampleLimit]
	}
	return Alert{
		ID:              ShortID(),
		MonitorID:       monitorID,
		Label:           label,
		RunNo:           s.RunNo,
		Timestamp:       now,
		Risk:            s.HighAccuracyRisk,
		HighAccuracyPII: s.HighAccuracyPII,
		TotalPII:        s.TotalPII,
		Findings:        findings,
	}
}

// ShortID returns the first 10 hex characters of a random UUID
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
