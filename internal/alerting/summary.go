package alerting

import (
	"time"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/privacy"
)

const sampleLimit = 10

// Risk levels
const (
	RiskCritical = "CRITICAL"
	RiskHigh     = "HIGH"
	RiskMedium   = "MEDIUM"
	RiskLow      = "LOW"
)

// FindingSample is the compact form of a finding kept in summaries and alerts
type FindingSample struct {
	Source      string           `json:"source"`
	Type        string           `json:"type"`
	MaskedValue string           `json:"masked_value"`
	Severity    privacy.Severity `json:"severity"`
	Method      string           `json:"method"`
	Confidence  float64          `json:"confidence,omitempty"`
}

// RunSummary aggregates one execution. Counts cover every finding; samples are capped.
type RunSummary struct {
	TotalPII     int             `json:"total_pii"`
	TotalSources int             `json:"total_sources"`
	ByMethod     map[string]int  `json:"by_method"`
	BySeverity   map[string]int  `json:"by_severity"`
	OverallRisk  string          `json:"overall_risk"`
	TopFindings  []FindingSample `json:"top_findings"`

	HighAccuracyPII        int             `json:"high_accuracy_pii"`
	HighAccuracyByMethod   map[string]int  `json:"high_accuracy_by_method"`
	HighAccuracyBySeverity map[string]int  `json:"high_accuracy_by_severity"`
	HighAccuracyRisk       string          `json:"high_accuracy_risk"`
	HighAccuracyFindings   []FindingSample `json:"high_accuracy_findings"`
	AlertReady             bool            `json:"alert_ready"`

	RunNo     int       `json:"run_no,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Summarize aggregates source results, skipping acquisition error entries
func Summarize(results []acquire.SourceResult, gate *Gate) RunSummary {
	s := RunSummary{
		ByMethod:               map[string]int{},
		BySeverity:             map[string]int{},
		TopFindings:            []FindingSample{},
		HighAccuracyByMethod:   map[string]int{},
		HighAccuracyBySeverity: map[string]int{},
		HighAccuracyFindings:   []FindingSample{},
	}

	for _, r := range results {
		if r.Failed() {
			continue
		}
		s.TotalSources++
		s.TotalPII += len(r.Findings)

		for _, f := range r.Findings {
			sev := f.Severity.String()
			s.ByMethod[f.Method]++
			s.BySeverity[sev]++

			sample := FindingSample{
				Source:      r.Label(),
				Type:        f.Type,
				MaskedValue: f.MaskedValue,
				Severity:    f.Severity,
				Method:      f.Method,
			}
			if sample.MaskedValue == "" {
				sample.MaskedValue = privacy.Mask(f.Value, f.Type)
			}
			if len(s.TopFindings) < sampleLimit {
				s.TopFindings = append(s.TopFindings, sample)
			}

			if gate != nil && gate.Qualifies(f.Method, f.Confidence) {
				s.HighAccuracyPII++
				s.HighAccuracyByMethod[f.Method]++
				s.HighAccuracyBySeverity[sev]++
				if len(s.HighAccuracyFindings) < sampleLimit {
					sample.Confidence = f.Confidence
					s.HighAccuracyFindings = append(s.HighAccuracyFindings, sample)
				}
			}
		}
	}

	s.OverallRisk = RiskFromSeverity(s.BySeverity)
	s.HighAccuracyRisk = RiskFromSeverity(s.HighAccuracyBySeverity)
	s.AlertReady = s.HighAccuracyPII > 0
	return s
}

// RiskFromSeverity picks the worst severity present, LOW when there is none
func RiskFromSeverity(bySeverity map[string]int) string {
	switch {
	case bySeverity[RiskCritical] > 0:
		return RiskCritical
	case bySeverity[RiskHigh] > 0:
		return RiskHigh
	case bySeverity[RiskMedium] > 0:
		return RiskMedium
	default:
		return RiskLow
	}
}
