package scan

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/alerting"
	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/raaihank/piiwatch/internal/stats"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// FileReport is the analysis of an uploaded file
type FileReport struct {
	Filename      string          `json:"filename"`
	FileSize      int             `json:"file_size"`
	ContentLength int             `json:"content_length"`
	PIICount      int             `json:"pii_count"`
	Findings      []privacy.Match `json:"findings"`
	BySeverity    map[string]int  `json:"by_severity"`
	ByMethod      map[string]int  `json:"by_method"`
}

// TextReport is the analysis of submitted text
type TextReport struct {
	TotalFindings int             `json:"total_findings"`
	Findings      []privacy.Match `json:"findings"`
	BySeverity    map[string]int  `json:"by_severity"`
	ByMethod      map[string]int  `json:"by_method"`
}

// ScanURL fetches and analyzes one page
func (m *Manager) ScanURL(ctx context.Context, rawURL string) (acquire.SourceResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return acquire.SourceResult{}, apperr.Validation("url must be an absolute http(s) URL")
	}

	res, err := m.source.URL(ctx, rawURL, nil)
	if err != nil {
		return acquire.SourceResult{}, apperr.Acquisition("url scan failed", err)
	}

	m.stats.Record(stats.Record{
		ID:            shortID("url"),
		Query:         "URL: " + clipRunes(rawURL, 40),
		TotalFindings: res.PIICount,
		OverallRisk:   stats.RiskFromCount(res.PIICount),
	})
	return res, nil
}

// ScanSocial looks up a handle and runs discovery around it
func (m *Manager) ScanSocial(ctx context.Context, platform, handle string) ([]acquire.SourceResult, error) {
	platform = strings.TrimSpace(platform)
	handle = acquire.NormalizeHandle(handle)
	if platform == "" || handle == "" {
		return nil, apperr.Validation("platform and handle are required")
	}

	results, err := m.source.Social(ctx, platform, handle, nil)
	if err != nil {
		return nil, apperr.Acquisition("social scan failed", err)
	}
	if len(results) == 0 {
		return nil, apperr.NotFound("social data for handle", "@"+handle)
	}

	total := countPII(results)
	m.stats.Record(stats.Record{
		ID:            shortID("social"),
		Query:         "SOCIAL DISCOVERY: @" + handle,
		TotalFindings: total,
		OverallRisk:   stats.RiskFromCount(total),
	})
	return results, nil
}

// ScanEmail searches the web for an address
func (m *Manager) ScanEmail(ctx context.Context, email string) ([]acquire.SourceResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("a valid email is required")
	}

	results, err := m.source.Email(ctx, email, nil)
	if err != nil {
		return nil, apperr.Acquisition("email scan failed", err)
	}
	if len(results) == 0 {
		return nil, apperr.NotFound("public data for email", email)
	}

	total := countPII(results)
	m.stats.Record(stats.Record{
		ID:            shortID("email"),
		Query:         "EMAIL DISCOVERY: " + email,
		TotalFindings: total,
		OverallRisk:   stats.RiskFromCount(total),
	})
	return results, nil
}

// AnalyzeFile decodes an upload and analyzes its text
func (m *Manager) AnalyzeFile(ctx context.Context, filename string, content []byte) FileReport {
	text := DecodeText(content)
	matches, bySeverity, byMethod := m.detect(ctx, text)

	m.stats.Record(stats.Record{
		ID:            shortID("file"),
		Query:         "File: " + filename,
		TotalFindings: len(matches),
		OverallRisk:   alerting.RiskFromSeverity(bySeverity),
	})
	return FileReport{
		Filename:      filename,
		FileSize:      len(content),
		ContentLength: len(text),
		PIICount:      len(matches),
		Findings:      matches,
		BySeverity:    bySeverity,
		ByMethod:      byMethod,
	}
}

// AnalyzeText analyzes submitted text without recording stats
func (m *Manager) AnalyzeText(ctx context.Context, text string) TextReport {
	matches, bySeverity, byMethod := m.detect(ctx, text)
	return TextReport{
		TotalFindings: len(matches),
		Findings:      matches,
		BySeverity:    bySeverity,
		ByMethod:      byMethod,
	}
}

func (m *Manager) detect(ctx context.Context, text string) ([]privacy.Match, map[string]int, map[string]int) {
	var matches []privacy.Match
	if text != "" {
		matches = m.analyzer.Detect(ctx, text)
	}
	if matches == nil {
		matches = []privacy.Match{}
	}
	bySeverity := map[string]int{}
	for _, match := range matches {
		bySeverity[match.Severity.String()]++
	}
	m.logger.Debug("Analyzed text", zap.Int("bytes", len(text)), zap.Int("findings", len(matches)))
	return matches, bySeverity, acquire.MethodCounts(matches)
}

// DecodeText reads content as UTF-8, falling back to Latin-1
func DecodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(decoded)
}

func countPII(results []acquire.SourceResult) int {
	total := 0
	for _, r := range results {
		if !r.Failed() {
			total += r.PIICount
		}
	}
	return total
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
