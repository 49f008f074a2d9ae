package acquire

import (
	"context"

	"github.com/raaihank/piiwatch/internal/privacy"
)

// Mode selects which discriminant of a Target is scanned
type Mode string

const (
	ModeWeb    Mode = "web"
	ModeURL    Mode = "url"
	ModeSocial Mode = "social"
	ModeEmail  Mode = "email"
	ModeAll    Mode = "all"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeWeb, ModeURL, ModeSocial, ModeEmail, ModeAll:
		return true
	}
	return false
}

// Source tags carried by SourceResult.Source
const (
	SourceWeb             = "web"
	SourceURL             = "url"
	SourceSocialDiscovery = "social-discovery"
	SourceEmailDiscovery  = "email-discovery"
	SourceDirectPrefix    = "direct-"
)

// Target describes what to look for
type Target struct {
	Mode       Mode   `json:"mode"`
	Query      string `json:"query,omitempty"`
	URL        string `json:"url,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Handle     string `json:"handle,omitempty"`
	Email      string `json:"email,omitempty"`
	MaxResults int    `json:"max_results"`
}

// SourceResult is the analysis of one page or profile. Entries with Error
// set are acquisition failures and carry no findings.
type SourceResult struct {
	Source           string          `json:"source"`
	URL              string          `json:"url,omitempty"`
	Title            string          `json:"title,omitempty"`
	Platform         string          `json:"platform,omitempty"`
	Handle           string          `json:"handle,omitempty"`
	ContentLength    int             `json:"content_length"`
	RawContent       string          `json:"raw_content,omitempty"`
	PIICount         int             `json:"pii_count"`
	Findings         []privacy.Match `json:"pii_findings"`
	DetectionMethods map[string]int  `json:"detection_methods,omitempty"`
	Simulated        bool            `json:"simulated,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Failed reports whether the entry is an acquisition error
func (r SourceResult) Failed() bool {
	return r.Error != ""
}

// Label is the best human-readable name of the source
func (r SourceResult) Label() string {
	switch {
	case r.URL != "":
		return r.URL
	case r.Title != "":
		return r.Title
	default:
		return r.Source
	}
}

// SearchResult is one hit returned by a search provider
type SearchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
	Error      string  `json:"error,omitempty"`
}

// Searcher runs web searches. Provider failures come back as a single
// result with Error set.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []SearchResult
}

// Page is fetched page text
type Page struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

// Fetcher retrieves the readable text of a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Analyzer detects PII in text
type Analyzer interface {
	Detect(ctx context.Context, text string) []privacy.Match
}

// LogSink receives human-readable progress lines
type LogSink interface {
	Log(msg string)
}

// LogFunc adapts a function to LogSink
type LogFunc func(msg string)

func (f LogFunc) Log(msg string) { f(msg) }

// MethodCounts counts findings per detection method
func MethodCounts(matches []privacy.Match) map[string]int {
	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Method]++
	}
	return counts
}
