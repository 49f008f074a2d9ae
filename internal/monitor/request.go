package monitor

import (
	"fmt"
	"strings"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/apperr"
)

// Request limits
const (
	MinInterval = 30
	MaxInterval = 86400
	MinDuration = 1
	MaxDuration = 10080

	defaultMaxResults = 5
	defaultInterval   = 120
	defaultDuration   = 60
)

// Request configures a monitor. Zero numeric fields take defaults.
type Request struct {
	Mode            string `json:"mode"`
	Query           string `json:"query,omitempty"`
	URL             string `json:"url,omitempty"`
	Platform        string `json:"platform,omitempty"`
	Handle          string `json:"handle,omitempty"`
	Email           string `json:"email,omitempty"`
	MaxResults      int    `json:"max_results"`
	IntervalSeconds int    `json:"interval_seconds"`
	DurationMinutes int    `json:"duration_minutes"`
}

// normalize trims fields and fills defaults
func (r Request) normalize() Request {
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	if r.Mode == "" {
		r.Mode = string(acquire.ModeAll)
	}
	r.Query = strings.TrimSpace(r.Query)
	r.URL = strings.TrimSpace(r.URL)
	r.Platform = strings.TrimSpace(r.Platform)
	r.Handle = strings.TrimSpace(r.Handle)
	r.Email = strings.TrimSpace(r.Email)
	if r.MaxResults == 0 {
		r.MaxResults = defaultMaxResults
	}
	if r.IntervalSeconds == 0 {
		r.IntervalSeconds = defaultInterval
	}
	if r.DurationMinutes == 0 {
		r.DurationMinutes = defaultDuration
	}
	return r
}

// Validate checks a normalized request
func (r Request) Validate() error {
	mode := acquire.Mode(r.Mode)
	if !mode.Valid() {
		return apperr.Validation("invalid mode %q, use one of: all, email, social, url, web", r.Mode)
	}

	switch mode {
	case acquire.ModeWeb:
		if r.Query == "" {
			return apperr.Validation("query is required for web mode")
		}
	case acquire.ModeURL:
		if r.URL == "" {
			return apperr.Validation("url is required for url mode")
		}
	case acquire.ModeSocial:
		if r.Platform == "" || r.Handle == "" {
			return apperr.Validation("platform and handle are required for social mode")
		}
	case acquire.ModeEmail:
		if r.Email == "" {
			return apperr.Validation("email is required for email mode")
		}
	case acquire.ModeAll:
		if r.Query == "" && r.URL == "" && r.Email == "" && (r.Platform == "" || r.Handle == "") {
			return apperr.Validation("at least one target must be configured for all mode")
		}
	}

	if (r.Platform == "") != (r.Handle == "") {
		return apperr.Validation("social target needs both platform and handle")
	}
	if r.MaxResults < 1 || r.MaxResults > acquire.MaxSearchResults {
		return apperr.Validation("max_results must be between 1 and %d", acquire.MaxSearchResults)
	}
	if r.IntervalSeconds < MinInterval || r.IntervalSeconds > MaxInterval {
		return apperr.Validation("interval_seconds must be between %d and %d", MinInterval, MaxInterval)
	}
	if r.DurationMinutes < MinDuration || r.DurationMinutes > MaxDuration {
		return apperr.Validation("duration_minutes must be between %d and %d", MinDuration, MaxDuration)
	}
	return nil
}

// Label names the monitor in stats and alerts
func (r Request) Label() string {
	switch acquire.Mode(r.Mode) {
	case acquire.ModeWeb:
		return fmt.Sprintf("MONITOR WEB: %q", r.Query)
	case acquire.ModeURL:
		return "MONITOR URL: " + r.URL
	case acquire.ModeSocial:
		return fmt.Sprintf("MONITOR SOCIAL: %s @%s", r.Platform, acquire.NormalizeHandle(r.Handle))
	case acquire.ModeEmail:
		return "MONITOR EMAIL: " + r.Email
	}

	var parts []string
	if r.Query != "" {
		parts = append(parts, "web")
	}
	if r.URL != "" {
		parts = append(parts, "url")
	}
	if r.Platform != "" && r.Handle != "" {
		parts = append(parts, "social")
	}
	if r.Email != "" {
		parts = append(parts, "email")
	}
	if len(parts) == 0 {
		return "MONITOR ALL: unconfigured"
	}
	return "MONITOR ALL: " + strings.Join(parts, ", ")
}

// Target converts the request into an aggregation target
func (r Request) Target() acquire.Target {
	return acquire.Target{
		Mode:       acquire.Mode(r.Mode),
		Query:      r.Query,
		URL:        r.URL,
		Platform:   r.Platform,
		Handle:     r.Handle,
		Email:      r.Email,
		MaxResults: r.MaxResults,
	}
}
