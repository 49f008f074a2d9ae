package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// socialHosts get the longer fetch timeout and are tagged [SOCIAL] in progress lines
var socialHosts = []string{"linkedin.com", "github.com", "twitter.com", "x.com", "facebook.com", "instagram.com"}

// maxBodyBytes bounds how much markup is read before extraction
const maxBodyBytes = 8 << 20

// IsSocialURL reports whether rawURL points at a social profile host
func IsSocialURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range socialHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// HTTPFetcher downloads pages and extracts their readable text
type HTTPFetcher struct {
	client        *http.Client
	timeout       time.Duration
	socialTimeout time.Duration
	userAgent     string
	maxBytes      int
	logger        *logger.Logger
}

// NewHTTPFetcher creates a plain HTTP fetcher. Redirects are followed.
func NewHTTPFetcher(cfg config.FetchConfig, log *logger.Logger) *HTTPFetcher {
	f := &HTTPFetcher{
		client:        &http.Client{},
		timeout:       cfg.Timeout,
		socialTimeout: cfg.SocialTimeout,
		userAgent:     cfg.UserAgent,
		maxBytes:      cfg.MaxBytes,
		logger:        log.WithComponent("fetcher"),
	}
	if f.timeout <= 0 {
		f.timeout = 15 * time.Second
	}
	if f.socialTimeout <= 0 {
		f.socialTimeout = 20 * time.Second
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 50000
	}
	return f
}

// Fetch returns the cleaned text and title of rawURL
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	timeout := f.timeout
	if IsSocialURL(rawURL) {
		timeout = f.socialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if strings.Contains(strings.ToLower(rawURL), "linkedin.com") {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("Fetch returned non-200 status", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return Page{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	text, title := parseHTML(string(body))
	return Page{Text: clip(text, f.maxBytes), Title: title}, nil
}

// FallbackFetcher tries each fetcher in order until one yields text
type FallbackFetcher []Fetcher

// Fetch returns the first non-empty page, or the last error
func (ff FallbackFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var lastErr error
	var best Page
	for _, f := range ff {
		page, err := f.Fetch(ctx, rawURL)
		if err != nil {
			lastErr = err
			continue
		}
		if best.Title == "" {
			best.Title = page.Title
		}
		if page.Text != "" {
			if page.Title == "" {
				page.Title = best.Title
			}
			return page, nil
		}
	}
	if best.Title != "" {
		return best, nil
	}
	return Page{}, lastErr
}
