package acquire

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	rawContentLimit   = 3000
	preferRawAbove    = 500
	fetchBelow        = 300
	socialDiscoveryN  = 5
	emailDiscoveryN   = 7
	discoveryTitleFmt = "DISCOVERY: %s"
)

// Options tunes an Aggregator
type Options struct {
	CourtesyDelay time.Duration
	Social        config.SocialConfig
}

// Aggregator turns a Target into analyzed SourceResults
type Aggregator struct {
	searcher Searcher
	fetcher  Fetcher
	analyzer Analyzer
	delay    time.Duration
	social   config.SocialConfig
	logger   *logger.Logger
}

// NewAggregator wires the search, fetch and detection providers together
func NewAggregator(searcher Searcher, fetcher Fetcher, analyzer Analyzer, opts Options, log *logger.Logger) *Aggregator {
	return &Aggregator{
		searcher: searcher,
		fetcher:  fetcher,
		analyzer: analyzer,
		delay:    opts.CourtesyDelay,
		social:   opts.Social,
		logger:   log.WithComponent("aggregator"),
	}
}

// Execute runs every discriminant the target's mode activates, in the order
// web, url, social, email. Only cancellation and an unknown mode are errors;
// provider failures come back as error entries.
func (a *Aggregator) Execute(ctx context.Context, t Target, sink LogSink) ([]SourceResult, error) {
	if !t.Mode.Valid() {
		return nil, apperr.Validation("invalid mode %q", t.Mode)
	}
	all := t.Mode == ModeAll
	var results []SourceResult

	if (all || t.Mode == ModeWeb) && t.Query != "" {
		logTo(sink, fmt.Sprintf("Web scan: %q", t.Query))
		web, err := a.Web(ctx, t.Query, t.MaxResults, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, web...)
	}

	if (all || t.Mode == ModeURL) && t.URL != "" {
		logTo(sink, "URL scan: "+t.URL)
		res, err := a.URL(ctx, t.URL, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if (all || t.Mode == ModeSocial) && t.Platform != "" && t.Handle != "" {
		logTo(sink, fmt.Sprintf("Social scan: %s @%s", t.Platform, NormalizeHandle(t.Handle)))
		social, err := a.Social(ctx, t.Platform, t.Handle, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, social...)
	}

	if (all || t.Mode == ModeEmail) && t.Email != "" {
		logTo(sink, "Email discovery: "+t.Email)
		email, err := a.Email(ctx, t.Email, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, email...)
	}

	return results, ctx.Err()
}

// Web searches for query and analyzes every hit
func (a *Aggregator) Web(ctx context.Context, query string, maxResults int, sink LogSink) ([]SourceResult, error) {
	logTo(sink, fmt.Sprintf("Initiating deep search: %q", query))

	hits := a.searcher.Search(ctx, query, maxResults)
	valid := 0
	for _, h := range hits {
		if h.Error == "" {
			valid++
		}
	}
	logTo(sink, fmt.Sprintf("Search complete. Analyzing %d targets...", valid))

	limiter := a.newLimiter()
	results := make([]SourceResult, 0, len(hits))
	for i, hit := range hits {
		if hit.Error != "" {
			a.logger.Warn("Search returned an error entry", zap.String("error", hit.Error))
			results = append(results, SourceResult{Source: SourceWeb, Error: hit.Error})
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return results, err
		}

		tag := "[WEB]"
		if IsSocialURL(hit.URL) {
			tag = "[SOCIAL]"
		}
		logTo(sink, fmt.Sprintf("[%d/%d] %s %s...", i+1, len(hits), tag, clipRunes(hit.Title, 50)))

		text := a.chooseText(ctx, hit, sink)
		logTo(sink, fmt.Sprintf("  Content: %s chars", groupThousands(len(text))))

		res := a.analyze(ctx, SourceWeb, hit.URL, hit.Title, text)
		if res.PIICount > 0 {
			logTo(sink, fmt.Sprintf("  ⚠ %d PII found [%s]", res.PIICount, methodString(res.DetectionMethods)))
		} else {
			logTo(sink, "  ✓ Clean")
		}
		results = append(results, res)
	}
	return results, ctx.Err()
}

// chooseText prefers substantial provider raw content, then a live fetch,
// then the search snippet
func (a *Aggregator) chooseText(ctx context.Context, hit SearchResult, sink LogSink) string {
	var text string
	if len(hit.RawContent) > preferRawAbove {
		if looksLikeHTML(hit.RawContent) {
			text = CleanHTML(hit.RawContent)
		} else {
			text = hit.RawContent
		}
	}

	if len(text) < fetchBelow && hit.URL != "" {
		logTo(sink, fmt.Sprintf("  Fetching deep content for %s...", clipRunes(hit.URL, 40)))
		page, err := a.fetcher.Fetch(ctx, hit.URL)
		if err != nil {
			a.logger.Debug("Deep fetch failed", zap.String("url", hit.URL), zap.Error(err))
		}
		text = page.Text
	}

	if text == "" {
		text = hit.Content
	}
	return text
}

// URL fetches and analyzes a single page
func (a *Aggregator) URL(ctx context.Context, rawURL string, sink LogSink) (SourceResult, error) {
	logTo(sink, "Fetching: "+rawURL)

	page, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		a.logger.Debug("URL fetch failed", zap.String("url", rawURL), zap.Error(err))
	}
	if ctx.Err() != nil {
		return SourceResult{}, ctx.Err()
	}

	title := page.Title
	if title == "" {
		title = rawURL
	}
	logTo(sink, fmt.Sprintf("Content: %s chars", groupThousands(len(page.Text))))

	res := a.analyze(ctx, SourceURL, rawURL, title, page.Text)
	if res.PIICount > 0 {
		logTo(sink, fmt.Sprintf("⚠ %d PII found [%s]", res.PIICount, methodString(res.DetectionMethods)))
	} else {
		logTo(sink, "✓ Clean, no PII detected")
	}
	return res, nil
}

// Social looks the handle up directly, then searches profile hosts for it
func (a *Aggregator) Social(ctx context.Context, platform, handle string, sink LogSink) ([]SourceResult, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	handle = NormalizeHandle(handle)
	a.logger.Info("Scanning social identity", zap.String("platform", platform), zap.String("handle", handle))

	results := []SourceResult{a.directProfile(ctx, platform, handle)}
	if !a.social.DeepSearch {
		return results, ctx.Err()
	}

	logTo(sink, fmt.Sprintf("Initiating deep discovery for @%s...", handle))
	web, err := a.Web(ctx, socialDiscoveryQuery(handle), socialDiscoveryN, sink)
	if err != nil {
		return results, err
	}
	return append(results, retag(web, SourceSocialDiscovery, "Related Profile")...), nil
}

// Email searches profile and paste hosts for the address
func (a *Aggregator) Email(ctx context.Context, email string, sink LogSink) ([]SourceResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a.logger.Info("Initiating email discovery", zap.String("email", email))

	web, err := a.Web(ctx, emailDiscoveryQuery(email), emailDiscoveryN, sink)
	if err != nil {
		return nil, err
	}
	results := retag(web, SourceEmailDiscovery, "Related Content")
	if len(results) == 0 {
		a.logger.Info("No public web associations found", zap.String("email", email))
	}
	return results, nil
}

// Analyze runs detection on free text and wraps it as a SourceResult
func (a *Aggregator) Analyze(ctx context.Context, source, title, text string) SourceResult {
	return a.analyze(ctx, source, "", title, text)
}

func (a *Aggregator) analyze(ctx context.Context, source, url, title, text string) SourceResult {
	var matches []privacy.Match
	if text != "" {
		matches = a.analyzer.Detect(ctx, text)
	}
	if matches == nil {
		matches = []privacy.Match{}
	}
	return SourceResult{
		Source:           source,
		URL:              url,
		Title:            title,
		ContentLength:    len(text),
		RawContent:       clip(text, rawContentLimit),
		PIICount:         len(matches),
		Findings:         matches,
		DetectionMethods: MethodCounts(matches),
	}
}

func (a *Aggregator) newLimiter() *rate.Limiter {
	if a.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(a.delay), 1)
}

// retag drops error entries and marks the rest as discovery results
func retag(in []SourceResult, source, fallbackTitle string) []SourceResult {
	out := make([]SourceResult, 0, len(in))
	for _, r := range in {
		if r.Failed() {
			continue
		}
		title := r.Title
		if title == "" {
			title = fallbackTitle
		}
		r.Source = source
		r.Title = fmt.Sprintf(discoveryTitleFmt, title)
		out = append(out, r)
	}
	return out
}

func logTo(sink LogSink, msg string) {
	if sink != nil {
		sink.Log(msg)
	}
}

func methodString(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func groupThousands(n int) string {
	s := fmt.Sprint(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
