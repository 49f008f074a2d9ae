package privacy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// Detector runs the pattern layer and every registered recognizer over text
type Detector struct {
	patterns    []Pattern
	enabled     map[string]bool
	recognizers []Recognizer
	maxLength   int
	logger      *logger.Logger
}

// New creates a new PII detector instance
func New(cfg config.DetectionConfig, log *logger.Logger, recognizers ...Recognizer) (*Detector, error) {
	patterns := DefaultPatterns()
	if cfg.PatternFile != "" {
		extra, err := LoadPatternFile(cfg.PatternFile)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, extra...)
	}

	for _, r := range recognizers {
		if err := r.Profile().Validate(); err != nil {
			return nil, fmt.Errorf("invalid recognizer: %w", err)
		}
	}

	detector := &Detector{
		patterns:    patterns,
		enabled:     make(map[string]bool),
		recognizers: recognizers,
		maxLength:   cfg.MaxLength,
		logger:      log,
	}

	selected := cfg.Patterns
	if len(selected) == 0 {
		selected = []string{"all"}
	}
	if err := detector.configurePatterns(selected); err != nil {
		return nil, fmt.Errorf("failed to configure patterns: %w", err)
	}

	methods := make([]string, 0, len(recognizers))
	for _, r := range recognizers {
		methods = append(methods, r.Profile().Method)
	}
	log.Info("PII detector initialized",
		zap.Int("total_patterns", len(detector.patterns)),
		zap.Int("enabled_patterns", len(detector.EnabledPatterns())),
		zap.Strings("recognizers", methods),
	)

	return detector, nil
}

// configurePatterns enables patterns by type name, or every pattern for "all"
func (d *Detector) configurePatterns(names []string) error {
	for _, p := range d.patterns {
		d.enabled[p.Type] = false
	}

	for _, name := range names {
		if name == "all" {
			for _, p := range d.patterns {
				d.enabled[p.Type] = true
			}
			continue
		}

		if _, ok := d.enabled[name]; !ok {
			return fmt.Errorf("unknown pattern: %s", name)
		}
		d.enabled[name] = true
	}

	return nil
}

// Detect finds PII in text. The result is deduplicated by (value, type) and
// ordered by start offset; empty input yields an empty slice.
func (d *Detector) Detect(ctx context.Context, text string) []Match {
	text = truncate(text, d.maxLength)
	if strings.TrimSpace(text) == "" {
		return []Match{}
	}

	matches := d.detectPatterns(text)
	for _, r := range d.recognizers {
		if ctx.Err() != nil {
			break
		}
		matches = append(matches, d.detectEntities(ctx, r, text)...)
	}

	return dedupe(matches)
}

func (d *Detector) detectPatterns(text string) []Match {
	var matches []Match
	for _, p := range d.patterns {
		if !d.enabled[p.Type] {
			continue
		}

		for _, loc := range p.Regexp.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			value := text[start:end]
			if p.Group > 0 && 2*p.Group+1 < len(loc) && loc[2*p.Group] >= 0 {
				value = text[loc[2*p.Group]:loc[2*p.Group+1]]
			}
			if value == "" || !validate(p, value) {
				continue
			}

			matches = append(matches, Match{
				Type:        p.Type,
				Value:       value,
				MaskedValue: Mask(value, p.Type),
				Confidence:  p.Confidence,
				Severity:    p.Severity,
				Context:     Context(text, start, end),
				Method:      MethodRegex,
				Start:       start,
				End:         end,
			})
		}
	}
	return matches
}

// validate runs the pattern validator; a panicking validator rejects the value
func validate(p Pattern, value string) (ok bool) {
	if p.Validate == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.Validate(value)
}

func (d *Detector) detectEntities(ctx context.Context, r Recognizer, text string) []Match {
	if !r.Ready() {
		return nil
	}
	profile := r.Profile()

	var matches []Match
	for _, c := range profile.chunks(text) {
		if ctx.Err() != nil {
			break
		}

		spans, err := recognize(ctx, r, c.text)
		if err != nil {
			d.logger.Warn("Recognizer failed on chunk",
				zap.String("method", profile.Method),
				zap.Int("offset", c.offset),
				zap.Error(err),
			)
			continue
		}

		for _, span := range spans {
			if profile.MinScore > 0 && span.Score < profile.MinScore {
				continue
			}
			rule, ok := profile.rule(span.Label)
			if !ok {
				continue
			}
			start, end, ok := locate(c.text, span)
			if !ok {
				continue
			}
			value := c.text[start:end]
			if utf8.RuneCountInString(value) < 2 || isNumeric(value) {
				continue
			}

			confidence := rule.Confidence
			if confidence == 0 {
				confidence = math.Round(span.Score*100) / 100
			}

			start += c.offset
			end += c.offset
			matches = append(matches, Match{
				Type:        rule.Type,
				Value:       value,
				MaskedValue: Mask(value, rule.Type),
				Confidence:  confidence,
				Severity:    rule.Severity,
				Context:     Context(text, start, end),
				Method:      profile.Method,
				Start:       start,
				End:         end,
			})
		}
	}

	if len(matches) > 0 {
		d.logger.Debug("Recognizer produced entities",
			zap.String("method", profile.Method),
			zap.Int("count", len(matches)),
		)
	}
	return matches
}

func recognize(ctx context.Context, r Recognizer, chunk string) (spans []Span, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("recognizer panic: %v", rec)
		}
	}()
	return r.Recognize(ctx, chunk)
}

// locate returns the trimmed chunk-relative bounds of a span. Out-of-range
// offsets fall back to searching for the span text inside the same chunk.
func locate(chunk string, span Span) (int, int, bool) {
	start, end := span.Start, span.End
	if start < 0 || end <= start || end > len(chunk) {
		if span.Text == "" {
			return 0, 0, false
		}
		idx := strings.Index(chunk, span.Text)
		if idx < 0 {
			return 0, 0, false
		}
		start, end = idx, idx+len(span.Text)
	}

	raw := chunk[start:end]
	trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
	start += len(raw) - len(trimmed)
	end = start + len(strings.TrimRightFunc(trimmed, unicode.IsSpace))
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// dedupe keeps one match per (lower-cased value, type), preferring the higher
// confidence and, on ties, the earlier match; the result is sorted by start.
func dedupe(matches []Match) []Match {
	type key struct{ value, piiType string }
	index := make(map[key]int, len(matches))
	out := make([]Match, 0, len(matches))

	for _, m := range matches {
		k := key{strings.ToLower(strings.TrimSpace(m.Value)), m.Type}
		if i, seen := index[k]; seen {
			if m.Confidence > out[i].Confidence {
				out[i] = m
			}
			continue
		}
		index[k] = len(out)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// EnabledPatterns returns the enabled pattern types in library order
func (d *Detector) EnabledPatterns() []string {
	var enabled []string
	for _, p := range d.patterns {
		if d.enabled[p.Type] {
			enabled = append(enabled, p.Type)
		}
	}
	return enabled
}

// Status reports which detection layers are active
func (d *Detector) Status() ModelStatus {
	status := ModelStatus{
		Patterns:  len(d.EnabledPatterns()),
		Providers: make(map[string]bool, len(d.recognizers)),
	}
	status.Regex = status.Patterns > 0
	for _, r := range d.recognizers {
		status.Providers[r.Profile().Method] = r.Ready()
	}
	return status
}
