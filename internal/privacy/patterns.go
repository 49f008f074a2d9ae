package privacy

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultPatterns returns the built-in pattern library, in evaluation order
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Type:       "SSN",
			Regexp:     mustCompile(`\b(\d{3}[-\s]?\d{2}[-\s]?\d{4})\b`),
			Group:      1,
			Severity:   SeverityCritical,
			Confidence: 0.90,
			Validate:   validSSN,
		},
		{
			Type:       "AADHAAR",
			Regexp:     mustCompile(`\b([2-9]\d{3}[\s-]?\d{4}[\s-]?\d{4})\b`),
			Group:      1,
			Severity:   SeverityCritical,
			Confidence: 0.85,
			Validate:   digitCount(12, 12),
		},
		{
			Type:       "CREDIT_CARD",
			Regexp:     mustCompile(`\b((?:4\d{3}|5[1-5]\d{2}|3[47]\d{2}|6011)[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{3,4})\b`),
			Group:      1,
			Severity:   SeverityCritical,
			Confidence: 0.88,
			Validate:   validLuhn,
		},
		{
			Type:       "EMAIL",
			Regexp:     mustCompile(`\b([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})\b`),
			Group:      1,
			Severity:   SeverityHigh,
			Confidence: 0.95,
		},
		{
			Type:       "PHONE_IN",
			Regexp:     mustCompile(`(?:\+91[\s-]?)?\b[6-9]\d{4}[\s-]?\d{5}\b`),
			Severity:   SeverityHigh,
			Confidence: 0.80,
			Validate:   digitCount(10, 0),
		},
		{
			Type:       "PHONE_US",
			Regexp:     mustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
			Severity:   SeverityHigh,
			Confidence: 0.78,
			Validate:   digitCount(10, 0),
		},
		{
			Type:       "PAN_CARD",
			Regexp:     mustCompile(`\b([A-Z]{5}\d{4}[A-Z])\b`),
			Group:      1,
			Severity:   SeverityHigh,
			Confidence: 0.88,
		},
		{
			Type:       "PASSPORT",
			Regexp:     mustCompile(`\b([A-Z][0-9]{7,8})\b`),
			Group:      1,
			Severity:   SeverityHigh,
			Confidence: 0.70,
		},
		{
			Type:       "IP_ADDRESS",
			Regexp:     mustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`),
			Group:      1,
			Severity:   SeverityMedium,
			Confidence: 0.75,
			Validate:   validIPv4,
		},
		{
			Type:       "DOB",
			Regexp:     mustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})\b`),
			Group:      1,
			Severity:   SeverityMedium,
			Confidence: 0.65,
		},
		{
			Type:       "API_KEY",
			Regexp:     mustCompile(`(?:api[_\-]?key|secret|token|password)\s*[=:]\s*["']?([a-zA-Z0-9_\-]{20,})["']?`),
			Group:      1,
			Severity:   SeverityCritical,
			Confidence: 0.82,
			Validate:   minLength(20),
		},
		{
			Type:       "LINKEDIN_PROFILE",
			Regexp:     mustCompile(`https?://(?:www\.)?linkedin\.com/in/([a-zA-Z0-9_\-]+)/?`),
			Group:      1,
			Severity:   SeverityMedium,
			Confidence: 0.90,
		},
		{
			Type:       "GITHUB_PROFILE",
			Regexp:     mustCompile(`https?://(?:www\.)?github\.com/([a-zA-Z0-9_\-]+)/?`),
			Group:      1,
			Severity:   SeverityMedium,
			Confidence: 0.90,
		},
		{
			Type:       "TWITTER_PROFILE",
			Regexp:     mustCompile(`https?://(?:www\.)?(?:twitter\.com|x\.com)/([a-zA-Z0-9_\-]+)/?`),
			Group:      1,
			Severity:   SeverityMedium,
			Confidence: 0.90,
		},
		{
			Type:       "SOCIAL_HANDLE",
			Regexp:     mustCompile(`\B@([a-zA-Z0-9_]{3,20})\b`),
			Group:      1,
			Severity:   SeverityMedium,
			Confidence: 0.65,
		},
		{
			Type:       "SOCIAL_NAME",
			Regexp:     mustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)+)\s*\|\s*(?:LinkedIn|GitHub|Twitter|X|Facebook|Instagram)\b`),
			Group:      1,
			Severity:   SeverityHigh,
			Confidence: 0.85,
		},
	}
}

// mustCompile compiles a library pattern case-insensitively
func mustCompile(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validSSN rejects area numbers outside 100..899 and the 666 block
func validSSN(value string) bool {
	digits := onlyDigits(value)
	if len(digits) != 9 {
		return false
	}
	area, err := strconv.Atoi(digits[:3])
	if err != nil {
		return false
	}
	return area >= 100 && area <= 899 && area != 666
}

// validLuhn runs the Luhn checksum over the digits of value
func validLuhn(value string) bool {
	digits := onlyDigits(value)
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validIPv4(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// digitCount accepts values with at least min digits and, when max > 0, at most max
func digitCount(min, max int) func(string) bool {
	return func(value string) bool {
		n := len(onlyDigits(value))
		return n >= min && (max == 0 || n <= max)
	}
}

func minLength(n int) func(string) bool {
	return func(value string) bool {
		return len(strings.TrimSpace(value)) >= n
	}
}
