package privacy

import (
	"strings"
	"unicode/utf8"
)

const contextRadius = 40

// Mask hides the middle of a detected value
func Mask(value, piiType string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return "****"
	}
	if piiType == "EMAIL" {
		parts := strings.Split(value, "@")
		if len(parts) != 2 {
			return "***"
		}
		local := []rune(parts[0])
		if len(local) > 2 {
			local = local[:2]
		}
		return string(local) + "***@" + parts[1]
	}
	stars := len(runes) - 6
	if stars < 0 {
		stars = 0
	}
	return string(runes[:3]) + strings.Repeat("*", stars) + string(runes[len(runes)-3:])
}

// Context returns up to 40 bytes either side of [start, end), single-lined,
// with "..." marking sides that were cut.
func Context(text string, start, end int) string {
	cs := start - contextRadius
	if cs < 0 {
		cs = 0
	}
	ce := end + contextRadius
	if ce > len(text) {
		ce = len(text)
	}
	for cs > 0 && !utf8.RuneStart(text[cs]) {
		cs--
	}
	for ce < len(text) && !utf8.RuneStart(text[ce]) {
		ce++
	}

	ctx := strings.TrimSpace(strings.ReplaceAll(text[cs:ce], "\n", " "))
	if cs > 0 {
		ctx = "..." + ctx
	}
	if ce < len(text) {
		ctx += "..."
	}
	return ctx
}

// truncate cuts text to at most max bytes without splitting a rune
func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
