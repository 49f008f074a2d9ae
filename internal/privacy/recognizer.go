package privacy

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MiscType is assigned to provider labels that have no rule in the label table
const MiscType = "MISC_ENTITY"

// Span is one entity reported by a recognizer. Offsets are byte offsets
// relative to the chunk handed to Recognize.
type Span struct {
	Label string
	Text  string
	Score float64
	Start int
	End   int
}

// LabelRule maps a provider label to a PII type. Confidence 0 means the
// provider score is used.
type LabelRule struct {
	Type       string
	Severity   Severity
	Confidence float64
}

// Profile describes how the engine drives one recognizer
type Profile struct {
	Method       string
	MinScore     float64
	Labels       map[string]LabelRule
	DropUnmapped bool
	ChunkChars   int
	ChunkWords   int
}

// Recognizer is an entity-recognition provider
type Recognizer interface {
	Profile() Profile
	Ready() bool
	Recognize(ctx context.Context, chunk string) ([]Span, error)
}

// Validate checks the label table of a profile
func (p Profile) Validate() error {
	if p.Method == "" {
		return fmt.Errorf("recognizer profile has no method")
	}
	if p.Method == MethodRegex {
		return fmt.Errorf("recognizer method %q is reserved", MethodRegex)
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return fmt.Errorf("recognizer %s: min score %v out of range", p.Method, p.MinScore)
	}
	for label, rule := range p.Labels {
		if rule.Type == "" {
			return fmt.Errorf("recognizer %s: label %s has no type", p.Method, label)
		}
		if rule.Severity == SeverityUnknown {
			return fmt.Errorf("recognizer %s: label %s has no severity", p.Method, label)
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			return fmt.Errorf("recognizer %s: label %s confidence %v out of range", p.Method, label, rule.Confidence)
		}
	}
	return nil
}

// rule resolves a label, falling back to MiscType unless unmapped labels are dropped
func (p Profile) rule(label string) (LabelRule, bool) {
	if r, ok := p.Labels[label]; ok {
		return r, true
	}
	if p.DropUnmapped {
		return LabelRule{}, false
	}
	return LabelRule{Type: MiscType, Severity: SeverityMedium}, true
}

type chunk struct {
	text   string
	offset int
}

// chunks splits text the way the profile asks for
func (p Profile) chunks(text string) []chunk {
	switch {
	case p.ChunkWords > 0:
		return chunkWords(text, p.ChunkWords)
	case p.ChunkChars > 0:
		return chunkBytes(text, p.ChunkChars)
	default:
		return []chunk{{text: text}}
	}
}

// chunkBytes cuts text into pieces of at most size bytes on rune boundaries
func chunkBytes(text string, size int) []chunk {
	var out []chunk
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				_, w := utf8.DecodeRuneInString(text[start:])
				end = start + w
			}
		}
		out = append(out, chunk{text: text[start:end], offset: start})
		start = end
	}
	return out
}

// chunkWords groups whitespace-separated words into windows of n words,
// keeping the original substring so offsets stay exact.
func chunkWords(text string, n int) []chunk {
	type word struct{ start, end int }
	var words []word
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				words[len(words)-1].end = i
				inWord = false
			}
			continue
		}
		if !inWord {
			words = append(words, word{start: i})
			inWord = true
		}
	}
	if inWord {
		words[len(words)-1].end = len(text)
	}

	var out []chunk
	for i := 0; i < len(words); i += n {
		j := i + n
		if j > len(words) {
			j = len(words)
		}
		start, end := words[i].start, words[j-1].end
		out = append(out, chunk{text: text[start:end], offset: start})
	}
	return out
}
