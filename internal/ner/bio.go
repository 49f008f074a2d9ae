package ner

import (
	"strings"

	"github.com/raaihank/piiwatch/internal/privacy"
)

// Prediction is the best label of one token
type Prediction struct {
	Label string
	Score float64
	Start int
	End   int
}

// Aggregate groups BIO-tagged tokens into entity spans. Consecutive tokens of
// one type merge unless a B- tag opens a new entity; the span score is the
// mean token score.
func Aggregate(preds []Prediction, text string) []privacy.Span {
	var spans []privacy.Span
	var cur *privacy.Span
	var sum float64
	var n int

	flush := func() {
		if cur == nil {
			return
		}
		cur.Score = sum / float64(n)
		cur.Text = text[cur.Start:cur.End]
		spans = append(spans, *cur)
		cur, sum, n = nil, 0, 0
	}

	for _, p := range preds {
		if p.Start < 0 || p.End <= p.Start || p.End > len(text) {
			continue
		}
		prefix, typ := splitLabel(p.Label)
		if typ == "" || strings.EqualFold(p.Label, "O") {
			flush()
			continue
		}
		if prefix == "B" || cur == nil || cur.Label != typ {
			flush()
			cur = &privacy.Span{Label: typ, Start: p.Start, End: p.End}
			sum, n = p.Score, 1
			continue
		}
		if p.End > cur.End {
			cur.End = p.End
		}
		sum += p.Score
		n++
	}
	flush()
	return spans
}

func splitLabel(lbl string) (string, string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" {
		return "", ""
	}
	parts := strings.SplitN(lbl, "-", 2)
	if len(parts) == 1 {
		return "", lbl
	}
	return strings.ToUpper(parts[0]), parts[1]
}
