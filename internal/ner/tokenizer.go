package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Token is one word piece with its byte span in the source text
type Token struct {
	ID    int64
	Start int
	End   int
}

// Specials holds the ids of the framing tokens
type Specials struct {
	CLS int64
	SEP int64
	PAD int64
	UNK int64
}

// WordPiece is a BERT-compatible tokenizer that keeps byte offsets
type WordPiece struct {
	vocab        map[string]int64
	lowerCase    bool
	continuation string
	maxWordBytes int
	specials     Specials
}

// LoadWordPiece builds the tokenizer from a vocab.txt file
func LoadWordPiece(path string, lowerCase bool) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}
	return NewWordPiece(vocab, lowerCase), nil
}

// NewWordPiece builds a tokenizer from an in-memory vocabulary
func NewWordPiece(vocab map[string]int64, lowerCase bool) *WordPiece {
	return &WordPiece{
		vocab:        vocab,
		lowerCase:    lowerCase,
		continuation: "##",
		maxWordBytes: 200,
		specials: Specials{
			CLS: vocab["[CLS]"],
			SEP: vocab["[SEP]"],
			PAD: vocab["[PAD]"],
			UNK: vocab["[UNK]"],
		},
	}
}

// Specials returns the framing token ids
func (t *WordPiece) Specials() Specials {
	return t.specials
}

// Tokenize splits text on whitespace and punctuation, then into word pieces
func (t *WordPiece) Tokenize(text string) []Token {
	var tokens []Token
	for _, w := range splitWords(text) {
		word := text[w.start:w.end]
		norm := word
		if t.lowerCase {
			norm = strings.ToLower(word)
		}
		// lower-casing can change byte length; pieces then share the word span
		aligned := len(norm) == len(word)

		for _, p := range t.pieces(norm) {
			tok := Token{ID: p.id, Start: w.start, End: w.end}
			if aligned {
				tok.Start, tok.End = w.start+p.start, w.start+p.end
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

type piece struct {
	id    int64
	start int
	end   int
}

func (t *WordPiece) pieces(word string) []piece {
	if id, ok := t.vocab[word]; ok {
		return []piece{{id: id, start: 0, end: len(word)}}
	}
	if len(word) > t.maxWordBytes {
		return []piece{{id: t.specials.UNK, start: 0, end: len(word)}}
	}

	var out []piece
	start := 0
	for start < len(word) {
		found := false
		for end := len(word); end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				out = append(out, piece{id: id, start: start, end: end})
				start = end
				found = true
				break
			}
		}
		if !found {
			return []piece{{id: t.specials.UNK, start: 0, end: len(word)}}
		}
	}
	return out
}

type wordSpan struct {
	start int
	end   int
}

// splitWords mirrors BERT basic tokenization: whitespace separates words and
// every punctuation rune is a word of its own.
func splitWords(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				spans = append(spans, wordSpan{start, idx})
				start = -1
			}
		case isPunct(r):
			if start >= 0 {
				spans = append(spans, wordSpan{start, idx})
				start = -1
			}
			spans = append(spans, wordSpan{idx, idx + len(string(r))})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{start, len(text)})
	}
	return spans
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
