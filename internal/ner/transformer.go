package ner

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
)

// MethodTransformer identifies matches produced by the token classifier
const MethodTransformer = "transformer"

// ErrBackendUnavailable is returned when the binary was built without an inference backend
var ErrBackendUnavailable = errors.New("token classification backend not compiled in (build with -tags onnx)")

// TokenClassifier runs a token-classification model
type TokenClassifier interface {
	// Labels returns the model's label set, indexed like the probability rows
	Labels() []string
	// MaxTokens is the largest number of word pieces accepted per call, framing tokens excluded
	MaxTokens() int
	// Classify returns one probability row per input id
	Classify(ctx context.Context, ids []int64) ([][]float32, error)
	Close() error
}

// Transformer is a Recognizer backed by a token classifier
type Transformer struct {
	tokenizer *WordPiece
	backend   TokenClassifier
	profile   privacy.Profile
	logger    *logger.Logger
}

// TransformerProfile returns the label table and chunking of the transformer provider
func TransformerProfile(cfg config.TransformerConfig) privacy.Profile {
	chunkWords := cfg.ChunkWords
	if chunkWords <= 0 {
		chunkWords = 400
	}
	return privacy.Profile{
		Method:     MethodTransformer,
		MinScore:   cfg.MinScore,
		ChunkWords: chunkWords,
		Labels: map[string]privacy.LabelRule{
			"PER":  {Type: "PERSON_NAME", Severity: privacy.SeverityHigh},
			"ORG":  {Type: "ORGANIZATION", Severity: privacy.SeverityMedium},
			"LOC":  {Type: "LOCATION", Severity: privacy.SeverityMedium},
			"MISC": {Type: privacy.MiscType, Severity: privacy.SeverityMedium},
		},
	}
}

// NewTransformer wires a tokenizer and a backend into a Recognizer
func NewTransformer(tokenizer *WordPiece, backend TokenClassifier, cfg config.TransformerConfig, log *logger.Logger) *Transformer {
	return &Transformer{
		tokenizer: tokenizer,
		backend:   backend,
		profile:   TransformerProfile(cfg),
		logger:    log.WithComponent("ner-transformer"),
	}
}

func (t *Transformer) Profile() privacy.Profile { return t.profile }

func (t *Transformer) Ready() bool { return t.tokenizer != nil && t.backend != nil }

// Recognize classifies the chunk in windows of at most MaxTokens word pieces
func (t *Transformer) Recognize(ctx context.Context, chunk string) ([]privacy.Span, error) {
	tokens := t.tokenizer.Tokenize(chunk)
	if len(tokens) == 0 {
		return nil, nil
	}

	labels := t.backend.Labels()
	window := t.backend.MaxTokens()
	if window <= 0 {
		window = len(tokens)
	}

	preds := make([]Prediction, 0, len(tokens))
	ids := make([]int64, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}

	for start := 0; start < len(tokens); start += window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + window
		if end > len(tokens) {
			end = len(tokens)
		}

		rows, err := t.backend.Classify(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("classify tokens: %w", err)
		}
		if len(rows) != end-start {
			return nil, fmt.Errorf("classifier returned %d rows for %d tokens", len(rows), end-start)
		}

		for i, row := range rows {
			best, score := argmax(row)
			label := "O"
			if best >= 0 && best < len(labels) {
				label = labels[best]
			}
			tok := tokens[start+i]
			preds = append(preds, Prediction{Label: label, Score: float64(score), Start: tok.Start, End: tok.End})
		}
	}

	return Aggregate(preds, chunk), nil
}

// Close releases the backend
func (t *Transformer) Close() error {
	if t.backend == nil {
		return nil
	}
	return t.backend.Close()
}

func argmax(row []float32) (int, float32) {
	best := -1
	var bestScore float32
	for i, v := range row {
		if best < 0 || v > bestScore {
			best, bestScore = i, v
		}
	}
	return best, bestScore
}
