package ner

import (
	"errors"
	"fmt"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"go.uber.org/zap"
)

// Build returns the recognizers enabled in cfg, in registration order
// (statistical first, then transformer). The closer releases native resources.
func Build(cfg config.RecognizersConfig, log *logger.Logger) ([]privacy.Recognizer, func() error, error) {
	var recognizers []privacy.Recognizer
	closer := func() error { return nil }

	if cfg.Statistical.Enabled {
		recognizers = append(recognizers, NewStatisticalClient(cfg.Statistical.Endpoint, cfg.Statistical.Timeout))
		log.Info("Statistical recognizer registered", zap.String("endpoint", cfg.Statistical.Endpoint))
	}

	if cfg.Transformer.Enabled {
		tc := cfg.Transformer
		tokenizer, err := LoadWordPiece(tc.VocabPath, tc.LowerCase)
		if err != nil {
			return nil, nil, fmt.Errorf("load transformer vocab: %w", err)
		}

		backend, err := NewONNXClassifier(log, tc.ModelPath, tc.Labels, tc.MaxTokens, tokenizer.Specials())
		switch {
		case errors.Is(err, ErrBackendUnavailable):
			log.Warn("Transformer recognizer disabled", zap.Error(err))
		case err != nil:
			return nil, nil, fmt.Errorf("load transformer model: %w", err)
		default:
			t := NewTransformer(tokenizer, backend, tc, log)
			recognizers = append(recognizers, t)
			closer = t.Close
			log.Info("Transformer recognizer registered", zap.String("model", tc.ModelPath))
		}
	}

	return recognizers, closer, nil
}
