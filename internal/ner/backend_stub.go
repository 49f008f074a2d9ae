//go:build !onnx
// +build !onnx

package ner

import (
	"github.com/raaihank/piiwatch/internal/logger"
)

// NewONNXClassifier is unavailable when the 'onnx' build tag is not set.
func NewONNXClassifier(log *logger.Logger, modelPath string, labels []string, maxTokens int, specials Specials) (TokenClassifier, error) {
	return nil, ErrBackendUnavailable
}
