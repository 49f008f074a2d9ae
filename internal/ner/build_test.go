//go:build !onnx
// +build !onnx

package ner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWithoutBackend(t *testing.T) {
	vocab := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(vocab, []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\njohn\n"), 0o644))

	cfg := config.GetDefaults().Recognizers
	cfg.Statistical.Enabled = true
	cfg.Transformer.Enabled = true
	cfg.Transformer.VocabPath = vocab

	recognizers, closer, err := Build(cfg, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, recognizers, 1)
	assert.Equal(t, MethodStatistical, recognizers[0].Profile().Method)
	assert.NoError(t, closer())

	cfg.Transformer.VocabPath = filepath.Join(t.TempDir(), "missing.txt")
	_, _, err = Build(cfg, logger.NewNop())
	assert.Error(t, err)
}
