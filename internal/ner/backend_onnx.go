//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/raaihank/piiwatch/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// onnxClassifier runs a token-classification model through ONNX Runtime
type onnxClassifier struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputNames []string
	labels     []string
	maxTokens  int
	specials   Specials
	logger     *logger.Logger
}

// NewONNXClassifier initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewONNXClassifier(log *logger.Logger, modelPath string, labels []string, maxTokens int, specials Specials) (TokenClassifier, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("token classifier needs a label list")
	}
	if maxTokens < 8 {
		return nil, fmt.Errorf("max tokens %d too small", maxTokens)
	}

	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx runtime init: %w", err)
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", modelPath, err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("model %s reports no outputs", modelPath)
	}

	available := map[string]string{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = ii.Name
	}
	var inputNames []string
	for _, name := range []string{"input_ids", "attention_mask", "token_type_ids"} {
		if actual, ok := available[name]; ok {
			inputNames = append(inputNames, actual)
		}
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("model %s has no input_ids input", modelPath)
	}

	outputName := outputsInfo[0].Name
	for _, oi := range outputsInfo {
		if strings.EqualFold(oi.Name, "logits") {
			outputName = oi.Name
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Info("ONNX token classifier ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("labels", len(labels)),
	)

	return &onnxClassifier{
		session:    sess,
		inputNames: inputNames,
		labels:     labels,
		maxTokens:  maxTokens,
		specials:   specials,
		logger:     log,
	}, nil
}

func (c *onnxClassifier) Labels() []string { return c.labels }

func (c *onnxClassifier) MaxTokens() int { return c.maxTokens - 2 }

// Classify frames ids with [CLS]/[SEP], runs the model and returns softmaxed rows without the framing rows
func (c *onnxClassifier) Classify(ctx context.Context, ids []int64) ([][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > c.MaxTokens() {
		return nil, fmt.Errorf("%d tokens exceed window of %d", len(ids), c.MaxTokens())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqLen := len(ids) + 2
	inputIDs := make([]int64, 0, seqLen)
	inputIDs = append(inputIDs, c.specials.CLS)
	inputIDs = append(inputIDs, ids...)
	inputIDs = append(inputIDs, c.specials.SEP)
	attention := make([]int64, seqLen)
	for i := range attention {
		attention[i] = 1
	}
	tokenTypes := make([]int64, seqLen)

	shape := ort.NewShape(1, int64(seqLen))
	var inputs []ort.Value
	for _, name := range c.inputNames {
		var data []int64
		switch strings.ToLower(name) {
		case "input_ids":
			data = inputIDs
		case "attention_mask":
			data = attention
		default:
			data = tokenTypes
		}
		tensor, err := ort.NewTensor[int64](shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	outputs := make([]ort.Value, 1)
	c.mu.Lock()
	err := c.session.Run(inputs, outputs)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	data := out.GetData()
	numLabels := len(c.labels)
	if len(data) != seqLen*numLabels {
		return nil, fmt.Errorf("unexpected output length %d for shape %v", len(data), out.GetShape())
	}

	rows := make([][]float32, len(ids))
	for i := range ids {
		base := (i + 1) * numLabels
		rows[i] = softmax(data[base : base+numLabels])
	}
	return rows, nil
}

func (c *onnxClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	return nil
}

func softmax(logits []float32) []float32 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	out := make([]float32, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
