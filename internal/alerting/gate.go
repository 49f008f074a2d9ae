package alerting

import (
	"strings"
	"sync"
)

// Gate decides which findings are accurate enough to alert on
type Gate struct {
	mu         sync.RWMutex
	thresholds map[string]float64
}

// DefaultThresholds returns the per-method minimum confidences
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		"regex":       0.85,
		"transformer": 0.92,
	}
}

// NewGate creates a gate; nil thresholds select the defaults
func NewGate(thresholds map[string]float64) *Gate {
	g := &Gate{}
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	g.SetThresholds(thresholds)
	return g
}

// Qualifies reports whether a finding from method with the given confidence is high-accuracy
func (g *Gate) Qualifies(method string, confidence float64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	threshold, ok := g.thresholds[strings.ToLower(method)]
	return ok && confidence >= threshold
}

// SetThresholds replaces the threshold table
func (g *Gate) SetThresholds(thresholds map[string]float64) {
	table := make(map[string]float64, len(thresholds))
	for method, t := range thresholds {
		table[strings.ToLower(method)] = t
	}
	g.mu.Lock()
	g.thresholds = table
	g.mu.Unlock()
}

// Thresholds returns a copy of the threshold table
func (g *Gate) Thresholds() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]float64, len(g.thresholds))
	for k, v := range g.thresholds {
		out[k] = v
	}
	return out
}
