package privacy

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PatternFile is the YAML document holding extra patterns
type PatternFile struct {
	Patterns []PatternSpec `yaml:"patterns"`
}

// PatternSpec is one user-defined pattern
type PatternSpec struct {
	Type       string  `yaml:"type"`
	Pattern    string  `yaml:"pattern"`
	Group      int     `yaml:"group"`
	Severity   string  `yaml:"severity"`
	Confidence float64 `yaml:"confidence"`
	MinLength  int     `yaml:"min_length"`
}

// LoadPatternFile reads extra patterns from a YAML file
func LoadPatternFile(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	return ParsePatterns(data)
}

// ParsePatterns compiles a YAML pattern document
func ParsePatterns(data []byte) ([]Pattern, error) {
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	patterns := make([]Pattern, 0, len(file.Patterns))
	for i, entry := range file.Patterns {
		if entry.Type == "" {
			return nil, fmt.Errorf("pattern %d: type is required", i)
		}
		re, err := regexp.Compile(`(?i)` + entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", entry.Type, err)
		}
		if entry.Group < 0 || entry.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern %s: group %d does not exist", entry.Type, entry.Group)
		}
		severity, err := ParseSeverity(entry.Severity)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", entry.Type, err)
		}
		if entry.Confidence <= 0 || entry.Confidence > 1 {
			return nil, fmt.Errorf("pattern %s: confidence %v out of range", entry.Type, entry.Confidence)
		}

		p := Pattern{
			Type:       entry.Type,
			Regexp:     re,
			Group:      entry.Group,
			Severity:   severity,
			Confidence: entry.Confidence,
		}
		if entry.MinLength > 0 {
			p.Validate = minLength(entry.MinLength)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
