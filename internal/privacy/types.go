package privacy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Severity ranks how damaging an exposed entity is
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseSeverity parses a severity name, case-insensitively
func ParseSeverity(name string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for sev, n := range severityNames {
		if n == upper {
			return sev, nil
		}
	}
	return SeverityUnknown, fmt.Errorf("unknown severity: %q", name)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MethodRegex identifies matches produced by the pattern layer
const MethodRegex = "regex"

// Match is one detected PII occurrence. Start and End are byte offsets into the analyzed text.
type Match struct {
	Type        string   `json:"type"`
	Value       string   `json:"value"`
	MaskedValue string   `json:"masked_value"`
	Confidence  float64  `json:"confidence"`
	Severity    Severity `json:"severity"`
	Context     string   `json:"context"`
	Method      string   `json:"method"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
}

// Pattern is a single regex detection rule
type Pattern struct {
	Type       string
	Regexp     *regexp.Regexp
	Group      int
	Severity   Severity
	Confidence float64
	Validate   func(string) bool
}

// ModelStatus reports which detection layers are active
type ModelStatus struct {
	Regex     bool            `json:"regex"`
	Patterns  int             `json:"patterns"`
	Providers map[string]bool `json:"providers"`
}
