package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one input row to analyze
type Record struct {
	ID   string `parquet:"id,optional" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// FindingRow is one detected PII entity in the output dataset. Raw values are never written.
type FindingRow struct {
	Row         int64   `parquet:"row" json:"row"`
	RecordID    string  `parquet:"record_id" json:"record_id"`
	Type        string  `parquet:"type" json:"type"`
	MaskedValue string  `parquet:"masked_value" json:"masked_value"`
	Severity    string  `parquet:"severity" json:"severity"`
	Confidence  float64 `parquet:"confidence" json:"confidence"`
	Method      string  `parquet:"method" json:"method"`
	Start       int64   `parquet:"start" json:"start"`
	End         int64   `parquet:"end" json:"end"`
}

// Result summarizes a processed dataset
type Result struct {
	TotalRecords   int64          `json:"total_records"`
	Analyzed       int64          `json:"analyzed"`
	Skipped        int64          `json:"skipped"`
	RecordsWithPII int64          `json:"records_with_pii"`
	TotalFindings  int64          `json:"total_findings"`
	BySeverity     map[string]int `json:"by_severity"`
	ByMethod       map[string]int `json:"by_method"`
	Duration       time.Duration  `json:"duration"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`           // 500
	WorkerCount    int  `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ValidateData   bool `yaml:"validate_data" mapstructure:"validate_data"`     // true
	MaxTextLength  int  `yaml:"max_text_length" mapstructure:"max_text_length"` // 50000
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"` // 1000
}

// DefaultConfig returns the pipeline defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:      500,
		WorkerCount:    4,
		ValidateData:   true,
		MaxTextLength:  50000,
		ProgressReport: 1000,
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. JSON input is one object per line.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
