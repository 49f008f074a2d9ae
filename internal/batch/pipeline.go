package batch

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/privacy"
	"go.uber.org/zap"
)

// Pipeline analyzes datasets in batches, fanning each batch across workers
type Pipeline struct {
	analyzer acquire.Analyzer
	config   Config
	logger   *logger.Logger
}

// NewPipeline creates a batch pipeline. Zero config fields take defaults.
func NewPipeline(analyzer acquire.Analyzer, cfg Config, log *logger.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = def.MaxTextLength
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = def.ProgressReport
	}
	return &Pipeline{analyzer: analyzer, config: cfg, logger: log.WithComponent("batch")}
}

// ProcessFile analyzes a CSV, Parquet or JSON-lines file. out may be nil.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, out Writer) (*Result, error) {
	src, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	p.logger.Info("Starting batch analysis",
		zap.String("file", path),
		zap.String("format", string(DetectFileFormat(path))),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))
	return p.Process(ctx, src, out)
}

// Process drains src, writing findings to out in input order
func (p *Pipeline) Process(ctx context.Context, src Source, out Writer) (*Result, error) {
	start := time.Now()
	result := &Result{BySeverity: map[string]int{}, ByMethod: map[string]int{}}
	var row int64
	nextReport := int64(p.config.ProgressReport)

	for {
		if err := ctx.Err(); err != nil {
			return p.finish(result, src, start), err
		}

		batch, readErr := src.Next(p.config.BatchSize)
		if len(batch) > 0 {
			rows := p.processBatch(ctx, batch, row, result)
			row += int64(len(batch))
			if out != nil {
				if err := out.Write(rows); err != nil {
					return p.finish(result, src, start), fmt.Errorf("failed to write findings: %w", err)
				}
			}
			if result.TotalRecords >= nextReport {
				p.reportProgress(result, start)
				nextReport += int64(p.config.ProgressReport)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return p.finish(result, src, start), fmt.Errorf("failed to read batch: %w", readErr)
		}
	}

	p.finish(result, src, start)
	p.logger.Info("Batch analysis completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("analyzed", result.Analyzed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("total_findings", result.TotalFindings),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) finish(result *Result, src Source, start time.Time) *Result {
	result.Skipped += src.Skipped()
	result.TotalRecords += src.Skipped()
	result.Duration = time.Since(start)
	return result
}

// processBatch detects PII in every record of the batch using the worker pool
func (p *Pipeline) processBatch(ctx context.Context, batch []Record, base int64, result *Result) []FindingRow {
	matches := make([][]privacy.Match, len(batch))
	valid := make([]bool, len(batch))
	for i := range batch {
		valid[i] = p.validateRecord(&batch[i], base+int64(i)+1)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(p.config.WorkerCount, len(batch))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				matches[i] = p.analyzer.Detect(ctx, batch[i].Text)
			}
		}()
	}
	for i := range batch {
		if valid[i] {
			jobs <- i
		}
	}
	close(jobs)
	wg.Wait()

	var rows []FindingRow
	for i, rec := range batch {
		result.TotalRecords++
		if !valid[i] {
			result.Skipped++
			continue
		}
		result.Analyzed++
		if len(matches[i]) == 0 {
			continue
		}
		result.RecordsWithPII++

		rowNo := base + int64(i) + 1
		id := rec.ID
		if id == "" {
			id = strconv.FormatInt(rowNo, 10)
		}
		for _, m := range matches[i] {
			result.TotalFindings++
			result.BySeverity[m.Severity.String()]++
			result.ByMethod[m.Method]++

			masked := m.MaskedValue
			if masked == "" {
				masked = privacy.Mask(m.Value, m.Type)
			}
			rows = append(rows, FindingRow{
				Row:         rowNo,
				RecordID:    id,
				Type:        m.Type,
				MaskedValue: masked,
				Severity:    m.Severity.String(),
				Confidence:  m.Confidence,
				Method:      m.Method,
				Start:       int64(m.Start),
				End:         int64(m.End),
			})
		}
	}
	return rows
}

// validateRecord rejects empty and oversized texts
func (p *Pipeline) validateRecord(rec *Record, row int64) bool {
	if !p.config.ValidateData {
		return true
	}
	if strings.TrimSpace(rec.Text) == "" {
		p.logger.Debug("Invalid record: empty text", zap.Int64("row", row))
		return false
	}
	if len(rec.Text) > p.config.MaxTextLength {
		p.logger.Debug("Invalid record: text too long", zap.Int64("row", row), zap.Int("length", len(rec.Text)))
		return false
	}
	return true
}

func (p *Pipeline) reportProgress(result *Result, start time.Time) {
	elapsed := time.Since(start)
	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("findings", result.TotalFindings),
		zap.Float64("rate_per_sec", float64(result.TotalRecords)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}
