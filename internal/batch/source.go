package batch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"
)

// Source yields input records. Next returns io.EOF once drained.
type Source interface {
	Next(n int) ([]Record, error)
	// Skipped counts rows that could not be decoded
	Skipped() int64
	Close() error
}

// OpenSource opens a CSV, Parquet or JSON-lines dataset by extension
func OpenSource(path string) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var src Source
	switch DetectFileFormat(path) {
	case FormatParquet:
		src = &parquetSource{file: file, reader: parquet.NewGenericReader[Record](file)}
	case FormatJSON:
		src = newJSONSource(file)
	default:
		src, err = newCSVSource(file)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

type csvSource struct {
	closer  io.Closer
	reader  *csv.Reader
	textCol int
	idCol   int
	skipped int64
}

func newCSVSource(r io.ReadCloser) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	src := &csvSource{closer: r, reader: reader, textCol: -1, idCol: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "text":
			src.textCol = i
		case "id":
			src.idCol = i
		}
	}
	if src.textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}
	return src, nil
}

func (s *csvSource) Next(n int) ([]Record, error) {
	var batch []Record
	for len(batch) < n {
		row, err := s.reader.Read()
		if err == io.EOF {
			return batch, io.EOF
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				s.skipped++
				continue
			}
			return batch, err
		}
		if s.textCol >= len(row) {
			s.skipped++
			continue
		}
		rec := Record{Text: row[s.textCol]}
		if s.idCol >= 0 && s.idCol < len(row) {
			rec.ID = strings.TrimSpace(row[s.idCol])
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func (s *csvSource) Skipped() int64 { return s.skipped }
func (s *csvSource) Close() error   { return s.closer.Close() }

type parquetSource struct {
	file   *os.File
	reader *parquet.GenericReader[Record]
}

func (s *parquetSource) Next(n int) ([]Record, error) {
	batch := make([]Record, n)
	read, err := s.reader.Read(batch)
	return batch[:read], err
}

func (s *parquetSource) Skipped() int64 { return 0 }

func (s *parquetSource) Close() error {
	s.reader.Close()
	return s.file.Close()
}

// jsonSource reads one JSON object per line; malformed lines are skipped
type jsonSource struct {
	closer  io.Closer
	scanner *bufio.Scanner
	skipped int64
}

func newJSONSource(r io.ReadCloser) *jsonSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	return &jsonSource{closer: r, scanner: scanner}
}

func (s *jsonSource) Next(n int) ([]Record, error) {
	var batch []Record
	for len(batch) < n {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return batch, err
			}
			return batch, io.EOF
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.skipped++
			continue
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func (s *jsonSource) Skipped() int64 { return s.skipped }
func (s *jsonSource) Close() error   { return s.closer.Close() }
