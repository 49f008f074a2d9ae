package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"
)

// Writer persists finding rows
type Writer interface {
	Write(rows []FindingRow) error
	Close() error
}

// CreateWriter creates a Parquet writer for .parquet paths and JSON lines otherwise
func CreateWriter(path string) (Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	if DetectFileFormat(path) == FormatParquet {
		return &parquetWriter{file: file, writer: parquet.NewGenericWriter[FindingRow](file)}, nil
	}
	buf := bufio.NewWriter(file)
	return &jsonWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[FindingRow]
}

func (w *parquetWriter) Write(rows []FindingRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := w.writer.Write(rows)
	return err
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize parquet output: %w", err)
	}
	return w.file.Close()
}

type jsonWriter struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func (w *jsonWriter) Write(rows []FindingRow) error {
	for i := range rows {
		if err := w.enc.Encode(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *jsonWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
