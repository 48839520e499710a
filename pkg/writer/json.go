// Package writer encodes reports as JSON or gzipped JSON.
package writer

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter writes data as JSON.
type JSONWriter[T any] struct {
	// Indent is the per-level indentation; empty means compact output.
	Indent string
}

// NewJSONWriter creates a new JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{}
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// Write writes the data as JSON to the writer.
func (w *JSONWriter[T]) Write(data T, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	if w.Indent != "" {
		encoder.SetIndent("", w.Indent)
	}
	return encoder.Encode(data)
}

// GzipWriter writes data as gzipped JSON.
type GzipWriter[T any] struct {
	// CompressionLevel is the gzip compression level (1-9).
	CompressionLevel int
}

// NewGzipWriter creates a new gzip writer with default compression.
func NewGzipWriter[T any]() *GzipWriter[T] {
	return &GzipWriter[T]{CompressionLevel: gzip.DefaultCompression}
}

// NewGzipWriterWithLevel creates a gzip writer with specified compression level.
func NewGzipWriterWithLevel[T any](level int) *GzipWriter[T] {
	return &GzipWriter[T]{CompressionLevel: level}
}

// Write writes the data as gzipped JSON to the writer.
func (w *GzipWriter[T]) Write(data T, writer io.Writer) error {
	gzWriter, err := gzip.NewWriterLevel(writer, w.CompressionLevel)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return gzWriter.Close()
}

// WriteResult describes an encoded payload.
type WriteResult struct {
	JSONSize       int64   `json:"jsonSize"`
	CompressedSize int64   `json:"compressedSize"`
	CompressionPct float64 `json:"compressionPct"`
}

// Encode gzips data in memory and reports the sizes before and after
// compression.
func (w *GzipWriter[T]) Encode(data T) (*bytes.Buffer, *WriteResult, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	buf := &bytes.Buffer{}
	gzWriter, err := gzip.NewWriterLevel(buf, w.CompressionLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := gzWriter.Write(jsonData); err != nil {
		_ = gzWriter.Close()
		return nil, nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	result := &WriteResult{
		JSONSize:       int64(len(jsonData)),
		CompressedSize: int64(buf.Len()),
	}
	if result.JSONSize > 0 {
		result.CompressionPct = float64(result.CompressedSize) / float64(result.JSONSize) * 100
	}
	return buf, result, nil
}
