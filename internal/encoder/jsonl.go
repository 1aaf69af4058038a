package encoder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jittakal/kafbulk/pkg/encoder"
	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var _ encoder.Encoder = (*JSONLEncoder)(nil)

// jsonRecord is one line of a JSONL object.
type jsonRecord struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       *string   `json:"key,omitempty"`
	Value     string    `json:"value"`
	Headers   *string   `json:"headers,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	EventID          *string    `json:"event_id,omitempty"`
	EventSource      *string    `json:"event_source,omitempty"`
	EventType        *string    `json:"event_type,omitempty"`
	EventSubject     *string    `json:"event_subject,omitempty"`
	EventSpecVersion *string    `json:"event_spec_version,omitempty"`
	DataContentType  *string    `json:"data_content_type,omitempty"`
	EventTime        *time.Time `json:"event_time,omitempty"`

	IngestedAt time.Time `json:"ingested_at"`
}

// JSONLEncoder writes one JSON document per line, optionally compressed.
type JSONLEncoder struct {
	compression string
}

// NewJSONLEncoder creates a JSONL encoder. Supported compressions are
// "gzip", "zstd" and "uncompressed".
func NewJSONLEncoder(compression string) *JSONLEncoder {
	switch compression {
	case "gzip", "GZIP":
		compression = "gzip"
	case "zstd", "ZSTD":
		compression = "zstd"
	default:
		compression = "uncompressed"
	}
	return &JSONLEncoder{compression: compression}
}

// Encode writes records to w as newline-delimited JSON.
func (e *JSONLEncoder) Encode(w io.Writer, records []event.Record) (*event.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	cw := &countingWriter{w: w}
	out, err := e.wrap(cw)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(out)
	enc := json.NewEncoder(buf)
	for i := range records {
		if err := enc.Encode(jsonRecord(toRow(&records[i]))); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("failed to flush records: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize output: %w", err)
	}

	stats := newStats(records)
	stats.SizeBytes = cw.n
	return stats, nil
}

func (e *JSONLEncoder) wrap(w io.Writer) (io.WriteCloser, error) {
	switch e.compression {
	case "gzip":
		return gzip.NewWriter(w), nil
	case "zstd":
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nopCloser{w}, nil
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Format returns the file format.
func (e *JSONLEncoder) Format() event.FileFormat {
	return event.FormatJSONL
}

// FileExtension returns the file extension, including the compression suffix.
func (e *JSONLEncoder) FileExtension() string {
	switch e.compression {
	case "gzip":
		return ".jsonl.gz"
	case "zstd":
		return ".jsonl.zst"
	default:
		return ".jsonl"
	}
}

// ContentType returns the MIME type of JSONL objects.
func (e *JSONLEncoder) ContentType() string {
	return "application/x-ndjson"
}
