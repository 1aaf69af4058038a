// Package encoder implements file format encoders.
package encoder

import (
	"fmt"
	"io"
	"time"

	"github.com/jittakal/kafbulk/pkg/encoder"
	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/parquet-go/parquet-go"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// RecordParquet is the Parquet schema for stored records.
// Time columns use TIMESTAMP_MICROS for Athena compatibility.
type RecordParquet struct {
	Topic     string    `parquet:"topic,dict"`
	Partition int32     `parquet:"partition"`
	Offset    int64     `parquet:"offset"`
	Key       *string   `parquet:"key,optional"`
	Value     string    `parquet:"value"`
	Headers   *string   `parquet:"headers,optional"`
	Timestamp time.Time `parquet:"timestamp,timestamp(microsecond)"`

	// CloudEvent attributes, NULL for plain payloads
	EventID          *string    `parquet:"event_id,optional"`
	EventSource      *string    `parquet:"event_source,dict,optional"`
	EventType        *string    `parquet:"event_type,dict,optional"`
	EventSubject     *string    `parquet:"event_subject,optional"`
	EventSpecVersion *string    `parquet:"event_spec_version,dict,optional"`
	DataContentType  *string    `parquet:"data_content_type,dict,optional"`
	EventTime        *time.Time `parquet:"event_time,timestamp(microsecond),optional"`

	IngestedAt time.Time `parquet:"ingested_at,timestamp(microsecond)"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet.
// Supports SNAPPY (default), GZIP, LZ4, ZSTD and no compression.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes records to w as a single Parquet file.
func (e *ParquetEncoder) Encode(w io.Writer, records []event.Record) (*event.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	rows := make([]RecordParquet, len(records))
	for i := range records {
		rows[i] = RecordParquet(toRow(&records[i]))
	}

	cw := &countingWriter{w: w}
	writer := parquet.NewGenericWriter[RecordParquet](
		cw,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("kafbulk", "1.0", "0"),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write records: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	stats := newStats(records)
	stats.SizeBytes = cw.n
	return stats, nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() event.FileFormat {
	return event.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}

// ContentType returns the MIME type of Parquet objects.
func (e *ParquetEncoder) ContentType() string {
	return "application/vnd.apache.parquet"
}
