package encoder

import (
	"fmt"
	"io"
	"time"

	"github.com/jittakal/kafbulk/pkg/encoder"
	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/linkedin/goavro/v2"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Avro Object Container Files.
// Blocks are compressed with the OCF codec named by the compression setting.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: ocfCompression(compression),
	}, nil
}

// ocfCompression maps a configured compression name to an OCF codec label.
func ocfCompression(compression string) string {
	switch compression {
	case "deflate", "DEFLATE", "gzip", "GZIP":
		return goavro.CompressionDeflateLabel
	case "snappy", "SNAPPY":
		return goavro.CompressionSnappyLabel
	default:
		return goavro.CompressionNullLabel
	}
}

// avroSchema returns the Avro schema for stored records.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "Record",
		"namespace": "io.kafbulk",
		"fields": [
			{"name": "topic", "type": "string"},
			{"name": "partition", "type": "int"},
			{"name": "offset", "type": "long"},
			{"name": "key", "type": ["null", "string"], "default": null},
			{"name": "value", "type": "string"},
			{"name": "headers", "type": ["null", "string"], "default": null},
			{"name": "timestamp", "type": {"type": "long", "logicalType": "timestamp-micros"}},
			{"name": "event_id", "type": ["null", "string"], "default": null},
			{"name": "event_source", "type": ["null", "string"], "default": null},
			{"name": "event_type", "type": ["null", "string"], "default": null},
			{"name": "event_subject", "type": ["null", "string"], "default": null},
			{"name": "event_spec_version", "type": ["null", "string"], "default": null},
			{"name": "data_content_type", "type": ["null", "string"], "default": null},
			{"name": "event_time", "type": ["null", {"type": "long", "logicalType": "timestamp-micros"}], "default": null},
			{"name": "ingested_at", "type": {"type": "long", "logicalType": "timestamp-micros"}}
		]
	}`
}

// Encode writes records to w as one OCF file.
func (e *AvroEncoder) Encode(w io.Writer, records []event.Record) (*event.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	cw := &countingWriter{w: w}
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               cw,
		Codec:           e.codec,
		CompressionName: e.compression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	datums := make([]interface{}, len(records))
	for i := range records {
		datums[i] = toAvroMap(toRow(&records[i]))
	}
	if err := ocfWriter.Append(datums); err != nil {
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	stats := newStats(records)
	stats.SizeBytes = cw.n
	return stats, nil
}

// toAvroMap converts a row to the native map goavro expects. Nullable
// fields are wrapped with goavro.Union.
func toAvroMap(r row) map[string]interface{} {
	return map[string]interface{}{
		"topic":              r.Topic,
		"partition":          r.Partition,
		"offset":             r.Offset,
		"key":                avroString(r.Key),
		"value":              r.Value,
		"headers":            avroString(r.Headers),
		"timestamp":          r.Timestamp.UTC(),
		"event_id":           avroString(r.EventID),
		"event_source":       avroString(r.EventSource),
		"event_type":         avroString(r.EventType),
		"event_subject":      avroString(r.EventSubject),
		"event_spec_version": avroString(r.EventSpecVersion),
		"data_content_type":  avroString(r.DataContentType),
		"event_time":         avroTime(r.EventTime),
		"ingested_at":        r.IngestedAt.UTC(),
	}
}

func avroString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return goavro.Union("string", *s)
}

func avroTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return goavro.Union("long.timestamp-micros", t.UTC())
}

// Format returns the file format.
func (e *AvroEncoder) Format() event.FileFormat {
	return event.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	return ".avro"
}

// ContentType returns the MIME type of Avro objects.
func (e *AvroEncoder) ContentType() string {
	return "application/avro"
}
