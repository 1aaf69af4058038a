package encoder

import (
	"bytes"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/jittakal/kafbulk/pkg/event"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testRecords returns one CloudEvent record followed by n-1 plain records.
func testRecords(t testing.TB, n int) []event.Record {
	t.Helper()

	ev := cloudevents.NewEvent()
	ev.SetID("evt-1")
	ev.SetSource("/orders")
	ev.SetType("order.created")
	ev.SetSubject("order-42")
	ev.SetTime(baseTime.Add(-time.Minute))
	if err := ev.SetData(cloudevents.ApplicationJSON, map[string]string{"id": "42"}); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}

	records := make([]event.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := event.Record{
			Topic:      "orders",
			Partition:  int32(i % 3),
			Offset:     int64(100 + i),
			Value:      []byte(`{"id":"42"}`),
			Timestamp:  baseTime.Add(time.Duration(i) * time.Second),
			ReceivedAt: baseTime.Add(time.Hour),
		}
		if i == 0 {
			rec.Key = []byte("order-42")
			rec.Headers = map[string]string{"trace": "abc"}
			rec.Event = &ev
		}
		records = append(records, rec)
	}
	return records
}

func TestNewFactory(t *testing.T) {
	factory := NewFactory(event.FormatParquet, "snappy")
	if factory.format != event.FormatParquet {
		t.Errorf("format = %v, want %v", factory.format, event.FormatParquet)
	}
	if factory.compression != "snappy" {
		t.Errorf("compression = %v, want snappy", factory.compression)
	}

	for _, format := range SupportedFormats() {
		if got := NewFactory(format, "").compression; got != DefaultCompression(format) {
			t.Errorf("%s: empty compression = %q, want %q", format, got, DefaultCompression(format))
		}
	}
}

func TestFactory_CreateEncoder(t *testing.T) {
	tests := []struct {
		name    string
		format  event.FileFormat
		wantExt string
		wantErr bool
	}{
		{"parquet format", event.FormatParquet, ".parquet", false},
		{"avro format", event.FormatAvro, ".avro", false},
		{"jsonl format", event.FormatJSONL, ".jsonl.gz", false},
		{"unsupported format", event.FileFormat("csv"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewFactory(tt.format, DefaultCompression(tt.format)).CreateEncoder()
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateEncoder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if enc.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", enc.Format(), tt.format)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %q, want %q", enc.FileExtension(), tt.wantExt)
			}
			if enc.ContentType() == "" {
				t.Error("ContentType() is empty")
			}
		})
	}
}

func TestSupportedCompressions(t *testing.T) {
	for _, format := range SupportedFormats() {
		t.Run(string(format), func(t *testing.T) {
			supported := SupportedCompressions(format)
			def := DefaultCompression(format)
			found := false
			for _, c := range supported {
				if c == def {
					found = true
				}
			}
			if !found {
				t.Errorf("default compression %q not in %v", def, supported)
			}
		})
	}

	if got := SupportedCompressions(event.FileFormat("csv")); len(got) != 0 {
		t.Errorf("SupportedCompressions(csv) = %v, want empty", got)
	}
}

func TestEncoders_EncodeEmptyRecords(t *testing.T) {
	for _, format := range SupportedFormats() {
		t.Run(string(format), func(t *testing.T) {
			enc, err := NewFactory(format, DefaultCompression(format)).CreateEncoder()
			if err != nil {
				t.Fatalf("CreateEncoder() error = %v", err)
			}
			var buf bytes.Buffer
			if _, err := enc.Encode(&buf, nil); err == nil {
				t.Error("Encode() expected error for empty records")
			}
		})
	}
}

func TestEncoders_Stats(t *testing.T) {
	records := testRecords(t, 5)

	for _, format := range SupportedFormats() {
		t.Run(string(format), func(t *testing.T) {
			enc, err := NewFactory(format, DefaultCompression(format)).CreateEncoder()
			if err != nil {
				t.Fatalf("CreateEncoder() error = %v", err)
			}

			var buf bytes.Buffer
			stats, err := enc.Encode(&buf, records)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if stats.RecordCount != len(records) {
				t.Errorf("RecordCount = %d, want %d", stats.RecordCount, len(records))
			}
			if stats.SizeBytes != int64(buf.Len()) {
				t.Errorf("SizeBytes = %d, want %d", stats.SizeBytes, buf.Len())
			}
			// the CloudEvent time of the first record is the earliest
			if want := baseTime.Add(-time.Minute); !stats.MinEventTime.Equal(want) {
				t.Errorf("MinEventTime = %v, want %v", stats.MinEventTime, want)
			}
			if want := baseTime.Add(4 * time.Second); !stats.MaxEventTime.Equal(want) {
				t.Errorf("MaxEventTime = %v, want %v", stats.MaxEventTime, want)
			}
		})
	}
}

func BenchmarkParquetEncoder_Encode(b *testing.B) {
	records := testRecords(b, 100)
	enc := NewParquetEncoder("snappy")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if _, err := enc.Encode(&buf, records); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAvroEncoder_Encode(b *testing.B) {
	records := testRecords(b, 100)
	enc, err := NewAvroEncoder("deflate")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if _, err := enc.Encode(&buf, records); err != nil {
			b.Fatal(err)
		}
	}
}
