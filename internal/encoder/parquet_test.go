package encoder

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func readParquet(t *testing.T, b []byte) []RecordParquet {
	t.Helper()
	rows, err := parquet.Read[RecordParquet](bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("failed to read parquet: %v", err)
	}
	return rows
}

func TestParquetEncoder_Encode(t *testing.T) {
	records := testRecords(t, 3)
	enc := NewParquetEncoder("snappy")

	var buf bytes.Buffer
	if _, err := enc.Encode(&buf, records); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	rows := readParquet(t, buf.Bytes())
	if len(rows) != len(records) {
		t.Fatalf("row count = %d, want %d", len(rows), len(records))
	}

	first := rows[0]
	if first.Topic != "orders" || first.Offset != 100 {
		t.Errorf("first row = %s/%d, want orders/100", first.Topic, first.Offset)
	}
	if first.Key == nil || *first.Key != "order-42" {
		t.Errorf("Key = %v, want order-42", first.Key)
	}
	if first.Headers == nil || *first.Headers != `{"trace":"abc"}` {
		t.Errorf("Headers = %v, want trace json", first.Headers)
	}
	if first.EventID == nil || *first.EventID != "evt-1" {
		t.Errorf("EventID = %v, want evt-1", first.EventID)
	}
	if first.EventTime == nil || !first.EventTime.Equal(records[0].Event.Time()) {
		t.Errorf("EventTime = %v, want %v", first.EventTime, records[0].Event.Time())
	}
	if !first.IngestedAt.Equal(records[0].ReceivedAt) {
		t.Errorf("IngestedAt = %v, want %v", first.IngestedAt, records[0].ReceivedAt)
	}
}

func TestParquetEncoder_NullHandling(t *testing.T) {
	records := testRecords(t, 2)
	enc := NewParquetEncoder("uncompressed")

	var buf bytes.Buffer
	if _, err := enc.Encode(&buf, records[1:]); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	row := readParquet(t, buf.Bytes())[0]
	if row.Key != nil {
		t.Errorf("Key = %q, want nil", *row.Key)
	}
	if row.EventID != nil || row.EventType != nil || row.EventTime != nil {
		t.Error("CloudEvent columns should be null for plain records")
	}
	if row.Value != `{"id":"42"}` {
		t.Errorf("Value = %q", row.Value)
	}
}

func TestParquetEncoder_CompressionCodecs(t *testing.T) {
	records := testRecords(t, 10)

	for _, compression := range SupportedCompressions("parquet") {
		t.Run(compression, func(t *testing.T) {
			var buf bytes.Buffer
			if _, err := NewParquetEncoder(compression).Encode(&buf, records); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got := len(readParquet(t, buf.Bytes())); got != len(records) {
				t.Errorf("row count = %d, want %d", got, len(records))
			}
		})
	}
}
