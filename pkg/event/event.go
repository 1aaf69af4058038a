package event

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// PartitionID identifies a topic partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// Record is one consumed message as it is buffered and stored.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time

	// Event is set when the payload was decoded as a CloudEvent. Value then
	// holds the event data.
	Event *cloudevents.Event

	ReceivedAt time.Time
}

// PartitionID returns the partition the record was read from.
func (r *Record) PartitionID() PartitionID {
	return PartitionID{Topic: r.Topic, Partition: r.Partition}
}

// Size returns the number of payload bytes the record carries.
func (r Record) Size() int {
	return len(r.Key) + len(r.Value)
}

// EventTime returns the CloudEvent time when present, otherwise the broker
// timestamp, otherwise the time the record was received.
func (r *Record) EventTime() time.Time {
	if r.Event != nil && !r.Event.Time().IsZero() {
		return r.Event.Time()
	}
	if !r.Timestamp.IsZero() {
		return r.Timestamp
	}
	return r.ReceivedAt
}

// FileStats describes one encoded object.
type FileStats struct {
	RecordCount  int
	SizeBytes    int64
	MinEventTime time.Time
	MaxEventTime time.Time
}

// Observe widens the event time range to include r.
func (s *FileStats) Observe(r *Record) {
	t := r.EventTime()
	if s.MinEventTime.IsZero() || t.Before(s.MinEventTime) {
		s.MinEventTime = t
	}
	if t.After(s.MaxEventTime) {
		s.MaxEventTime = t
	}
	s.RecordCount++
}

// FileFormat represents the storage file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
	FormatJSONL   FileFormat = "jsonl"
)

// ParseFileFormat validates a configured format name.
func ParseFileFormat(s string) (FileFormat, error) {
	switch f := FileFormat(s); f {
	case FormatParquet, FormatAvro, FormatJSONL:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported file format: %s", s)
	}
}
