package encoder

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jittakal/kafbulk/pkg/event"
)

// row is the flattened, format-neutral view of a record shared by all encoders.
type row struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       *string
	Value     string
	Headers   *string
	Timestamp time.Time

	EventID          *string
	EventSource      *string
	EventType        *string
	EventSubject     *string
	EventSpecVersion *string
	DataContentType  *string
	EventTime        *time.Time

	IngestedAt time.Time
}

func toRow(r *event.Record) row {
	out := row{
		Topic:      r.Topic,
		Partition:  r.Partition,
		Offset:     r.Offset,
		Value:      string(r.Value),
		Timestamp:  r.Timestamp,
		IngestedAt: r.ReceivedAt,
	}
	if len(r.Key) > 0 {
		out.Key = stringPtr(string(r.Key))
	}
	if len(r.Headers) > 0 {
		if b, err := json.Marshal(r.Headers); err == nil {
			out.Headers = stringPtr(string(b))
		}
	}
	if ev := r.Event; ev != nil {
		out.EventID = optional(ev.ID())
		out.EventSource = optional(ev.Source())
		out.EventType = optional(ev.Type())
		out.EventSubject = optional(ev.Subject())
		out.EventSpecVersion = optional(ev.SpecVersion())
		out.DataContentType = optional(ev.DataContentType())
		if t := ev.Time(); !t.IsZero() {
			out.EventTime = &t
		}
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func newStats(records []event.Record) *event.FileStats {
	stats := &event.FileStats{}
	for i := range records {
		stats.Observe(&records[i])
	}
	return stats
}
