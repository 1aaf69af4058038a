// Package event defines the record type that flows from the broker through
// the buffer into storage.
//
// A Record keeps the broker metadata of the message it came from. When the
// payload is a CloudEvent, Record.Event holds the parsed event and
// EventTime prefers the event's own time:
//
//	record := event.Record{
//	    Topic:     "orders",
//	    Partition: 3,
//	    Offset:    1200,
//	    Value:     []byte(`{"id":"o-1"}`),
//	    Timestamp: time.Now(),
//	}
//	day := record.EventTime().Format("2006-01-02")
//
// Record implements Size() int, so a buffer.Engine[event.Record] counts
// key and value bytes toward MaxBytes without a SizeFunc.
package event
