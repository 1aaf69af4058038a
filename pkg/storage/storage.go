// Package storage defines interfaces for writing batches of records to
// object storage.
package storage

import (
	"context"
	"time"

	"github.com/jittakal/kafbulk/pkg/event"
)

// Object describes a written object.
type Object struct {
	Key       string
	Records   int
	SizeBytes int64
}

// Writer writes one batch of records as one object.
type Writer interface {
	// Write encodes records into a new object under dir.
	Write(ctx context.Context, records []event.Record, dir string) (Object, error)

	// Close releases resources.
	Close() error
}

// Router determines the directory a batch is written to.
type Router interface {
	// Route returns the directory for records of topic with the given event time.
	Route(topic string, eventTime time.Time) string
}
