// Package pipeline connects the stream adapter to object storage: it turns
// broker messages into records and writes flushed batches.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jittakal/kafbulk/pkg/consumer"
	"github.com/jittakal/kafbulk/pkg/event"
)

// Payload formats accepted by NewRecordDecoder.
const (
	PayloadRaw         = "raw"
	PayloadJSON        = "json"
	PayloadCloudEvents = "cloudevents"
)

var errInvalidJSON = errors.New("payload is not valid json")

// NewRecordDecoder returns a decoder producing event.Record for the given
// payload format. now stamps ReceivedAt; nil means time.Now.
func NewRecordDecoder(format string, now func() time.Time) (consumer.Decoder[event.Record], error) {
	if now == nil {
		now = time.Now
	}

	var validate func(*event.Record) error
	switch format {
	case PayloadRaw, "":
	case PayloadJSON:
		validate = func(r *event.Record) error {
			if !json.Valid(r.Value) {
				return errInvalidJSON
			}
			return nil
		}
	case PayloadCloudEvents:
		validate = attachCloudEvent
	default:
		return nil, fmt.Errorf("unsupported payload format: %s", format)
	}

	return func(msg consumer.Message) (event.Record, error) {
		rec := event.Record{
			Topic:      msg.Topic,
			Partition:  msg.Partition,
			Offset:     msg.Offset,
			Key:        append([]byte(nil), msg.Key...),
			Value:      append([]byte(nil), msg.Value...),
			Headers:    msg.Headers,
			Timestamp:  msg.Timestamp,
			ReceivedAt: now(),
		}
		if validate != nil {
			if err := validate(&rec); err != nil {
				return event.Record{}, err
			}
		}
		return rec, nil
	}, nil
}

// attachCloudEvent parses the payload as a structured CloudEvent and keeps
// only its data as the record value.
func attachCloudEvent(r *event.Record) error {
	ev, err := consumer.CloudEventDecoder(consumer.Message{Value: r.Value})
	if err != nil {
		return err
	}
	r.Event = &ev
	r.Value = ev.Data()
	return nil
}
