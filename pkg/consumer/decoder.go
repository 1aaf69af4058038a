package consumer

import (
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Decoder turns a message into a buffered item. Messages with an empty
// payload never reach the decoder.
type Decoder[T any] func(msg Message) (T, error)

// StringDecoder yields the payload as a string.
func StringDecoder(msg Message) (string, error) {
	return string(msg.Value), nil
}

// BytesDecoder yields a copy of the payload.
func BytesDecoder(msg Message) ([]byte, error) {
	return append([]byte(nil), msg.Value...), nil
}

// JSONDecoder unmarshals the payload into T.
func JSONDecoder[T any]() Decoder[T] {
	return func(msg Message) (T, error) {
		var item T
		if err := json.Unmarshal(msg.Value, &item); err != nil {
			return item, fmt.Errorf("failed to unmarshal json payload: %w", err)
		}
		return item, nil
	}
}

// CloudEventDecoder parses a structured-mode CloudEvent and validates its
// required attributes.
func CloudEventDecoder(msg Message) (cloudevents.Event, error) {
	var ev cloudevents.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal cloud event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return ev, fmt.Errorf("invalid cloud event: %w", err)
	}
	return ev, nil
}
