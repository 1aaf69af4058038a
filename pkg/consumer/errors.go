package consumer

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("adapter already started")
	ErrStopped        = errors.New("adapter stopped")
)

// ConnectionError is returned by Start when every connect attempt failed.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SubscriptionError is returned by Start when the topic subscription failed.
type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to subscribe to topic %s: %v", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// DecodeError describes a message payload that could not be turned into an item.
type DecodeError struct {
	Topic     string
	Partition int32
	Offset    int64
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode message topic=%s partition=%d offset=%d: %v",
		e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DisconnectError wraps a failure to release the broker connection.
type DisconnectError struct {
	Err error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("failed to disconnect: %v", e.Err)
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}
