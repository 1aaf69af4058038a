// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrClientClosed   = errors.New("client is closed")
	ErrNotConnected   = errors.New("client is not connected")
	ErrNotSubscribed  = errors.New("client has no subscription")
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrWriterClosed   = errors.New("storage writer is closed")
	ErrConnectionLost = errors.New("connection lost")
)

// StorageError represents a storage operation failure.
type StorageError struct {
	Backend   string
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: backend=%s operation=%s path=%s: %v",
		e.Backend, e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	switch e.Operation {
	case "write", "upload", "create", "close", "rename":
		return true
	}
	return false
}

// PublishError represents a failure to publish to a Kafka topic.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish error: topic=%s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err is worth retrying. Errors implementing
// Retryable decide for themselves; otherwise only ErrConnectionLost is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrConnectionLost)
}
