package buffer

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoThreshold   = errors.New("at least one threshold from flush interval, max items, max bytes or custom thresholds must be specified")
	ErrNoFlushAction = errors.New("flush action is required")
)

// ConfigurationError is returned when an engine is built or updated into a
// state that could never flush.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("buffer configuration error: %v", e.Err)
	}
	return fmt.Sprintf("buffer configuration error: field=%s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SinkError reports a failed flush action. The batch it carried was discarded.
type SinkError struct {
	Reason Reason
	Items  int
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("flush action failed: reason=%s items=%d: %v", e.Reason, e.Items, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
