package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
)

// Connect retry defaults.
const (
	DefaultMaxRetries = 10
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
)

// Backoff configures connect retries. After the first attempt fails the
// client is retried up to MaxRetries times, waiting Delay(n) before retry n.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultBackoff returns the connect retry defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

func (b Backoff) withDefaults() Backoff {
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = DefaultBaseDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultMaxDelay
	}
	return b
}

// Delay returns the wait before retry attempt (1-based):
// min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := b.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.MaxDelay || d <= 0 {
			return b.MaxDelay
		}
	}
	if d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// retry runs fn until it succeeds, the retries are exhausted or ctx ends.
// It returns the number of attempts made and the last error.
func (b Backoff) retry(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context) error) (int, error) {
	b = b.withDefaults()
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(b.MaxRetries)+1),
		retry.Delay(b.BaseDelay),
		retry.MaxDelay(b.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if int(n) >= b.MaxRetries {
				return
			}
			logger.Warn("connect attempt failed, retrying",
				"attempt", n+1,
				"max_retries", b.MaxRetries,
				"retry_in", b.Delay(int(n)+1),
				"error", err,
			)
		}),
	)
	return attempts, err
}
