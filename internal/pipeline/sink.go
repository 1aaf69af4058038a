package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	apperrors "github.com/jittakal/kafbulk/internal/errors"
	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/jittakal/kafbulk/pkg/storage"
)

// DeadLetter receives the records of a batch that could not be stored.
type DeadLetter interface {
	PublishRecords(ctx context.Context, records []event.Record, reason error) error
}

// MetricsCollector defines metrics operations for the sink.
type MetricsCollector interface {
	IncWriteRetries(topic string)
	IncDeadLettered(topic string, count int)
}

// RetryConfig bounds the retries of one object write. Only errors that
// report themselves retryable are retried.
type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
}

// SinkConfig configures a Sink.
type SinkConfig struct {
	Writer     storage.Writer
	Router     storage.Router
	DeadLetter DeadLetter
	Retry      RetryConfig
	Logger     *slog.Logger
	Metrics    MetricsCollector
}

// Sink is the flush action of the service. It splits a batch by topic and
// routed directory, writes one object per group and dead-letters the groups
// that fail.
type Sink struct {
	writer     storage.Writer
	router     storage.Router
	deadLetter DeadLetter
	retry      RetryConfig
	logger     *slog.Logger
	metrics    MetricsCollector
}

// NewSink creates a sink.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("storage writer is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("storage router is required")
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	return &Sink{
		writer:     cfg.Writer,
		router:     cfg.Router,
		deadLetter: cfg.DeadLetter,
		retry:      cfg.Retry,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

type group struct {
	topic   string
	dir     string
	records []event.Record
}

// partition splits records by topic and directory, keeping the order of
// first appearance and the record order within each group.
func (s *Sink) partition(records []event.Record) []*group {
	var groups []*group
	index := make(map[[2]string]*group)
	for i := range records {
		r := &records[i]
		dir := s.router.Route(r.Topic, r.EventTime())
		k := [2]string{r.Topic, dir}
		g, ok := index[k]
		if !ok {
			g = &group{topic: r.Topic, dir: dir}
			index[k] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, *r)
	}
	return groups
}

// Flush writes batch. It returns an error joining every group that could
// not be stored, whether or not it was dead-lettered.
func (s *Sink) Flush(ctx context.Context, batch []event.Record) error {
	var errs []error
	for _, g := range s.partition(batch) {
		if err := s.write(ctx, g); err != nil {
			s.deadLetterGroup(ctx, g, err)
			errs = append(errs, fmt.Errorf("write %d records of %s: %w", len(g.records), g.topic, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) write(ctx context.Context, g *group) error {
	return retry.Do(
		func() error {
			_, err := s.writer.Write(ctx, g.records, g.dir)
			return err
		},
		retry.Attempts(s.retry.Attempts),
		retry.Delay(s.retry.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(apperrors.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= s.retry.Attempts {
				return
			}
			s.metrics.IncWriteRetries(g.topic)
			s.logger.Warn("object write failed, retrying",
				"topic", g.topic,
				"dir", g.dir,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
}

func (s *Sink) deadLetterGroup(ctx context.Context, g *group, reason error) {
	if s.deadLetter == nil {
		return
	}
	if err := s.deadLetter.PublishRecords(ctx, g.records, reason); err != nil {
		s.logger.Error("failed to dead-letter batch",
			"topic", g.topic,
			"batch_size", len(g.records),
			"error", err,
		)
		return
	}
	s.metrics.IncDeadLettered(g.topic, len(g.records))
}

type noopMetrics struct{}

func (noopMetrics) IncWriteRetries(string)      {}
func (noopMetrics) IncDeadLettered(string, int) {}
