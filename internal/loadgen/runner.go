package loadgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"k8s.io/utils/clock"
)

// Publisher sends one event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev cloudevents.Event) error
}

// MetricsCollector defines metrics operations for the load generator.
type MetricsCollector interface {
	IncEventsProduced(topic, eventType string)
	IncEventsFailed(topic, eventType string)
}

// Config controls a Runner.
type Config struct {
	Topic string
	// Interval between events; zero produces back to back.
	Interval time.Duration
	// Count stops the runner after that many attempts; zero runs until the
	// context is cancelled.
	Count        int
	ShippedRatio float64
}

// Stats counts what a run produced.
type Stats struct {
	Produced int
	Failed   int
}

// Runner produces generated events until cancelled or Count is reached.
type Runner struct {
	cfg       Config
	publisher Publisher
	generator *Generator
	clock     clock.WithTicker
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config, publisher Publisher, generator *Generator, logger *slog.Logger, metrics MetricsCollector) (*Runner, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Interval < 0 || cfg.Count < 0 {
		return nil, fmt.Errorf("interval and count must not be negative")
	}
	if cfg.ShippedRatio < 0 || cfg.ShippedRatio > 1 {
		return nil, fmt.Errorf("shipped ratio must be within [0, 1], got %v", cfg.ShippedRatio)
	}
	if publisher == nil || generator == nil {
		return nil, fmt.Errorf("publisher and generator are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Runner{
		cfg:       cfg,
		publisher: publisher,
		generator: generator,
		clock:     clock.RealClock{},
		logger:    logger.With("topic", cfg.Topic),
		metrics:   metrics,
	}, nil
}

// Run produces events and returns when ctx is done or Count attempts have
// been made. Publish failures are counted and logged, never fatal.
func (r *Runner) Run(ctx context.Context) Stats {
	var stats Stats
	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		ticker := r.clock.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	r.logger.Info("load generation started", "interval", r.cfg.Interval, "count", r.cfg.Count)
	for {
		if ctx.Err() != nil {
			break
		}
		r.produce(ctx, &stats)
		if r.cfg.Count > 0 && stats.Produced+stats.Failed >= r.cfg.Count {
			break
		}
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-tick:
		}
	}

	r.logger.Info("load generation stopped", "produced", stats.Produced, "failed", stats.Failed)
	return stats
}

func (r *Runner) produce(ctx context.Context, stats *Stats) {
	ev, err := r.generator.Next(r.cfg.ShippedRatio)
	if err != nil {
		stats.Failed++
		r.logger.Error("failed to generate event", "error", err)
		return
	}

	if err := r.publisher.Publish(ctx, r.cfg.Topic, ev); err != nil {
		stats.Failed++
		r.metrics.IncEventsFailed(r.cfg.Topic, ev.Type())
		r.logger.Error("failed to produce event", "error", err, "event_id", ev.ID())
		return
	}
	stats.Produced++
	r.metrics.IncEventsProduced(r.cfg.Topic, ev.Type())
}

type noopMetrics struct{}

func (noopMetrics) IncEventsProduced(string, string) {}
func (noopMetrics) IncEventsFailed(string, string)   {}
