package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jittakal/kafbulk/pkg/buffer"
	"k8s.io/utils/clock"
)

// Buffering defaults applied when Config.ApplyDefaults is set.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 5 * time.Second
)

// Skip reasons reported to MetricsCollector.IncMessagesSkipped.
const (
	SkipEmpty  = "empty"
	SkipDecode = "decode"
	SkipPanic  = "panic"
)

var (
	errNoFactory = errors.New("client factory is required")
	errNoTopic   = errors.New("topic is required")
	errNoDecoder = errors.New("decoder is required for this item type")
)

// MetricsCollector defines metrics operations for the stream adapter.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncMessagesSkipped(topic string, reason string)
	IncConnectAttempts(status string)
	SetState(state string)
}

// Config configures an Adapter.
type Config[T any] struct {
	Client        ClientConfig
	Topic         string
	FromBeginning bool

	// BatchSize maps to the engine's item count threshold.
	BatchSize            int
	FlushInterval        time.Duration
	MaxBufferSizeInBytes int64
	CustomThresholds     []buffer.Predicate[T]
	SizeFunc             buffer.SizeFunc[T]
	FlushAction          buffer.FlushFunc[T]

	// ApplyDefaults fills an unset BatchSize and FlushInterval with
	// DefaultBatchSize and DefaultFlushInterval.
	ApplyDefaults bool

	// Decoder defaults to StringDecoder for string items and BytesDecoder
	// for []byte items.
	Decoder Decoder[T]

	Retry            Backoff
	SubscribeFailure SubscribeFailurePolicy
	DeadLetter       DeadLetterPublisher

	Logger        *slog.Logger
	Metrics       MetricsCollector
	BufferMetrics buffer.MetricsCollector
	Clock         clock.WithTicker
}

// Adapter connects a broker Client to a buffer Engine. Every decoded
// message is pushed into the engine, which delivers batches to FlushAction.
type Adapter[T any] struct {
	cfg     Config[T]
	client  Client
	engine  *buffer.Engine[T]
	decode  Decoder[T]
	retry   Backoff
	logger  *slog.Logger
	metrics MetricsCollector

	state     atomic.Int32
	connected atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// New builds the broker client through factory and the owned buffer engine.
// The engine's flush timer runs from this point on.
func New[T any](factory ClientFactory, cfg Config[T]) (*Adapter[T], error) {
	if factory == nil {
		return nil, errNoFactory
	}
	if cfg.Topic == "" {
		return nil, errNoTopic
	}

	decode := cfg.Decoder
	if decode == nil {
		decode = defaultDecoder[T]()
		if decode == nil {
			return nil, errNoDecoder
		}
	}

	if cfg.ApplyDefaults {
		if cfg.BatchSize <= 0 {
			cfg.BatchSize = DefaultBatchSize
		}
		if cfg.FlushInterval <= 0 {
			cfg.FlushInterval = DefaultFlushInterval
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry == (Backoff{}) {
		cfg.Retry = DefaultBackoff()
	}

	engine, err := buffer.New(buffer.Options[T]{
		MaxItems:         cfg.BatchSize,
		MaxBytes:         cfg.MaxBufferSizeInBytes,
		FlushInterval:    cfg.FlushInterval,
		CustomThresholds: cfg.CustomThresholds,
		SizeFunc:         cfg.SizeFunc,
		FlushAction:      cfg.FlushAction,
		Logger:           cfg.Logger,
		Metrics:          cfg.BufferMetrics,
		Clock:            cfg.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}

	client, err := factory(cfg.Client)
	if err != nil {
		_ = engine.Close(context.Background())
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	a := &Adapter[T]{
		cfg:     cfg,
		client:  client,
		engine:  engine,
		decode:  decode,
		retry:   cfg.Retry,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}
	if a.metrics == nil {
		a.metrics = noopMetrics{}
	}
	a.setState(StateDisconnected)
	return a, nil
}

func defaultDecoder[T any]() Decoder[T] {
	if d, ok := any(Decoder[string](StringDecoder)).(Decoder[T]); ok {
		return d
	}
	if d, ok := any(Decoder[[]byte](BytesDecoder)).(Decoder[T]); ok {
		return d
	}
	return nil
}

// Start connects with retry, subscribes to the topic and launches the
// ingest loop. It returns once the loop is running. Stop must be called
// after Start, whatever Start returned.
func (a *Adapter[T]) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true

	a.setState(StateConnecting)
	a.logger.Info("connecting to broker",
		"client_id", a.cfg.Client.ClientID,
		"brokers", a.cfg.Client.Brokers,
		"group_id", a.cfg.Client.GroupID,
	)

	attempts, err := a.retry.retry(ctx, a.logger, func(ctx context.Context) error {
		if err := a.client.Connect(ctx); err != nil {
			a.metrics.IncConnectAttempts("failure")
			return err
		}
		a.metrics.IncConnectAttempts("success")
		return nil
	})
	if err != nil {
		a.setState(StateDisconnected)
		a.logger.Error("failed to connect to broker",
			"attempts", attempts,
			"error", err,
		)
		return &ConnectionError{Attempts: attempts, Err: err}
	}
	a.connected.Store(true)
	a.setState(StateConnected)
	a.logger.Info("connected to broker", "attempts", attempts)

	if err := a.client.Subscribe(ctx, a.cfg.Topic, a.cfg.FromBeginning); err != nil {
		subErr := &SubscriptionError{Topic: a.cfg.Topic, Err: err}
		if a.cfg.SubscribeFailure == SubscribeFailIdle {
			a.logger.Error("subscription failed, adapter stays idle",
				"topic", a.cfg.Topic,
				"error", err,
			)
			return nil
		}
		a.logger.Error("subscription failed",
			"topic", a.cfg.Topic,
			"error", err,
		)
		return subErr
	}
	a.logger.Info("subscribed to topic",
		"topic", a.cfg.Topic,
		"from_beginning", a.cfg.FromBeginning,
	)

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.setState(StateRunning)
	go a.run(runCtx)
	return nil
}

func (a *Adapter[T]) run(ctx context.Context) {
	defer a.closeDone()

	err := a.client.Run(ctx, a.handle)
	if ctx.Err() != nil {
		return
	}

	a.errMu.Lock()
	a.err = err
	a.errMu.Unlock()

	a.state.CompareAndSwap(int32(StateRunning), int32(StateConnected))
	a.metrics.SetState(a.State().String())
	if err != nil {
		a.logger.Error("ingest loop stopped", "topic", a.cfg.Topic, "error", err)
		return
	}
	a.logger.Warn("ingest loop ended", "topic", a.cfg.Topic)
}

// handle is the per-message ingest step. It never lets one message end
// the loop.
func (a *Adapter[T]) handle(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			a.metrics.IncMessagesSkipped(msg.Topic, SkipPanic)
			a.logger.Error("recovered panic while handling message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"panic", r,
			)
		}
	}()

	a.metrics.IncMessagesConsumed(msg.Topic, msg.Partition)

	if len(msg.Value) == 0 {
		a.metrics.IncMessagesSkipped(msg.Topic, SkipEmpty)
		a.logger.Debug("skipping message without payload",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return
	}

	item, err := a.decode(msg)
	if err != nil {
		a.reject(ctx, msg, &DecodeError{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Err:       err,
		})
		return
	}

	a.engine.Push(item)
}

func (a *Adapter[T]) reject(ctx context.Context, msg Message, err error) {
	a.metrics.IncMessagesSkipped(msg.Topic, SkipDecode)
	a.logger.Warn("skipping message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)

	if a.cfg.DeadLetter == nil {
		return
	}
	if dlqErr := a.cfg.DeadLetter.Publish(ctx, msg, err); dlqErr != nil {
		a.logger.Error("failed to publish to dead letter queue",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", dlqErr,
		)
	}
}

// Stop clears the flush timer, stops the ingest loop, flushes what is
// still buffered and disconnects. Flush and disconnect failures are logged.
// The adapter always ends Disconnected; a non-nil error means ctx ended
// before the ingest loop or the final flush finished.
func (a *Adapter[T]) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return nil
	}
	a.stopped = true
	a.setState(StateStopping)
	a.logger.Info("stopping adapter", "topic", a.cfg.Topic)

	a.engine.ClearTimer()

	var stopErr error
	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("waiting for ingest loop: %w", ctx.Err())
			a.logger.Warn("ingest loop did not stop in time", "error", ctx.Err())
		}
	}
	a.closeDone()

	if err := a.engine.Close(ctx); err != nil {
		a.logger.Error("final flush failed", "error", err)
		if stopErr == nil && ctx.Err() != nil {
			stopErr = err
		}
	}

	if a.started {
		if err := a.client.Disconnect(); err != nil {
			a.logger.Error("disconnect failed", "error", &DisconnectError{Err: err})
		}
	}

	a.connected.Store(false)
	a.setState(StateDisconnected)
	a.logger.Info("adapter stopped", "topic", a.cfg.Topic)
	return stopErr
}

// Flush delivers the current buffer immediately.
func (a *Adapter[T]) Flush(ctx context.Context) error {
	return a.engine.Flush(ctx)
}

// Buffer returns the owned engine, for runtime threshold updates and stats.
func (a *Adapter[T]) Buffer() *buffer.Engine[T] {
	return a.engine
}

// State returns the current lifecycle state.
func (a *Adapter[T]) State() State {
	return State(a.state.Load())
}

// Connected reports whether the broker connection is up. It stays true
// while Stop delivers the final flush and turns false once the client has
// been disconnected.
func (a *Adapter[T]) Connected() bool {
	return a.connected.Load()
}

// Done is closed when the ingest loop has ended, either on its own or
// through Stop.
func (a *Adapter[T]) Done() <-chan struct{} {
	return a.done
}

// Err returns the error that ended the ingest loop on its own, if any.
func (a *Adapter[T]) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

func (a *Adapter[T]) setState(s State) {
	a.state.Store(int32(s))
	a.metrics.SetState(s.String())
}

func (a *Adapter[T]) closeDone() {
	a.doneOnce.Do(func() {
		close(a.done)
	})
}

type noopMetrics struct{}

func (noopMetrics) IncMessagesConsumed(string, int32) {}
func (noopMetrics) IncMessagesSkipped(string, string) {}
func (noopMetrics) IncConnectAttempts(string)         {}
func (noopMetrics) SetState(string)                   {}
