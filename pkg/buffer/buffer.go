package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Reason names what caused a flush.
type Reason string

const (
	ReasonBytes    Reason = "bytes"
	ReasonItems    Reason = "items"
	ReasonCustom   Reason = "custom"
	ReasonInterval Reason = "interval"
	ReasonManual   Reason = "manual"
	ReasonShutdown Reason = "shutdown"
)

// ErrSinkPanic is wrapped by the SinkError reported when the flush action panics.
var ErrSinkPanic = errors.New("flush action panicked")

// FlushFunc receives one captured batch. The engine never calls it with an
// empty batch and never calls it concurrently with itself.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// SizeFunc returns the byte size contributed by one item.
type SizeFunc[T any] func(item T) int64

// MetricsCollector defines metrics operations for the buffer engine.
type MetricsCollector interface {
	IncFlushes(reason string, status string)
	ObserveFlushDuration(reason string, duration float64)
	ObserveBatch(items int, bytes int64)
	SetBuffered(items int, bytes int64)
	IncDroppedItems(count int)
}

// Options configures an Engine. At least one of MaxItems, MaxBytes,
// FlushInterval or CustomThresholds must be set.
type Options[T any] struct {
	MaxItems         int
	MaxBytes         int64
	FlushInterval    time.Duration
	CustomThresholds []Predicate[T]

	// SizeFunc measures items for MaxBytes. When nil, strings and byte
	// slices count their length, values with a Size() int method report
	// that, and everything else counts as zero.
	SizeFunc SizeFunc[T]

	FlushAction FlushFunc[T]

	Logger  *slog.Logger
	Metrics MetricsCollector
	Clock   clock.WithTicker
}

// Stats is a point-in-time view of an engine.
type Stats struct {
	BufferedItems   int
	BufferedBytes   int64
	Batches         uint64
	FailedBatches   uint64
	FlushedItems    uint64
	DroppedItems    uint64
	LastFlushAt     time.Time
	LastFlushReason Reason
}

// Engine accumulates items and hands them to the flush action in batches.
type Engine[T any] struct {
	mu         sync.Mutex
	batch      []T
	size       int64
	thresholds Thresholds[T]
	interval   time.Duration
	timer      *flushTimer
	closed     bool
	tail       chan struct{}
	stats      Stats

	sizeOf  SizeFunc[T]
	flush   FlushFunc[T]
	logger  *slog.Logger
	metrics MetricsCollector
	clock   clock.WithTicker

	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type flushTimer struct {
	ticker clock.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// capture is a batch taken out of the buffer together with its place in
// the delivery order.
type capture[T any] struct {
	batch  []T
	bytes  int64
	reason Reason
	prev   <-chan struct{}
	done   chan struct{}
}

// New creates an engine and starts its flush timer if an interval is set.
func New[T any](opts Options[T]) (*Engine[T], error) {
	thresholds := Thresholds[T]{
		MaxItems: opts.MaxItems,
		MaxBytes: opts.MaxBytes,
		Custom:   append([]Predicate[T](nil), opts.CustomThresholds...),
	}
	if err := validate(thresholds, opts.FlushInterval, ""); err != nil {
		return nil, err
	}
	if opts.FlushAction == nil {
		return nil, &ConfigurationError{Field: "flush_action", Err: ErrNoFlushAction}
	}

	e := &Engine[T]{
		thresholds: thresholds,
		interval:   opts.FlushInterval,
		sizeOf:     opts.SizeFunc,
		flush:      opts.FlushAction,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
	}
	if e.sizeOf == nil {
		e.sizeOf = defaultSize[T]
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	e.tail = make(chan struct{})
	close(e.tail)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.StartTimer()
	return e, nil
}

func validate[T any](thresholds Thresholds[T], interval time.Duration, field string) error {
	if thresholds.Empty() && interval <= 0 {
		return &ConfigurationError{Field: field, Err: ErrNoThreshold}
	}
	return nil
}

// Push appends item and flushes asynchronously if a threshold is reached.
// It never waits for the flush action. Items pushed after Close are dropped.
func (e *Engine[T]) Push(item T) {
	c, ok := e.push(item)
	if !ok {
		return
	}
	go func() {
		defer e.inflight.Done()
		_ = e.deliver(e.ctx, c)
	}()
}

func (e *Engine[T]) push(item T) (capture[T], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.stats.DroppedItems++
		e.metrics.IncDroppedItems(1)
		e.logger.Warn("item pushed after close, dropping")
		return capture[T]{}, false
	}

	e.batch = append(e.batch, item)
	e.size += e.sizeOf(item)

	reason, hit := Reached(State[T]{Batch: e.batch, SizeBytes: e.size}, e.thresholds)
	if !hit {
		e.metrics.SetBuffered(len(e.batch), e.size)
		return capture[T]{}, false
	}

	c, _ := e.captureLocked(reason)
	e.inflight.Add(1)
	return c, true
}

// Flush captures the current buffer and delivers it before returning.
// An empty buffer is a no-op. A failed flush action is returned as a
// *SinkError and the batch is not retried.
func (e *Engine[T]) Flush(ctx context.Context) error {
	e.mu.Lock()
	c, ok := e.captureLocked(ReasonManual)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.deliver(ctx, c)
}

// captureLocked swaps the buffer for an empty one and reserves the next
// delivery slot. e.mu must be held.
func (e *Engine[T]) captureLocked(reason Reason) (capture[T], bool) {
	if len(e.batch) == 0 {
		return capture[T]{}, false
	}
	c := capture[T]{
		batch:  e.batch,
		bytes:  e.size,
		reason: reason,
		prev:   e.tail,
		done:   make(chan struct{}),
	}
	e.tail = c.done
	e.batch = nil
	e.size = 0
	e.metrics.SetBuffered(0, 0)
	return c, true
}

// deliver runs the flush action for c once every earlier capture has been
// delivered.
func (e *Engine[T]) deliver(ctx context.Context, c capture[T]) error {
	select {
	case <-c.prev:
	case <-ctx.Done():
		go func() {
			<-c.prev
			close(c.done)
		}()
		return e.finish(c, 0, ctx.Err())
	}
	defer close(c.done)

	start := e.clock.Now()
	err := e.invoke(ctx, c.batch)
	return e.finish(c, e.clock.Since(start), err)
}

func (e *Engine[T]) invoke(ctx context.Context, batch []T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return e.flush(ctx, batch)
}

func (e *Engine[T]) finish(c capture[T], took time.Duration, err error) error {
	status := "success"
	if err != nil {
		status = "failure"
	}
	e.metrics.IncFlushes(string(c.reason), status)
	e.metrics.ObserveFlushDuration(string(c.reason), took.Seconds())
	e.metrics.ObserveBatch(len(c.batch), c.bytes)

	e.mu.Lock()
	e.stats.Batches++
	e.stats.LastFlushAt = e.clock.Now()
	e.stats.LastFlushReason = c.reason
	if err != nil {
		e.stats.FailedBatches++
	} else {
		e.stats.FlushedItems += uint64(len(c.batch))
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("flush failed, batch discarded",
			"reason", c.reason,
			"batch_size", len(c.batch),
			"batch_bytes", c.bytes,
			"error", err,
		)
		return &SinkError{Reason: c.reason, Items: len(c.batch), Err: err}
	}

	e.logger.Debug("flushed batch",
		"reason", c.reason,
		"batch_size", len(c.batch),
		"batch_bytes", c.bytes,
		"duration_ms", took.Milliseconds(),
	)
	return nil
}

// StartTimer starts the recurring flush timer. It is a no-op when no
// interval is configured, a timer is already running or the engine is closed.
func (e *Engine[T]) StartTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startTimerLocked()
}

// ClearTimer stops the recurring flush timer.
func (e *Engine[T]) ClearTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
}

func (e *Engine[T]) startTimerLocked() {
	if e.closed || e.interval <= 0 || e.timer != nil {
		return
	}
	t := &flushTimer{
		ticker: e.clock.NewTicker(e.interval),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.timer = t
	go e.runTimer(t)
}

func (e *Engine[T]) stopTimerLocked() {
	if e.timer == nil {
		return
	}
	e.timer.ticker.Stop()
	close(e.timer.stop)
	e.timer = nil
}

func (e *Engine[T]) runTimer(t *flushTimer) {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C():
			e.flushOnTick(t)
		}
	}
}

func (e *Engine[T]) flushOnTick(t *flushTimer) {
	e.mu.Lock()
	if e.timer != t {
		e.mu.Unlock()
		return
	}
	c, ok := e.captureLocked(ReasonInterval)
	e.mu.Unlock()
	if ok {
		_ = e.deliver(e.ctx, c)
	}
}

// UpdateMaxItems replaces the item count threshold. Zero disables it.
func (e *Engine[T]) UpdateMaxItems(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.thresholds
	next.MaxItems = n
	if err := validate(next, e.interval, "max_items"); err != nil {
		return err
	}
	e.thresholds = next
	return nil
}

// UpdateMaxBytes replaces the byte size threshold. Zero disables it.
func (e *Engine[T]) UpdateMaxBytes(n int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.thresholds
	next.MaxBytes = n
	if err := validate(next, e.interval, "max_bytes"); err != nil {
		return err
	}
	e.thresholds = next
	return nil
}

// UpdateCustomThresholds replaces the custom predicates.
func (e *Engine[T]) UpdateCustomThresholds(predicates []Predicate[T]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.thresholds
	next.Custom = append([]Predicate[T](nil), predicates...)
	if err := validate(next, e.interval, "custom_thresholds"); err != nil {
		return err
	}
	e.thresholds = next
	return nil
}

// UpdateFlushInterval replaces the flush timer. The new period is measured
// from the time of the call. Zero stops interval flushing.
func (e *Engine[T]) UpdateFlushInterval(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := validate(e.thresholds, d, "flush_interval"); err != nil {
		return err
	}
	e.interval = d
	e.stopTimerLocked()
	e.startTimerLocked()
	return nil
}

// MaxItems returns the configured item count threshold.
func (e *Engine[T]) MaxItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thresholds.MaxItems
}

// MaxBytes returns the configured byte size threshold.
func (e *Engine[T]) MaxBytes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thresholds.MaxBytes
}

// FlushInterval returns the configured timer period.
func (e *Engine[T]) FlushInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// Len returns the number of buffered items.
func (e *Engine[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batch)
}

// SizeBytes returns the accumulated byte size of the buffered items.
func (e *Engine[T]) SizeBytes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// Stats returns a snapshot of the engine counters.
func (e *Engine[T]) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.BufferedItems = len(e.batch)
	s.BufferedBytes = e.size
	return s
}

// Close stops the timer, waits for in-flight flushes and delivers whatever
// is still buffered. If ctx ends first, pending flush actions are cancelled
// and the remaining items are dropped.
func (e *Engine[T]) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	t := e.timer
	e.stopTimerLocked()
	e.mu.Unlock()
	defer e.cancel()

	idle := make(chan struct{})
	go func() {
		if t != nil {
			<-t.done
		}
		e.inflight.Wait()
		close(idle)
	}()

	select {
	case <-idle:
	case <-ctx.Done():
		e.cancel()
		e.mu.Lock()
		dropped := len(e.batch)
		e.stats.DroppedItems += uint64(dropped)
		e.batch = nil
		e.size = 0
		e.mu.Unlock()
		e.metrics.IncDroppedItems(dropped)
		e.logger.Warn("close timed out waiting for in-flight flushes",
			"dropped_items", dropped,
			"error", ctx.Err(),
		)
		return fmt.Errorf("waiting for in-flight flushes: %w", ctx.Err())
	}

	e.mu.Lock()
	c, ok := e.captureLocked(ReasonShutdown)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.deliver(ctx, c)
}

func defaultSize[T any](item T) int64 {
	switch v := any(item).(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	case interface{ Size() int }:
		return int64(v.Size())
	default:
		return 0
	}
}

type noopMetrics struct{}

func (noopMetrics) IncFlushes(string, string)            {}
func (noopMetrics) ObserveFlushDuration(string, float64) {}
func (noopMetrics) ObserveBatch(int, int64)              {}
func (noopMetrics) SetBuffered(int, int64)               {}
func (noopMetrics) IncDroppedItems(int)                  {}
