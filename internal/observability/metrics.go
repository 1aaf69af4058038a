package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jittakal/kafbulk/internal/kafka"
	"github.com/jittakal/kafbulk/internal/loadgen"
	"github.com/jittakal/kafbulk/internal/pipeline"
	"github.com/jittakal/kafbulk/internal/storage"
	"github.com/jittakal/kafbulk/pkg/buffer"
	"github.com/jittakal/kafbulk/pkg/consumer"
)

// Ensure Metrics satisfies every collector at compile time.
var (
	_ buffer.MetricsCollector   = (*Metrics)(nil)
	_ consumer.MetricsCollector = (*Metrics)(nil)
	_ kafka.MetricsCollector    = (*Metrics)(nil)
	_ storage.MetricsCollector  = (*Metrics)(nil)
	_ pipeline.MetricsCollector = (*Metrics)(nil)
	_ loadgen.MetricsCollector  = (*Metrics)(nil)
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Adapter metrics
	MessagesConsumed *prometheus.CounterVec
	MessagesSkipped  *prometheus.CounterVec
	ConnectAttempts  *prometheus.CounterVec
	AdapterState     *prometheus.GaugeVec

	// Consumer group metrics
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	ConsumerErrors     *prometheus.CounterVec

	// Buffer metrics
	Flushes       *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	BatchItems    prometheus.Histogram
	BatchBytes    prometheus.Histogram
	BufferedItems prometheus.Gauge
	BufferedBytes prometheus.Gauge
	DroppedItems  prometheus.Counter
	WriteRetries  *prometheus.CounterVec
	DeadLettered  *prometheus.CounterVec

	// Storage metrics
	ObjectsWritten *prometheus.CounterVec
	ObjectSize     *prometheus.HistogramVec
	WriteDuration  *prometheus.HistogramVec
	StorageErrors  *prometheus.CounterVec

	// Load generator metrics
	EventsProduced *prometheus.CounterVec
	EventsFailed   *prometheus.CounterVec
}

// states lists every value SetState may report, so the gauge can be reset
// to one-hot.
var states = []string{
	consumer.StateDisconnected.String(),
	consumer.StateConnecting.String(),
	consumer.StateConnected.String(),
	consumer.StateRunning.String(),
	consumer.StateStopping.String(),
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_messages_consumed_total",
				Help: "Total number of messages accepted into the buffer",
			},
			[]string{"topic", "partition"},
		),
		MessagesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_messages_skipped_total",
				Help: "Total number of messages dropped before buffering",
			},
			[]string{"topic", "reason"},
		),
		ConnectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_connect_attempts_total",
				Help: "Total number of broker connection attempts",
			},
			[]string{"status"},
		),
		AdapterState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafbulk_adapter_state",
				Help: "Current adapter lifecycle state (1 for the active state)",
			},
			[]string{"state"},
		),

		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafbulk_rebalance_duration_seconds",
				Help:    "Duration of consumer group sessions",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafbulk_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		ConsumerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_consumer_errors_total",
				Help: "Total number of errors reported by the consumer group",
			},
			[]string{"group"},
		),

		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_flushes_total",
				Help: "Total number of batch flushes",
			},
			[]string{"reason", "status"},
		),
		FlushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafbulk_flush_duration_seconds",
				Help:    "Duration of flush actions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"reason"},
		),
		BatchItems: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafbulk_batch_items",
				Help:    "Number of items per flushed batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		BatchBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kafbulk_batch_bytes",
				Help:    "Payload bytes per flushed batch",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		BufferedItems: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kafbulk_buffer_items",
				Help: "Current number of items in the buffer",
			},
		),
		BufferedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kafbulk_buffer_bytes",
				Help: "Current buffer size in bytes",
			},
		),
		DroppedItems: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kafbulk_dropped_items_total",
				Help: "Total number of items discarded by failed or abandoned flushes",
			},
		),
		WriteRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_write_retries_total",
				Help: "Total number of retried object writes",
			},
			[]string{"topic"},
		),
		DeadLettered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_dead_lettered_total",
				Help: "Total number of records published to the dead letter topic",
			},
			[]string{"topic"},
		),

		ObjectsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_objects_written_total",
				Help: "Total number of objects written to storage",
			},
			[]string{"backend", "format", "status"},
		),
		ObjectSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafbulk_object_size_bytes",
				Help:    "Size of objects written to storage",
				Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 10), // 1MB to 512MB
			},
			[]string{"backend", "format"},
		),
		WriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafbulk_storage_write_duration_seconds",
				Help:    "Duration of object writes including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "operation"},
		),
		EventsProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_loadgen_events_produced_total",
				Help: "Total number of generated events produced",
			},
			[]string{"topic", "event_type"},
		),
		EventsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafbulk_loadgen_events_failed_total",
				Help: "Total number of generated events that failed to produce",
			},
			[]string{"topic", "event_type"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, strconv.Itoa(int(partition))).Inc()
}

// IncMessagesSkipped increments skipped messages counter.
func (m *Metrics) IncMessagesSkipped(topic string, reason string) {
	m.MessagesSkipped.WithLabelValues(topic, reason).Inc()
}

// IncConnectAttempts increments connect attempts counter.
func (m *Metrics) IncConnectAttempts(status string) {
	m.ConnectAttempts.WithLabelValues(status).Inc()
}

// SetState marks state as the active adapter state.
func (m *Metrics) SetState(state string) {
	for _, s := range states {
		m.AdapterState.WithLabelValues(s).Set(0)
	}
	m.AdapterState.WithLabelValues(state).Set(1)
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncConsumerErrors increments consumer errors counter.
func (m *Metrics) IncConsumerErrors(groupID string) {
	m.ConsumerErrors.WithLabelValues(groupID).Inc()
}

// IncFlushes increments flushes counter.
func (m *Metrics) IncFlushes(reason string, status string) {
	m.Flushes.WithLabelValues(reason, status).Inc()
}

// ObserveFlushDuration observes flush duration.
func (m *Metrics) ObserveFlushDuration(reason string, duration float64) {
	m.FlushDuration.WithLabelValues(reason).Observe(duration)
}

// ObserveBatch records the shape of one flushed batch.
func (m *Metrics) ObserveBatch(items int, bytes int64) {
	m.BatchItems.Observe(float64(items))
	m.BatchBytes.Observe(float64(bytes))
}

// SetBuffered sets the buffer gauges.
func (m *Metrics) SetBuffered(items int, bytes int64) {
	m.BufferedItems.Set(float64(items))
	m.BufferedBytes.Set(float64(bytes))
}

// IncDroppedItems adds count to the dropped items counter.
func (m *Metrics) IncDroppedItems(count int) {
	m.DroppedItems.Add(float64(count))
}

// IncWriteRetries increments write retries counter.
func (m *Metrics) IncWriteRetries(topic string) {
	m.WriteRetries.WithLabelValues(topic).Inc()
}

// IncDeadLettered adds count to the dead-lettered records counter.
func (m *Metrics) IncDeadLettered(topic string, count int) {
	m.DeadLettered.WithLabelValues(topic).Add(float64(count))
}

// IncObjectsWritten increments objects written counter.
func (m *Metrics) IncObjectsWritten(backend, format, status string) {
	m.ObjectsWritten.WithLabelValues(backend, format, status).Inc()
}

// ObserveObjectSize observes object size.
func (m *Metrics) ObserveObjectSize(backend, format string, size float64) {
	m.ObjectSize.WithLabelValues(backend, format).Observe(size)
}

// ObserveWriteDuration observes storage write duration.
func (m *Metrics) ObserveWriteDuration(backend string, duration float64) {
	m.WriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncEventsProduced increments the generated events counter.
func (m *Metrics) IncEventsProduced(topic, eventType string) {
	m.EventsProduced.WithLabelValues(topic, eventType).Inc()
}

// IncEventsFailed increments the failed generated events counter.
func (m *Metrics) IncEventsFailed(topic, eventType string) {
	m.EventsFailed.WithLabelValues(topic, eventType).Inc()
}
