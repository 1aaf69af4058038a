package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	apperrors "github.com/jittakal/kafbulk/internal/errors"
	"github.com/jittakal/kafbulk/pkg/consumer"
	"github.com/jittakal/kafbulk/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ consumer.DeadLetterPublisher = (*DLQPublisher)(nil)

// DLQEvent is the envelope published to a dead letter topic.
type DLQEvent struct {
	OriginalKey       string            `json:"original_key,omitempty"`
	OriginalValue     []byte            `json:"original_value"`
	OriginalHeaders   map[string]string `json:"original_headers,omitempty"`
	OriginalTopic     string            `json:"original_topic"`
	OriginalPartition int32             `json:"original_partition"`
	OriginalOffset    int64             `json:"original_offset"`
	FailureReason     string            `json:"failure_reason"`
	FailureTimestamp  time.Time         `json:"failure_timestamp"`
	ProcessorID       string            `json:"processor_id"`
}

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
}

// DLQPublisher publishes messages that could not be stored to
// <topic><suffix>. A disabled publisher accepts and drops everything.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *slog.Logger
	processorID string
	now         func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewDLQPublisher creates a new DLQ publisher.
func NewDLQPublisher(
	brokers []string,
	securityConfig ConsumerConfig,
	dlqConfig DLQConfig,
	logger *slog.Logger,
	processorID string,
) (*DLQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !dlqConfig.Enabled {
		logger.Info("DLQ is disabled")
		return newDLQPublisher(nil, dlqConfig, logger, processorID), nil
	}
	if dlqConfig.TopicSuffix == "" {
		return nil, fmt.Errorf("dlq topic suffix is required when the DLQ is enabled")
	}

	conf, err := newSaramaConfig(processorID+"-dlq", securityConfig)
	if err != nil {
		return nil, err
	}
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 5
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true
	conf.Producer.Compression = sarama.CompressionSnappy
	conf.Producer.Idempotent = true
	conf.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		"bootstrap_servers", brokers,
		"topic_suffix", dlqConfig.TopicSuffix,
	)
	return newDLQPublisher(producer, dlqConfig, logger, processorID), nil
}

func newDLQPublisher(producer sarama.SyncProducer, cfg DLQConfig, logger *slog.Logger, processorID string) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      cfg,
		logger:      logger,
		processorID: processorID,
		now:         time.Now,
	}
}

// Publish sends one undecodable message to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, msg consumer.Message, reason error) error {
	return p.send(ctx, []*sarama.ProducerMessage{p.message(msg.Topic, DLQEvent{
		OriginalKey:       string(msg.Key),
		OriginalValue:     msg.Value,
		OriginalHeaders:   msg.Headers,
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		FailureReason:     reason.Error(),
	})})
}

// PublishRecords sends every record of a batch the storage layer rejected.
func (p *DLQPublisher) PublishRecords(ctx context.Context, records []event.Record, reason error) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for i := range records {
		r := &records[i]
		msgs = append(msgs, p.message(r.Topic, DLQEvent{
			OriginalKey:       string(r.Key),
			OriginalValue:     r.Value,
			OriginalHeaders:   r.Headers,
			OriginalTopic:     r.Topic,
			OriginalPartition: r.Partition,
			OriginalOffset:    r.Offset,
			FailureReason:     reason.Error(),
		}))
	}
	return p.send(ctx, msgs)
}

func (p *DLQPublisher) message(topic string, ev DLQEvent) *sarama.ProducerMessage {
	ev.FailureTimestamp = p.now().UTC()
	ev.ProcessorID = p.processorID

	// DLQEvent contains only JSON-safe types.
	data, _ := json.Marshal(ev)

	msg := &sarama.ProducerMessage{
		Topic: topic + p.config.TopicSuffix,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("failure_reason"), Value: []byte(ev.FailureReason)},
			{Key: []byte("original_topic"), Value: []byte(topic)},
			{Key: []byte("processor_id"), Value: []byte(p.processorID)},
		},
		Timestamp: ev.FailureTimestamp,
	}
	if ev.OriginalKey != "" {
		msg.Key = sarama.StringEncoder(ev.OriginalKey)
	}
	return msg
}

func (p *DLQPublisher) send(ctx context.Context, msgs []*sarama.ProducerMessage) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, dropping messages", "count", len(msgs))
		return nil
	}
	if p.closed {
		return apperrors.ErrClientClosed
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	topic := msgs[0].Topic
	if err := p.producer.SendMessages(msgs); err != nil {
		p.logger.Error("failed to publish to DLQ",
			"error", err,
			"dlq_topic", topic,
			"count", len(msgs),
		)
		return &apperrors.PublishError{Topic: topic, Err: err}
	}

	p.logger.Info("published to DLQ",
		"dlq_topic", topic,
		"count", len(msgs),
	)
	return nil
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}
	p.logger.Info("DLQ publisher closed")
	return nil
}
