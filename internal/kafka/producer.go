package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	apperrors "github.com/jittakal/kafbulk/internal/errors"
)

// ProducerConfig tunes the event producer used by the load generator.
type ProducerConfig struct {
	Compression  string
	RequiredAcks int
	RetryMax     int
}

// Producer publishes structured CloudEvents to Kafka.
type Producer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewProducer connects a synchronous producer using the same security
// settings as the consumer.
func NewProducer(
	brokers []string,
	clientID string,
	security ConsumerConfig,
	opts ProducerConfig,
	logger *slog.Logger,
) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conf, err := newSaramaConfig(clientID, security)
	if err != nil {
		return nil, err
	}
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true
	conf.Producer.RequiredAcks = sarama.RequiredAcks(opts.RequiredAcks)
	conf.Producer.Compression = parseCompression(opts.Compression)
	if opts.RetryMax > 0 {
		conf.Producer.Retry.Max = opts.RetryMax
	}

	producer, err := sarama.NewSyncProducer(brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka producer created",
		"bootstrap_servers", brokers,
		"security_protocol", security.SecurityProtocol,
	)
	return newProducer(producer, logger), nil
}

func newProducer(producer sarama.SyncProducer, logger *slog.Logger) *Producer {
	return &Producer{producer: producer, logger: logger}
}

// Publish sends ev in structured mode, keyed by the event ID, with the
// ce_* attributes copied into headers.
func (p *Producer) Publish(ctx context.Context, topic string, ev cloudevents.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal cloudevent %s: %w", ev.ID(), err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.ID()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(ev.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(ev.Type())},
			{Key: []byte("ce_source"), Value: []byte(ev.Source())},
			{Key: []byte("ce_id"), Value: []byte(ev.ID())},
		},
		Timestamp: ev.Time(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return &apperrors.PublishError{Topic: topic, Err: err}
	}

	p.logger.Debug("event produced",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"event_id", ev.ID(),
		"event_type", ev.Type(),
	)
	return nil
}

// Close flushes and closes the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}

func parseCompression(name string) sarama.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}
