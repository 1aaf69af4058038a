package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	apperrors "github.com/jittakal/kafbulk/internal/errors"
	"github.com/jittakal/kafbulk/pkg/consumer"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ consumer.Client             = (*Client)(nil)
	_ sarama.ConsumerGroupHandler = (*groupHandler)(nil)
)

// MetricsCollector defines metrics operations for the Kafka client.
type MetricsCollector interface {
	IncRebalances(groupID string)
	ObserveRebalanceDuration(groupID string, duration float64)
	SetPartitionsAssigned(topic string, count float64)
	IncConsumerErrors(groupID string)
}

// Client implements consumer.Client with a Sarama consumer group. Offsets
// are marked after the handler returns and committed by Sarama's auto-commit.
type Client struct {
	cfg     consumer.ClientConfig
	conf    *sarama.Config
	logger  *slog.Logger
	metrics MetricsCollector

	mu     sync.Mutex
	client sarama.Client
	group  sarama.ConsumerGroup
	topics []string
	closed bool
}

// NewClientFactory returns a consumer.ClientFactory producing Sarama clients
// that share opts.
func NewClientFactory(opts ConsumerConfig, logger *slog.Logger, metrics MetricsCollector) consumer.ClientFactory {
	return func(cfg consumer.ClientConfig) (consumer.Client, error) {
		return NewClient(cfg, opts, logger, metrics)
	}
}

// NewClient validates the configuration and returns an unconnected client.
func NewClient(
	cfg consumer.ClientConfig,
	opts ConsumerConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group id is required")
	}

	conf, err := newSaramaConfig(cfg.ClientID, opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Client{
		cfg:     cfg,
		conf:    conf,
		logger:  logger.With("group_id", cfg.GroupID),
		metrics: metrics,
	}, nil
}

// Connect dials the brokers and fetches cluster metadata. A failed attempt
// leaves the client unconnected so Connect can be retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperrors.ErrClientClosed
	}
	if c.client != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	type result struct {
		client sarama.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		cl, err := sarama.NewClient(c.cfg.Brokers, c.conf)
		ch <- result{cl, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("failed to connect to %v: %w", c.cfg.Brokers, res.err)
		}
		c.client = res.client
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return ctx.Err()
	}

	c.logger.Info("kafka client connected",
		"bootstrap_servers", c.cfg.Brokers,
		"client_id", c.conf.ClientID,
	)
	return nil
}

// Subscribe checks that topic exists and joins the consumer group for it.
func (c *Client) Subscribe(ctx context.Context, topic string, fromBeginning bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperrors.ErrClientClosed
	}
	if c.client == nil {
		return apperrors.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.client.Partitions(topic); err != nil {
		if errors.Is(err, sarama.ErrUnknownTopicOrPartition) {
			return fmt.Errorf("%w %q: %w", apperrors.ErrUnknownTopic, topic, err)
		}
		return fmt.Errorf("failed to fetch partitions for %q: %w", topic, err)
	}

	if fromBeginning {
		c.conf.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	if c.group == nil {
		group, err := sarama.NewConsumerGroupFromClient(c.cfg.GroupID, c.client)
		if err != nil {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
		c.group = group
	}
	c.topics = append(c.topics, topic)

	c.logger.Info("subscribed to topic", "topic", topic, "from_beginning", fromBeginning)
	return nil
}

// Run consumes the subscribed topics until ctx is done or the group is
// closed, re-joining after every rebalance.
func (c *Client) Run(ctx context.Context, handler consumer.Handler) error {
	c.mu.Lock()
	group, topics := c.group, append([]string(nil), c.topics...)
	c.mu.Unlock()

	if group == nil || len(topics) == 0 {
		return apperrors.ErrNotSubscribed
	}

	errsDone := make(chan struct{})
	go func() {
		defer close(errsDone)
		for err := range group.Errors() {
			c.metrics.IncConsumerErrors(c.cfg.GroupID)
			c.logger.Error("consumer group error", "error", err)
		}
	}()

	h := &groupHandler{client: c, handler: handler}
	for {
		err := group.Consume(ctx, topics, h)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			return fmt.Errorf("consumer group stopped: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Disconnect leaves the consumer group and closes the broker connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.group != nil {
		if err := c.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer group: %w", err))
		}
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}

	c.logger.Info("kafka client disconnected")
	return errors.Join(errs...)
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	client         *Client
	handler        consumer.Handler
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()
	h.client.metrics.IncRebalances(h.client.cfg.GroupID)

	for topic, partitions := range session.Claims() {
		h.client.metrics.SetPartitionsAssigned(topic, float64(len(partitions)))
	}

	h.client.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	if !h.rebalanceStart.IsZero() {
		h.client.metrics.ObserveRebalanceDuration(h.client.cfg.GroupID, time.Since(h.rebalanceStart).Seconds())
	}
	h.client.logger.Info("consumer group session cleanup", "member_id", session.MemberID())
	return nil
}

// ConsumeClaim hands every message of one partition to the handler in order.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.client.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handler(ctx, toMessage(msg))
			session.MarkMessage(msg, "")

		case <-ctx.Done():
			return nil
		}
	}
}

func toMessage(msg *sarama.ConsumerMessage) consumer.Message {
	out := consumer.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for _, header := range msg.Headers {
			if header != nil {
				out.Headers[string(header.Key)] = string(header.Value)
			}
		}
	}
	return out
}

type noopMetrics struct{}

func (noopMetrics) IncRebalances(string)                     {}
func (noopMetrics) ObserveRebalanceDuration(string, float64) {}
func (noopMetrics) SetPartitionsAssigned(string, float64)    {}
func (noopMetrics) IncConsumerErrors(string)                 {}
