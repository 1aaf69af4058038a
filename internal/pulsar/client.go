// Package pulsar implements consumer.Client on top of an Apache Pulsar
// subscription.
package pulsar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	apperrors "github.com/jittakal/kafbulk/internal/errors"
	"github.com/jittakal/kafbulk/pkg/consumer"
)

var _ consumer.Client = (*Client)(nil)

// Config contains the Pulsar settings that are not part of the
// broker-neutral consumer.ClientConfig.
type Config struct {
	// URL overrides the service URL derived from the broker list.
	URL               string
	AuthToken         string
	SubscriptionType  string
	OperationTimeout  time.Duration
	ConnectionTimeout time.Duration
}

// pulsarClient is the subset of pulsar.Client used here.
type pulsarClient interface {
	Subscribe(pulsar.ConsumerOptions) (pulsar.Consumer, error)
	Close()
}

// Client implements consumer.Client with a single Pulsar subscription named
// after the consumer group. Messages are acknowledged after the handler
// returns.
type Client struct {
	cfg       consumer.ClientConfig
	opts      Config
	logger    *slog.Logger
	newClient func(pulsar.ClientOptions) (pulsarClient, error)

	mu       sync.Mutex
	client   pulsarClient
	consumer pulsar.Consumer
	closed   bool
}

// NewClientFactory returns a consumer.ClientFactory producing Pulsar clients
// that share opts.
func NewClientFactory(opts Config, logger *slog.Logger) consumer.ClientFactory {
	return func(cfg consumer.ClientConfig) (consumer.Client, error) {
		return NewClient(cfg, opts, logger)
	}
}

// NewClient validates the configuration and returns an unconnected client.
func NewClient(cfg consumer.ClientConfig, opts Config, logger *slog.Logger) (*Client, error) {
	if opts.URL == "" && len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("a service url or at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group id is required as the subscription name")
	}
	if _, err := subscriptionType(opts.SubscriptionType); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("subscription", cfg.GroupID),
		newClient: func(o pulsar.ClientOptions) (pulsarClient, error) {
			return pulsar.NewClient(o)
		},
	}, nil
}

// serviceURL returns the configured URL or one built from the broker list.
func (c *Client) serviceURL() string {
	if c.opts.URL != "" {
		return c.opts.URL
	}
	return "pulsar://" + strings.Join(c.cfg.Brokers, ",")
}

// Connect creates the Pulsar client.
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

	opts := pulsar.ClientOptions{
		URL:               c.serviceURL(),
		OperationTimeout:  c.opts.OperationTimeout,
		ConnectionTimeout: c.opts.ConnectionTimeout,
	}
	if c.opts.AuthToken != "" {
		opts.Authentication = pulsar.NewAuthenticationToken(c.opts.AuthToken)
	}

	client, err := c.newClient(opts)
	if err != nil {
		return fmt.Errorf("failed to create pulsar client: %w", err)
	}
	c.client = client

	c.logger.Info("pulsar client connected", "url", opts.URL)
	return nil
}

// Subscribe creates the subscription for topic. A Client holds one
// subscription.
func (c *Client) Subscribe(ctx context.Context, topic string, fromBeginning bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperrors.ErrClientClosed
	}
	if c.client == nil {
		return apperrors.ErrNotConnected
	}
	if c.consumer != nil {
		return fmt.Errorf("already subscribed to %q", c.consumer.Subscription())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subType, _ := subscriptionType(c.opts.SubscriptionType)
	position := pulsar.SubscriptionPositionLatest
	if fromBeginning {
		position = pulsar.SubscriptionPositionEarliest
	}

	cons, err := c.client.Subscribe(pulsar.ConsumerOptions{
		Topic:                       topic,
		Name:                        c.cfg.ClientID,
		SubscriptionName:            c.cfg.GroupID,
		Type:                        subType,
		SubscriptionInitialPosition: position,
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %q: %w", topic, err)
	}
	c.consumer = cons

	c.logger.Info("subscribed to topic", "topic", topic, "from_beginning", fromBeginning)
	return nil
}

// Run receives messages until ctx is done or the client is disconnected.
func (c *Client) Run(ctx context.Context, handler consumer.Handler) error {
	c.mu.Lock()
	cons := c.consumer
	c.mu.Unlock()

	if cons == nil {
		return apperrors.ErrNotSubscribed
	}

	for {
		msg, err := cons.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		handler(ctx, toMessage(msg))

		if err := cons.Ack(msg); err != nil {
			c.logger.Warn("failed to acknowledge message",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Disconnect closes the subscription and the client.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.logger.Info("pulsar client disconnected")
	return nil
}

func subscriptionType(name string) (pulsar.SubscriptionType, error) {
	switch strings.ToLower(name) {
	case "", "shared":
		return pulsar.Shared, nil
	case "failover":
		return pulsar.Failover, nil
	case "exclusive":
		return pulsar.Exclusive, nil
	case "key_shared":
		return pulsar.KeyShared, nil
	default:
		return pulsar.Shared, errors.New("unsupported subscription type: " + name)
	}
}

// toMessage maps a Pulsar message onto consumer.Message. The partition index
// and entry id stand in for partition and offset.
func toMessage(msg pulsar.Message) consumer.Message {
	out := consumer.Message{
		Topic:     msg.Topic(),
		Value:     msg.Payload(),
		Headers:   msg.Properties(),
		Timestamp: msg.EventTime(),
	}
	if key := msg.Key(); key != "" {
		out.Key = []byte(key)
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = msg.PublishTime()
	}
	if id := msg.ID(); id != nil {
		out.Partition = id.PartitionIdx()
		out.Offset = id.EntryID()
	}
	return out
}
