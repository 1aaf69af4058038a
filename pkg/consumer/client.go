package consumer

import (
	"context"
	"time"
)

// Message is one record delivered by a broker client.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler is called by Client.Run for every inbound message. Run delivers
// messages one at a time per partition.
type Handler func(ctx context.Context, msg Message)

// ClientConfig identifies the consumer to the broker. It is handed to the
// ClientFactory unchanged.
type ClientConfig struct {
	ClientID string
	Brokers  []string
	GroupID  string
}

// Client is the broker connection driven by an Adapter.
type Client interface {
	// Connect establishes the broker connection. It may be called again
	// after a failure.
	Connect(ctx context.Context) error

	// Subscribe registers interest in topic. fromBeginning selects the
	// oldest retained offset when the group has no committed position.
	Subscribe(ctx context.Context, topic string, fromBeginning bool) error

	// Run delivers messages to handler until ctx is done or the client is
	// disconnected. A nil return means a clean stop.
	Run(ctx context.Context, handler Handler) error

	// Disconnect releases the broker connection.
	Disconnect() error
}

// ClientFactory builds a Client from its configuration.
type ClientFactory func(cfg ClientConfig) (Client, error)

// DeadLetterPublisher receives messages that could not be decoded.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg Message, reason error) error
}
