package pulsar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jittakal/kafbulk/internal/errors"
	"github.com/jittakal/kafbulk/pkg/consumer"
)

type mockMessageID struct {
	pulsar.MessageID
	partition int32
	entry     int64
}

func (m mockMessageID) PartitionIdx() int32 { return m.partition }
func (m mockMessageID) EntryID() int64      { return m.entry }

type mockMessage struct {
	pulsar.Message
	id          mockMessageID
	topic       string
	key         string
	payload     []byte
	properties  map[string]string
	eventTime   time.Time
	publishTime time.Time
}

func (m mockMessage) ID() pulsar.MessageID          { return m.id }
func (m mockMessage) Topic() string                 { return m.topic }
func (m mockMessage) Key() string                   { return m.key }
func (m mockMessage) Payload() []byte               { return m.payload }
func (m mockMessage) Properties() map[string]string { return m.properties }
func (m mockMessage) EventTime() time.Time          { return m.eventTime }
func (m mockMessage) PublishTime() time.Time        { return m.publishTime }

type mockConsumer struct {
	pulsar.Consumer
	msgs chan pulsar.Message

	mu     sync.Mutex
	acked  []pulsar.Message
	closed bool
}

func (c *mockConsumer) Receive(ctx context.Context) (pulsar.Message, error) {
	select {
	case msg := <-c.msgs:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *mockConsumer) Ack(msg pulsar.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, msg)
	return nil
}

func (c *mockConsumer) Subscription() string { return "kafbulk" }

func (c *mockConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type mockClient struct {
	consumer     *mockConsumer
	subscribeErr error
	options      pulsar.ConsumerOptions
	closed       bool
}

func (c *mockClient) Subscribe(opts pulsar.ConsumerOptions) (pulsar.Consumer, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.options = opts
	return c.consumer, nil
}

func (c *mockClient) Close() { c.closed = true }

func newTestClient(t *testing.T, opts Config) (*Client, *mockClient, *pulsar.ClientOptions) {
	t.Helper()
	c, err := NewClient(consumer.ClientConfig{
		ClientID: "kafbulk-1",
		Brokers:  []string{"broker-1:6650", "broker-2:6650"},
		GroupID:  "kafbulk",
	}, opts, nil)
	require.NoError(t, err)

	mc := &mockClient{consumer: &mockConsumer{msgs: make(chan pulsar.Message)}}
	var captured pulsar.ClientOptions
	c.newClient = func(o pulsar.ClientOptions) (pulsarClient, error) {
		captured = o
		return mc, nil
	}
	return c, mc, &captured
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  consumer.ClientConfig
		opts Config
	}{
		{"no url or brokers", consumer.ClientConfig{GroupID: "g"}, Config{}},
		{"no group", consumer.ClientConfig{Brokers: []string{"b:6650"}}, Config{}},
		{"bad subscription type", consumer.ClientConfig{Brokers: []string{"b:6650"}, GroupID: "g"}, Config{SubscriptionType: "broadcast"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg, tt.opts, nil)
			assert.Error(t, err)
		})
	}
}

func TestClient_ConnectUsesBrokerList(t *testing.T) {
	c, _, captured := newTestClient(t, Config{AuthToken: "secret"})

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "pulsar://broker-1:6650,broker-2:6650", captured.URL)
	assert.NotNil(t, captured.Authentication)
}

func TestClient_ConnectURLOverride(t *testing.T) {
	c, _, captured := newTestClient(t, Config{URL: "pulsar+ssl://cluster:6651"})

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "pulsar+ssl://cluster:6651", captured.URL)
	assert.Nil(t, captured.Authentication)
}

func TestClient_Subscribe(t *testing.T) {
	tests := []struct {
		name          string
		subType       string
		fromBeginning bool
		wantType      pulsar.SubscriptionType
		wantPosition  pulsar.SubscriptionInitialPosition
	}{
		{"shared latest", "", false, pulsar.Shared, pulsar.SubscriptionPositionLatest},
		{"failover earliest", "failover", true, pulsar.Failover, pulsar.SubscriptionPositionEarliest},
		{"key shared", "KEY_SHARED", false, pulsar.KeyShared, pulsar.SubscriptionPositionLatest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mc, _ := newTestClient(t, Config{SubscriptionType: tt.subType})
			ctx := context.Background()

			require.NoError(t, c.Connect(ctx))
			require.NoError(t, c.Subscribe(ctx, "persistent://public/default/orders", tt.fromBeginning))

			assert.Equal(t, "persistent://public/default/orders", mc.options.Topic)
			assert.Equal(t, "kafbulk", mc.options.SubscriptionName)
			assert.Equal(t, "kafbulk-1", mc.options.Name)
			assert.Equal(t, tt.wantType, mc.options.Type)
			assert.Equal(t, tt.wantPosition, mc.options.SubscriptionInitialPosition)

			assert.Error(t, c.Subscribe(ctx, "other", false), "second subscription")
		})
	}
}

func TestClient_SubscribeErrors(t *testing.T) {
	c, mc, _ := newTestClient(t, Config{})
	ctx := context.Background()

	assert.ErrorIs(t, c.Subscribe(ctx, "orders", false), apperrors.ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	mc.subscribeErr = errors.New("topic not found")
	assert.ErrorContains(t, c.Subscribe(ctx, "orders", false), "topic not found")
}

func TestClient_RunDeliversAndAcks(t *testing.T) {
	c, mc, _ := newTestClient(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx, "orders", false))

	received := make(chan consumer.Message, 2)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(_ context.Context, msg consumer.Message) { received <- msg })
	}()

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc.consumer.msgs <- mockMessage{
		id:          mockMessageID{partition: 3, entry: 17},
		topic:       "orders",
		key:         "k1",
		payload:     []byte("hello"),
		properties:  map[string]string{"source": "test"},
		publishTime: published,
	}

	msg := <-received
	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, int32(3), msg.Partition)
	assert.Equal(t, int64(17), msg.Offset)
	assert.Equal(t, []byte("k1"), msg.Key)
	assert.Equal(t, []byte("hello"), msg.Value)
	assert.Equal(t, "test", msg.Headers["source"])
	assert.True(t, msg.Timestamp.Equal(published), "publish time used when event time is unset")

	cancel()
	require.NoError(t, <-done)

	mc.consumer.mu.Lock()
	assert.Len(t, mc.consumer.acked, 1)
	mc.consumer.mu.Unlock()

	require.NoError(t, c.Disconnect())
	assert.True(t, mc.closed)
	assert.True(t, mc.consumer.closed)
	assert.ErrorIs(t, c.Connect(context.Background()), apperrors.ErrClientClosed)
}

func TestClient_RunWithoutSubscription(t *testing.T) {
	c, _, _ := newTestClient(t, Config{})
	err := c.Run(context.Background(), func(context.Context, consumer.Message) {})
	assert.ErrorIs(t, err, apperrors.ErrNotSubscribed)
}

func TestToMessage_PrefersEventTime(t *testing.T) {
	eventTime := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	msg := toMessage(mockMessage{
		topic:       "orders",
		eventTime:   eventTime,
		publishTime: eventTime.Add(time.Hour),
	})
	assert.True(t, msg.Timestamp.Equal(eventTime))
	assert.Nil(t, msg.Key)
}
