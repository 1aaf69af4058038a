package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jittakal/kafbulk/internal/config/dto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}
	return path
}

const minimalConfig = `
broker:
  kafka:
    bootstrap_servers:
      - localhost:9092
consumer:
  group_id: test-group
  topic: orders
`

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("expected non-nil loader")
	}
	if loader.v == nil {
		t.Fatal("expected non-nil viper instance")
	}
}

func TestLoader_LoadDefaults(t *testing.T) {
	config, err := NewLoader().Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Application.Name != "kafbulk" {
		t.Errorf("Application.Name = %s, want kafbulk", config.Application.Name)
	}
	if config.Broker.Type != dto.BrokerKafka {
		t.Errorf("Broker.Type = %s, want kafka", config.Broker.Type)
	}
	if config.Consumer.PayloadFormat != "raw" {
		t.Errorf("Consumer.PayloadFormat = %s, want raw", config.Consumer.PayloadFormat)
	}
	if config.Consumer.Retry.MaxRetries != 10 {
		t.Errorf("Consumer.Retry.MaxRetries = %d, want 10", config.Consumer.Retry.MaxRetries)
	}
	if config.Buffer.BatchSize != 50 {
		t.Errorf("Buffer.BatchSize = %d, want 50", config.Buffer.BatchSize)
	}
	if config.Buffer.FlushInterval() != 5*time.Second {
		t.Errorf("Buffer.FlushInterval() = %v, want 5s", config.Buffer.FlushInterval())
	}
	if config.Sink.Backend != "file" || config.Sink.Format != "parquet" {
		t.Errorf("Sink = %s/%s, want file/parquet", config.Sink.Backend, config.Sink.Format)
	}
	if config.Shutdown.GracePeriod() != 30*time.Second {
		t.Errorf("Shutdown.GracePeriod() = %v, want 30s", config.Shutdown.GracePeriod())
	}
}

func TestLoader_LoadFullConfig(t *testing.T) {
	content := `
application:
  name: test-app
broker:
  type: pulsar
  pulsar:
    url: pulsar://localhost:6650
    subscription_type: failover
consumer:
  group_id: test-group
  topic: persistent://public/default/orders
  from_beginning: true
  payload_format: cloudevents
  subscribe_failure: idle
  retry:
    max_retries: 3
    base_delay_ms: 100
    max_delay_ms: 1000
buffer:
  batch_size: 500
  flush_interval_ms: 2000
  max_buffer_size_bytes: 1048576
sink:
  backend: s3
  format: jsonl
  compression: zstd
  path_prefix: raw
  partition_hourly: true
  s3:
    bucket: events
    region: eu-west-1
`
	config, err := NewLoader().Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Application.Name != "test-app" {
		t.Errorf("Application.Name = %s, want test-app", config.Application.Name)
	}
	if config.Broker.Pulsar.SubscriptionType != "failover" {
		t.Errorf("Pulsar.SubscriptionType = %s, want failover", config.Broker.Pulsar.SubscriptionType)
	}
	if !config.Consumer.FromBeginning {
		t.Error("Consumer.FromBeginning = false, want true")
	}
	if config.Consumer.Retry.BaseDelayMS != 100 {
		t.Errorf("Consumer.Retry.BaseDelayMS = %d, want 100", config.Consumer.Retry.BaseDelayMS)
	}
	if config.Buffer.MaxBufferSizeBytes != 1048576 {
		t.Errorf("Buffer.MaxBufferSizeBytes = %d, want 1048576", config.Buffer.MaxBufferSizeBytes)
	}
	if config.Sink.S3.Bucket != "events" || !config.Sink.PartitionHourly {
		t.Errorf("Sink = %+v, want s3 bucket events with hourly partitions", config.Sink)
	}
}

func TestLoader_LoadWithMissingFile(t *testing.T) {
	t.Setenv("APP_BROKER_KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")
	t.Setenv("APP_CONSUMER_GROUP_ID", "env-group")
	t.Setenv("APP_CONSUMER_TOPIC", "env-topic")

	config, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Consumer.GroupID != "env-group" {
		t.Errorf("Consumer.GroupID = %s, want env-group", config.Consumer.GroupID)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("APP_BUFFER_BATCH_SIZE", "10")
	t.Setenv("APP_SINK_FORMAT", "avro")
	t.Setenv("APP_BROKER_KAFKA_BOOTSTRAP_SERVERS", "b1:9092,b2:9092")

	config, err := NewLoader().Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Buffer.BatchSize != 10 {
		t.Errorf("Buffer.BatchSize = %d, want 10", config.Buffer.BatchSize)
	}
	if config.Sink.Format != "avro" {
		t.Errorf("Sink.Format = %s, want avro", config.Sink.Format)
	}
	if len(config.Broker.Kafka.BootstrapServers) != 2 {
		t.Errorf("BootstrapServers = %v, want two brokers", config.Broker.Kafka.BootstrapServers)
	}
}

func TestLoader_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("KAFBULK_TEST_PASSWORD", "s3cret")

	content := `
broker:
  kafka:
    bootstrap_servers:
      - localhost:9092
    sasl_password: ${KAFBULK_TEST_PASSWORD}
consumer:
  group_id: test-group
  topic: orders
`
	config, err := NewLoader().Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Broker.Kafka.SASLPassword != "s3cret" {
		t.Errorf("SASLPassword = %q, want s3cret", config.Broker.Kafka.SASLPassword)
	}
}

func TestLoader_LoadInvalidYAML(t *testing.T) {
	if _, err := NewLoader().Load(writeConfig(t, "broker: [unclosed")); err == nil {
		t.Fatal("Load() should fail on invalid yaml")
	}
}

func validConfig() *dto.ApplicationConfig {
	return &dto.ApplicationConfig{
		Application: dto.ApplicationInfo{Name: "kafbulk"},
		Broker: dto.BrokerConfig{
			Type:  dto.BrokerKafka,
			Kafka: dto.KafkaConfig{BootstrapServers: []string{"localhost:9092"}},
		},
		Consumer: dto.ConsumerConfig{
			GroupID:       "test-group",
			Topic:         "orders",
			PayloadFormat: "json",
		},
		Buffer: dto.BufferConfig{BatchSize: 100},
		Sink: dto.SinkConfig{
			Backend:    "file",
			Format:     "parquet",
			WriteRetry: dto.WriteRetryConfig{MaxAttempts: 3},
			File:       dto.FileConfig{BasePath: "/tmp/test"},
		},
		Observability: dto.ObservabilityConfig{
			Metrics: dto.MetricsConfig{Port: 9090},
			Health:  dto.HealthConfig{Port: 8080},
		},
	}
}

func TestLoader_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*dto.ApplicationConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*dto.ApplicationConfig) {},
		},
		{
			name:    "missing bootstrap servers",
			mutate:  func(c *dto.ApplicationConfig) { c.Broker.Kafka.BootstrapServers = nil },
			wantErr: "bootstrap servers",
		},
		{
			name:    "unknown payload format",
			mutate:  func(c *dto.ApplicationConfig) { c.Consumer.PayloadFormat = "protobuf" },
			wantErr: "payload_format",
		},
		{
			name:    "unknown subscribe failure policy",
			mutate:  func(c *dto.ApplicationConfig) { c.Consumer.SubscribeFailure = "retry" },
			wantErr: "subscribe_failure",
		},
		{
			name:    "negative max retries",
			mutate:  func(c *dto.ApplicationConfig) { c.Consumer.Retry.MaxRetries = -1 },
			wantErr: "max_retries",
		},
		{
			name: "no buffer threshold",
			mutate: func(c *dto.ApplicationConfig) {
				c.Buffer = dto.BufferConfig{}
			},
			wantErr: "buffer needs",
		},
		{
			name:   "interval only",
			mutate: func(c *dto.ApplicationConfig) { c.Buffer = dto.BufferConfig{FlushIntervalMS: 1000} },
		},
		{
			name: "dlq with pulsar",
			mutate: func(c *dto.ApplicationConfig) {
				c.Broker = dto.BrokerConfig{Type: dto.BrokerPulsar, Pulsar: dto.PulsarConfig{URL: "pulsar://p:6650"}}
				c.DLQ = dto.DLQConfig{Enabled: true, TopicSuffix: "-dlq"}
			},
			wantErr: "dlq requires",
		},
		{
			name:    "dlq without suffix",
			mutate:  func(c *dto.ApplicationConfig) { c.DLQ = dto.DLQConfig{Enabled: true} },
			wantErr: "topic_suffix",
		},
		{
			name: "s3 backend missing bucket",
			mutate: func(c *dto.ApplicationConfig) {
				c.Sink.Backend = "s3"
				c.Sink.S3 = dto.S3Config{Region: "us-east-1"}
			},
			wantErr: "s3 bucket",
		},
		{
			name: "gcs backend",
			mutate: func(c *dto.ApplicationConfig) {
				c.Sink.Backend = "gcs"
				c.Sink.GCS = dto.GCSConfig{Bucket: "events"}
			},
		},
		{
			name:    "unsupported backend",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.Backend = "ftp" },
			wantErr: "unsupported sink backend",
		},
		{
			name:    "unsupported format",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.Format = "orc" },
			wantErr: "unsupported file format",
		},
		{
			name: "compression not valid for format",
			mutate: func(c *dto.ApplicationConfig) {
				c.Sink.Format = "avro"
				c.Sink.Compression = "zstd"
			},
			wantErr: "not supported for avro",
		},
		{
			name:    "zero write attempts",
			mutate:  func(c *dto.ApplicationConfig) { c.Sink.WriteRetry.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "invalid metrics port",
			mutate:  func(c *dto.ApplicationConfig) { c.Observability.Metrics.Port = 70000 },
			wantErr: "metrics port",
		},
		{
			name:    "invalid health port",
			mutate:  func(c *dto.ApplicationConfig) { c.Observability.Health.Port = 0 },
			wantErr: "health port",
		},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := loader.Validate(config)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
