// Package dto holds the configuration structures the loader unmarshals into.
package dto

import (
	"fmt"
	"time"
)

// Broker types.
const (
	BrokerKafka  = "kafka"
	BrokerPulsar = "pulsar"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Broker        BrokerConfig        `mapstructure:"broker"`
	Consumer      ConsumerConfig      `mapstructure:"consumer"`
	Buffer        BufferConfig        `mapstructure:"buffer"`
	DLQ           DLQConfig           `mapstructure:"dlq"`
	Sink          SinkConfig          `mapstructure:"sink"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// BrokerConfig selects the message broker.
type BrokerConfig struct {
	Type   string       `mapstructure:"type"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Pulsar PulsarConfig `mapstructure:"pulsar"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers      []string `mapstructure:"bootstrap_servers"`
	ClientID              string   `mapstructure:"client_id"`
	SecurityProtocol      string   `mapstructure:"security_protocol"`
	SASLMechanism         string   `mapstructure:"sasl_mechanism"`
	SASLUsername          string   `mapstructure:"sasl_username"`
	SASLPassword          string   `mapstructure:"sasl_password"`
	AWSRegion             string   `mapstructure:"aws_region"`
	TLSInsecureSkipVerify bool     `mapstructure:"tls_insecure_skip_verify"`
	AutoOffsetReset       string   `mapstructure:"auto_offset_reset"`
	SessionTimeoutMS      int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS   int      `mapstructure:"heartbeat_interval_ms"`
	MaxPollIntervalMS     int      `mapstructure:"max_poll_interval_ms"`
	AutoCommitIntervalMS  int      `mapstructure:"auto_commit_interval_ms"`
}

// PulsarConfig contains Pulsar-related configuration
type PulsarConfig struct {
	URL                 string `mapstructure:"url"`
	AuthToken           string `mapstructure:"auth_token"`
	SubscriptionType    string `mapstructure:"subscription_type"`
	OperationTimeoutMS  int    `mapstructure:"operation_timeout_ms"`
	ConnectionTimeoutMS int    `mapstructure:"connection_timeout_ms"`
}

// ConsumerConfig describes the subscription and how payloads are decoded.
type ConsumerConfig struct {
	GroupID          string      `mapstructure:"group_id"`
	Topic            string      `mapstructure:"topic"`
	FromBeginning    bool        `mapstructure:"from_beginning"`
	PayloadFormat    string      `mapstructure:"payload_format"`
	SubscribeFailure string      `mapstructure:"subscribe_failure"`
	Retry            RetryConfig `mapstructure:"retry"`
}

// RetryConfig contains connect retry settings
type RetryConfig struct {
	MaxRetries  int `mapstructure:"max_retries"`
	BaseDelayMS int `mapstructure:"base_delay_ms"`
	MaxDelayMS  int `mapstructure:"max_delay_ms"`
}

// BufferConfig contains the flush thresholds.
type BufferConfig struct {
	BatchSize          int   `mapstructure:"batch_size"`
	FlushIntervalMS    int   `mapstructure:"flush_interval_ms"`
	MaxBufferSizeBytes int64 `mapstructure:"max_buffer_size_bytes"`
}

// FlushInterval returns the flush interval as a duration.
func (c BufferConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// SinkConfig contains storage backend configuration
type SinkConfig struct {
	Backend         string           `mapstructure:"backend"`
	Format          string           `mapstructure:"format"`
	Compression     string           `mapstructure:"compression"`
	PathPrefix      string           `mapstructure:"path_prefix"`
	PartitionHourly bool             `mapstructure:"partition_hourly"`
	WriteRetry      WriteRetryConfig `mapstructure:"write_retry"`
	S3              S3Config         `mapstructure:"s3"`
	Azure           AzureConfig      `mapstructure:"azure"`
	GCS             GCSConfig        `mapstructure:"gcs"`
	File            FileConfig       `mapstructure:"file"`
}

// WriteRetryConfig bounds retries of one object write.
type WriteRetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	DelayMS     int `mapstructure:"delay_ms"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	Endpoint             string `mapstructure:"endpoint"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// GracePeriod returns how long a shutdown may take.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if err := c.Broker.Validate(); err != nil {
		return err
	}
	if c.Consumer.GroupID == "" {
		return fmt.Errorf("consumer group ID is required")
	}
	if c.Consumer.Topic == "" {
		return fmt.Errorf("consumer topic is required")
	}
	if c.Sink.Backend == "" {
		return fmt.Errorf("sink backend is required")
	}
	return nil
}

// Validate validates broker configuration.
func (c *BrokerConfig) Validate() error {
	switch c.Type {
	case BrokerKafka:
		if len(c.Kafka.BootstrapServers) == 0 {
			return fmt.Errorf("kafka bootstrap servers are required")
		}
	case BrokerPulsar:
		if c.Pulsar.URL == "" {
			return fmt.Errorf("pulsar url is required")
		}
	default:
		return fmt.Errorf("unsupported broker type: %s", c.Type)
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
