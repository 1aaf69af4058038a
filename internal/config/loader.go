// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafbulk/internal/config/dto"
	"github.com/jittakal/kafbulk/internal/encoder"
	"github.com/jittakal/kafbulk/internal/pipeline"
	"github.com/jittakal/kafbulk/pkg/consumer"
	"github.com/jittakal/kafbulk/pkg/event"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables. A missing
// file is not an error; defaults and the environment still apply.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references left in string values.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafbulk")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Broker defaults
	l.v.SetDefault("broker.type", dto.BrokerKafka)
	l.v.SetDefault("broker.kafka.bootstrap_servers", []string{})
	l.v.SetDefault("broker.kafka.client_id", "kafbulk")
	l.v.SetDefault("broker.kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("broker.kafka.sasl_mechanism", "")
	l.v.SetDefault("broker.kafka.sasl_username", "")
	l.v.SetDefault("broker.kafka.sasl_password", "")
	l.v.SetDefault("broker.kafka.aws_region", "")
	l.v.SetDefault("broker.kafka.tls_insecure_skip_verify", false)
	l.v.SetDefault("broker.kafka.auto_offset_reset", "latest")
	l.v.SetDefault("broker.kafka.session_timeout_ms", 30000)
	l.v.SetDefault("broker.kafka.heartbeat_interval_ms", 10000)
	l.v.SetDefault("broker.kafka.max_poll_interval_ms", 300000)
	l.v.SetDefault("broker.kafka.auto_commit_interval_ms", 1000)
	l.v.SetDefault("broker.pulsar.url", "")
	l.v.SetDefault("broker.pulsar.auth_token", "")
	l.v.SetDefault("broker.pulsar.subscription_type", "shared")
	l.v.SetDefault("broker.pulsar.operation_timeout_ms", 30000)
	l.v.SetDefault("broker.pulsar.connection_timeout_ms", 5000)

	// Consumer defaults
	l.v.SetDefault("consumer.group_id", "")
	l.v.SetDefault("consumer.topic", "")
	l.v.SetDefault("consumer.from_beginning", false)
	l.v.SetDefault("consumer.payload_format", pipeline.PayloadRaw)
	l.v.SetDefault("consumer.subscribe_failure", "abort")
	l.v.SetDefault("consumer.retry.max_retries", consumer.DefaultMaxRetries)
	l.v.SetDefault("consumer.retry.base_delay_ms", consumer.DefaultBaseDelay.Milliseconds())
	l.v.SetDefault("consumer.retry.max_delay_ms", consumer.DefaultMaxDelay.Milliseconds())

	// Buffer defaults
	l.v.SetDefault("buffer.batch_size", consumer.DefaultBatchSize)
	l.v.SetDefault("buffer.flush_interval_ms", consumer.DefaultFlushInterval.Milliseconds())
	l.v.SetDefault("buffer.max_buffer_size_bytes", 0)

	// DLQ defaults
	l.v.SetDefault("dlq.enabled", false)
	l.v.SetDefault("dlq.topic_suffix", "-dlq")

	// Sink defaults
	l.v.SetDefault("sink.backend", "file")
	l.v.SetDefault("sink.format", string(event.FormatParquet))
	l.v.SetDefault("sink.compression", "")
	l.v.SetDefault("sink.path_prefix", "")
	l.v.SetDefault("sink.partition_hourly", false)
	l.v.SetDefault("sink.write_retry.max_attempts", 3)
	l.v.SetDefault("sink.write_retry.delay_ms", 500)
	l.v.SetDefault("sink.file.base_path", "./data")
	l.v.SetDefault("sink.s3.bucket", "")
	l.v.SetDefault("sink.s3.region", "")
	l.v.SetDefault("sink.s3.endpoint", "")
	l.v.SetDefault("sink.s3.use_path_style", false)
	l.v.SetDefault("sink.s3.sse_enabled", true)
	l.v.SetDefault("sink.s3.sse_kms_key_id", "")
	l.v.SetDefault("sink.azure.account_name", "")
	l.v.SetDefault("sink.azure.account_key", "")
	l.v.SetDefault("sink.azure.container", "")
	l.v.SetDefault("sink.azure.endpoint", "")
	l.v.SetDefault("sink.gcs.bucket", "")
	l.v.SetDefault("sink.gcs.project_id", "")
	l.v.SetDefault("sink.gcs.credentials_file", "")
	l.v.SetDefault("sink.gcs.credentials_json", "")
	l.v.SetDefault("sink.gcs.endpoint", "")
	l.v.SetDefault("sink.gcs.use_default_credential", false)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.logging.add_source", false)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.health.port", 8080)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	switch config.Consumer.PayloadFormat {
	case pipeline.PayloadRaw, pipeline.PayloadJSON, pipeline.PayloadCloudEvents:
	default:
		return fmt.Errorf("unsupported consumer.payload_format: %s", config.Consumer.PayloadFormat)
	}
	if _, ok := consumer.ParseSubscribeFailurePolicy(config.Consumer.SubscribeFailure); !ok {
		return fmt.Errorf("unsupported consumer.subscribe_failure: %s", config.Consumer.SubscribeFailure)
	}
	if config.Consumer.Retry.MaxRetries < 0 {
		return fmt.Errorf("consumer.retry.max_retries must not be negative")
	}

	// At least one threshold must be able to trigger a flush.
	b := config.Buffer
	if b.BatchSize <= 0 && b.FlushIntervalMS <= 0 && b.MaxBufferSizeBytes <= 0 {
		return errors.New("buffer needs batch_size, flush_interval_ms or max_buffer_size_bytes")
	}

	if config.DLQ.Enabled {
		if config.Broker.Type != dto.BrokerKafka {
			return errors.New("dlq requires the kafka broker")
		}
		if config.DLQ.TopicSuffix == "" {
			return errors.New("dlq.topic_suffix is required when the DLQ is enabled")
		}
	}

	if err := validateSink(&config.Sink); err != nil {
		return err
	}

	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}

func validateSink(sink *dto.SinkConfig) error {
	var err error
	switch sink.Backend {
	case "s3":
		err = sink.S3.Validate()
	case "azure":
		err = sink.Azure.Validate()
	case "gcs":
		err = sink.GCS.Validate()
	case "file":
		err = sink.File.Validate()
	default:
		return fmt.Errorf("unsupported sink backend: %s", sink.Backend)
	}
	if err != nil {
		return err
	}

	format, err := event.ParseFileFormat(sink.Format)
	if err != nil {
		return err
	}
	if sink.Compression != "" && !slices.Contains(encoder.SupportedCompressions(format), sink.Compression) {
		return fmt.Errorf("compression %q is not supported for %s", sink.Compression, format)
	}
	if sink.WriteRetry.MaxAttempts < 1 {
		return fmt.Errorf("sink.write_retry.max_attempts must be at least 1")
	}
	return nil
}
