package dto

import (
	"testing"
	"time"
)

func validConfig() ApplicationConfig {
	return ApplicationConfig{
		Application: ApplicationInfo{Name: "kafbulk", Version: "1.0.0"},
		Broker: BrokerConfig{
			Type:  BrokerKafka,
			Kafka: KafkaConfig{BootstrapServers: []string{"localhost:9092"}},
		},
		Consumer: ConsumerConfig{GroupID: "group", Topic: "orders"},
		Sink:     SinkConfig{Backend: "file"},
	}
}

func TestApplicationConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ApplicationConfig)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(*ApplicationConfig) {},
			wantErr: false,
		},
		{
			name:    "missing application name",
			mutate:  func(c *ApplicationConfig) { c.Application.Name = "" },
			wantErr: true,
		},
		{
			name:    "missing group id",
			mutate:  func(c *ApplicationConfig) { c.Consumer.GroupID = "" },
			wantErr: true,
		},
		{
			name:    "missing topic",
			mutate:  func(c *ApplicationConfig) { c.Consumer.Topic = "" },
			wantErr: true,
		},
		{
			name:    "missing sink backend",
			mutate:  func(c *ApplicationConfig) { c.Sink.Backend = "" },
			wantErr: true,
		},
		{
			name:    "invalid broker",
			mutate:  func(c *ApplicationConfig) { c.Broker.Type = "rabbitmq" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBrokerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  BrokerConfig
		wantErr bool
	}{
		{
			name:    "kafka with servers",
			config:  BrokerConfig{Type: BrokerKafka, Kafka: KafkaConfig{BootstrapServers: []string{"b:9092"}}},
			wantErr: false,
		},
		{
			name:    "kafka without servers",
			config:  BrokerConfig{Type: BrokerKafka},
			wantErr: true,
		},
		{
			name:    "pulsar with url",
			config:  BrokerConfig{Type: BrokerPulsar, Pulsar: PulsarConfig{URL: "pulsar://localhost:6650"}},
			wantErr: false,
		},
		{
			name:    "pulsar without url",
			config:  BrokerConfig{Type: BrokerPulsar},
			wantErr: true,
		},
		{
			name:    "empty type",
			config:  BrokerConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackendConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"s3 valid", (&S3Config{Bucket: "b", Region: "us-east-1"}).Validate(), false},
		{"s3 missing bucket", (&S3Config{Region: "us-east-1"}).Validate(), true},
		{"s3 missing region", (&S3Config{Bucket: "b"}).Validate(), true},
		{"azure valid", (&AzureConfig{AccountName: "acct", Container: "c"}).Validate(), false},
		{"azure missing account", (&AzureConfig{Container: "c"}).Validate(), true},
		{"azure missing container", (&AzureConfig{AccountName: "acct"}).Validate(), true},
		{"gcs valid", (&GCSConfig{Bucket: "b"}).Validate(), false},
		{"gcs missing bucket", (&GCSConfig{}).Validate(), true},
		{"file valid", (&FileConfig{BasePath: "/data"}).Validate(), false},
		{"file missing path", (&FileConfig{}).Validate(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", tt.err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	if got := (BufferConfig{FlushIntervalMS: 1500}).FlushInterval(); got != 1500*time.Millisecond {
		t.Errorf("FlushInterval() = %v, want 1.5s", got)
	}
	if got := (ShutdownConfig{GracePeriodSeconds: 30}).GracePeriod(); got != 30*time.Second {
		t.Errorf("GracePeriod() = %v, want 30s", got)
	}
}
