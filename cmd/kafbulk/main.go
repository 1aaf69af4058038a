// Command kafbulk consumes one topic and writes every flushed batch as an
// object to file, S3, Azure Blob or GCS storage.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jittakal/kafbulk/internal/config"
	"github.com/jittakal/kafbulk/internal/config/dto"
	"github.com/jittakal/kafbulk/internal/kafka"
	"github.com/jittakal/kafbulk/internal/observability"
	"github.com/jittakal/kafbulk/internal/pipeline"
	"github.com/jittakal/kafbulk/internal/pulsar"
	"github.com/jittakal/kafbulk/internal/server"
	"github.com/jittakal/kafbulk/internal/storage"
	"github.com/jittakal/kafbulk/pkg/consumer"
	"github.com/jittakal/kafbulk/pkg/event"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "config/application.yaml"
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		Output:    cfg.Observability.Logging.Output,
		AddSource: cfg.Observability.Logging.AddSource,
	}).With("service", cfg.Application.Name)
	slog.SetDefault(logger)

	logger.Info("starting kafbulk",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"broker", cfg.Broker.Type,
		"topic", cfg.Consumer.Topic,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// Cleanups run in reverse registration order.
	var cleanups []func() error
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	ctx := context.Background()

	writer, err := storage.NewWriter(ctx, storageConfig(cfg), logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage writer: %w", err)
	}
	cleanups = append(cleanups, writer.Close)

	var (
		decodeDLQ consumer.DeadLetterPublisher
		sinkDLQ   pipeline.DeadLetter
	)
	if cfg.Broker.Type == dto.BrokerKafka {
		dlq, err := kafka.NewDLQPublisher(
			cfg.Broker.Kafka.BootstrapServers,
			kafkaOptions(cfg),
			kafka.DLQConfig{Enabled: cfg.DLQ.Enabled, TopicSuffix: cfg.DLQ.TopicSuffix},
			logger,
			cfg.Application.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to create DLQ publisher: %w", err)
		}
		cleanups = append(cleanups, dlq.Close)
		decodeDLQ, sinkDLQ = dlq, dlq
	}

	sink, err := pipeline.NewSink(pipeline.SinkConfig{
		Writer:     writer,
		Router:     storage.NewRouter(cfg.Sink.PathPrefix, cfg.Sink.PartitionHourly),
		DeadLetter: sinkDLQ,
		Retry: pipeline.RetryConfig{
			Attempts: uint(cfg.Sink.WriteRetry.MaxAttempts),
			Delay:    time.Duration(cfg.Sink.WriteRetry.DelayMS) * time.Millisecond,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	decode, err := pipeline.NewRecordDecoder(cfg.Consumer.PayloadFormat, nil)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	adapterCfg, err := adapterConfig(cfg)
	if err != nil {
		return err
	}
	adapterCfg.Decoder = decode
	adapterCfg.FlushAction = sink.Flush
	adapterCfg.DeadLetter = decodeDLQ
	adapterCfg.Logger = logger
	adapterCfg.Metrics = metrics
	adapterCfg.BufferMetrics = metrics

	adapter, err := consumer.New(clientFactory(cfg, logger, metrics), adapterCfg)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}

	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		server.NewAdapterChecker(adapter, adapter.Buffer().Stats),
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		_ = adapter.Stop(ctx)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	cleanups = append(cleanups, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startErr := adapter.Start(sigCtx)
	if startErr == nil {
		logger.Info("application started successfully")

		select {
		case <-sigCtx.Done():
			logger.Info("received termination signal")
		case <-adapter.Done():
			startErr = adapter.Err()
			if startErr == nil {
				startErr = errors.New("ingest loop ended")
			}
			logger.Error("ingest loop stopped", "error", startErr)
		}
	}

	logger.Info("initiating graceful shutdown", "grace_period", cfg.Shutdown.GracePeriod())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
	defer cancel()

	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Error("adapter did not stop cleanly", "error", err)
	}

	stats := adapter.Buffer().Stats()
	logger.Info("shutdown complete",
		"batches", stats.Batches,
		"failed_batches", stats.FailedBatches,
		"flushed_items", stats.FlushedItems,
		"dropped_items", stats.DroppedItems,
	)

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return startErr
	}
	return nil
}

// adapterConfig maps the subscription, buffer and retry sections.
func adapterConfig(cfg *dto.ApplicationConfig) (consumer.Config[event.Record], error) {
	policy, ok := consumer.ParseSubscribeFailurePolicy(cfg.Consumer.SubscribeFailure)
	if !ok {
		return consumer.Config[event.Record]{}, fmt.Errorf("unsupported subscribe failure policy: %s", cfg.Consumer.SubscribeFailure)
	}

	clientCfg := consumer.ClientConfig{
		ClientID: cfg.Application.Name,
		GroupID:  cfg.Consumer.GroupID,
	}
	if cfg.Broker.Type == dto.BrokerKafka {
		clientCfg.ClientID = cfg.Broker.Kafka.ClientID
		clientCfg.Brokers = cfg.Broker.Kafka.BootstrapServers
	}

	return consumer.Config[event.Record]{
		Client:               clientCfg,
		Topic:                cfg.Consumer.Topic,
		FromBeginning:        cfg.Consumer.FromBeginning,
		BatchSize:            cfg.Buffer.BatchSize,
		FlushInterval:        cfg.Buffer.FlushInterval(),
		MaxBufferSizeInBytes: cfg.Buffer.MaxBufferSizeBytes,
		Retry: consumer.Backoff{
			MaxRetries: cfg.Consumer.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Consumer.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Consumer.Retry.MaxDelayMS) * time.Millisecond,
		},
		SubscribeFailure: policy,
	}, nil
}

// clientFactory selects the broker transport.
func clientFactory(cfg *dto.ApplicationConfig, logger *slog.Logger, metrics kafka.MetricsCollector) consumer.ClientFactory {
	if cfg.Broker.Type == dto.BrokerPulsar {
		return pulsar.NewClientFactory(pulsar.Config{
			URL:               cfg.Broker.Pulsar.URL,
			AuthToken:         cfg.Broker.Pulsar.AuthToken,
			SubscriptionType:  cfg.Broker.Pulsar.SubscriptionType,
			OperationTimeout:  time.Duration(cfg.Broker.Pulsar.OperationTimeoutMS) * time.Millisecond,
			ConnectionTimeout: time.Duration(cfg.Broker.Pulsar.ConnectionTimeoutMS) * time.Millisecond,
		}, logger)
	}
	return kafka.NewClientFactory(kafkaOptions(cfg), logger, metrics)
}

func kafkaOptions(cfg *dto.ApplicationConfig) kafka.ConsumerConfig {
	k := cfg.Broker.Kafka
	return kafka.ConsumerConfig{
		SecurityProtocol:      k.SecurityProtocol,
		SASLMechanism:         k.SASLMechanism,
		SASLUsername:          k.SASLUsername,
		SASLPassword:          k.SASLPassword,
		AWSRegion:             k.AWSRegion,
		TLSInsecureSkipVerify: k.TLSInsecureSkipVerify,
		AutoOffsetReset:       k.AutoOffsetReset,
		SessionTimeoutMS:      k.SessionTimeoutMS,
		HeartbeatIntervalMS:   k.HeartbeatIntervalMS,
		MaxPollIntervalMS:     k.MaxPollIntervalMS,
		AutoCommitIntervalMS:  k.AutoCommitIntervalMS,
	}
}

func storageConfig(cfg *dto.ApplicationConfig) storage.Config {
	s := cfg.Sink
	return storage.Config{
		Backend:     s.Backend,
		Format:      event.FileFormat(s.Format),
		Compression: s.Compression,
		File:        storage.FileConfig{BasePath: s.File.BasePath},
		S3: storage.S3Config{
			Bucket:       s.S3.Bucket,
			Region:       s.S3.Region,
			Endpoint:     s.S3.Endpoint,
			UsePathStyle: s.S3.UsePathStyle,
			SSEEnabled:   s.S3.SSEEnabled,
			SSEKMSKeyID:  s.S3.SSEKMSKeyID,
		},
		Azure: storage.AzureConfig{
			AccountName:   s.Azure.AccountName,
			AccountKey:    s.Azure.AccountKey,
			ContainerName: s.Azure.Container,
			Endpoint:      s.Azure.Endpoint,
		},
		GCS: storage.GCSConfig{
			Bucket:               s.GCS.Bucket,
			ProjectID:            s.GCS.ProjectID,
			CredentialsFile:      s.GCS.CredentialsFile,
			CredentialsJSON:      s.GCS.CredentialsJSON,
			Endpoint:             s.GCS.Endpoint,
			UseDefaultCredential: s.GCS.UseDefaultCredential,
		},
	}
}
