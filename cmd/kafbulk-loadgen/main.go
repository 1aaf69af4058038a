// Command kafbulk-loadgen produces synthetic CloudEvents to the topic a
// kafbulk instance consumes, using the same configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jittakal/kafbulk/internal/config"
	"github.com/jittakal/kafbulk/internal/config/dto"
	"github.com/jittakal/kafbulk/internal/kafka"
	"github.com/jittakal/kafbulk/internal/loadgen"
	"github.com/jittakal/kafbulk/internal/observability"
)

type options struct {
	configPath   string
	topic        string
	interval     time.Duration
	count        int
	shippedRatio float64
	compression  string
	metricsPort  int
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "path to configuration file")
	flag.StringVar(&opts.topic, "topic", "", "topic to produce to (defaults to consumer.topic)")
	flag.DurationVar(&opts.interval, "interval", 100*time.Millisecond, "delay between events, 0 for no delay")
	flag.IntVar(&opts.count, "count", 0, "number of events to produce, 0 for unlimited")
	flag.Float64Var(&opts.shippedRatio, "shipped-ratio", 0.3, "fraction of order.shipped events")
	flag.StringVar(&opts.compression, "compression", "snappy", "producer compression codec")
	flag.IntVar(&opts.metricsPort, "metrics-port", 0, "prometheus metrics port, 0 to disable")
	flag.Parse()

	if opts.configPath == "" {
		opts.configPath = "config/application.yaml"
	}

	cfg, err := config.NewLoader().Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Broker.Type != dto.BrokerKafka {
		return fmt.Errorf("load generation requires the kafka broker, got %q", cfg.Broker.Type)
	}
	if opts.topic == "" {
		opts.topic = cfg.Consumer.Topic
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	}).With("service", "kafbulk-loadgen")
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	producer, err := kafka.NewProducer(
		cfg.Broker.Kafka.BootstrapServers,
		"kafbulk-loadgen",
		securityOptions(cfg),
		kafka.ProducerConfig{Compression: opts.compression, RequiredAcks: -1, RetryMax: 3},
		logger,
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error("failed to close producer", "error", err)
		}
	}()

	runner, err := loadgen.NewRunner(loadgen.Config{
		Topic:        opts.topic,
		Interval:     opts.interval,
		Count:        opts.count,
		ShippedRatio: opts.shippedRatio,
	}, producer, loadgen.NewGenerator(nil), logger, metrics)
	if err != nil {
		return err
	}

	if opts.metricsPort > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.metricsPort),
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := runner.Run(ctx)
	if opts.count > 0 && stats.Failed > 0 {
		return fmt.Errorf("%d of %d events failed", stats.Failed, opts.count)
	}
	return nil
}

func securityOptions(cfg *dto.ApplicationConfig) kafka.ConsumerConfig {
	k := cfg.Broker.Kafka
	return kafka.ConsumerConfig{
		SecurityProtocol:      k.SecurityProtocol,
		SASLMechanism:         k.SASLMechanism,
		SASLUsername:          k.SASLUsername,
		SASLPassword:          k.SASLPassword,
		AWSRegion:             k.AWSRegion,
		TLSInsecureSkipVerify: k.TLSInsecureSkipVerify,
	}
}
