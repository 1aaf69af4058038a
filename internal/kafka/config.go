// Package kafka implements the broker client and dead letter publisher on
// top of Sarama.
package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// ConsumerConfig contains the Kafka settings that are not part of the
// broker-neutral consumer.ClientConfig.
type ConsumerConfig struct {
	SecurityProtocol      string
	SASLMechanism         string
	SASLUsername          string
	SASLPassword          string
	AWSRegion             string
	TLSInsecureSkipVerify bool
	AutoOffsetReset       string
	SessionTimeoutMS      int
	HeartbeatIntervalMS   int
	MaxPollIntervalMS     int
	AutoCommitIntervalMS  int
}

// newSaramaConfig builds and validates a Sarama configuration for clientID.
func newSaramaConfig(clientID string, cfg ConsumerConfig) (*sarama.Config, error) {
	conf := sarama.NewConfig()
	conf.Version = sarama.V2_8_0_0
	if clientID != "" {
		conf.ClientID = clientID
	}

	conf.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	conf.Consumer.Offsets.Initial = offsetInitial(cfg.AutoOffsetReset)
	conf.Consumer.Offsets.AutoCommit.Enable = true
	if cfg.AutoCommitIntervalMS > 0 {
		conf.Consumer.Offsets.AutoCommit.Interval = time.Duration(cfg.AutoCommitIntervalMS) * time.Millisecond
	}

	// AWS MSK recommends a 10s session timeout within 6s-5min.
	if cfg.SessionTimeoutMS > 0 {
		conf.Consumer.Group.Session.Timeout = time.Duration(cfg.SessionTimeoutMS) * time.Millisecond
	}
	if cfg.HeartbeatIntervalMS > 0 {
		conf.Consumer.Group.Heartbeat.Interval = time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond
	}
	if cfg.MaxPollIntervalMS > 0 {
		conf.Consumer.MaxProcessingTime = time.Duration(cfg.MaxPollIntervalMS) * time.Millisecond
	} else {
		conf.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	conf.Consumer.Return.Errors = true

	if err := configureSecurity(conf, cfg); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka configuration: %w", err)
	}
	return conf, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	if autoOffsetReset == "earliest" {
		return sarama.OffsetOldest
	}
	return sarama.OffsetNewest
}
