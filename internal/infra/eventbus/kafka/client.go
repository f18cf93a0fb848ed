// Package kafka publishes operator notifications to Kafka and consumes the
// robot agent reports relayed onto Kafka.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
)

// BrokerMetrics tracks message flow through Kafka.
type BrokerMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncMessageConsumed(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
	IncConsumeError(ctx context.Context, topic string)
}

// Config holds the Kafka connection settings.
type Config struct {
	Brokers []string `mapstructure:"brokers" validate:"required,min=1,dive,hostname_port"`

	// NotificationTopic receives operator notifications, keyed by
	// installation code.
	NotificationTopic string `mapstructure:"notification_topic" validate:"required"`
	// TelemetryTopic carries robot agent reports.
	TelemetryTopic string `mapstructure:"telemetry_topic" validate:"required"`

	GroupID  string `mapstructure:"group_id" validate:"required"`
	ClientID string `mapstructure:"client_id" validate:"required"`
}

// newSaramaConfig builds the producer and consumer settings shared by every
// connection this package opens.
func newSaramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Version = sarama.V3_6_0_0

	// Producer settings
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Retry.Max = 3

	// Consumer settings. Telemetry is a live feed; a new group starts at
	// the newest offset instead of replaying stale positions.
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = time.Second

	return config
}
