// Package kafka resolves broker and topic settings. Each getter checks the
// environment first, then the configuration, then the default.
package kafka

import (
	"os"
	"strings"

	"github.com/openforge/commons/internal/config"
)

// DefaultBroker is used when neither the environment nor the config name one.
const DefaultBroker = "localhost:19092"

// GetBrokers returns the Kafka/Redpanda broker addresses.
// COMMONS_BROKERS takes a comma separated list.
func GetBrokers(cfg *config.Config) []string {
	if brokers := os.Getenv("COMMONS_BROKERS"); brokers != "" {
		var out []string
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
		return out
	}

	if cfg != nil && cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		return cfg.Kafka.Brokers
	}

	return []string{DefaultBroker}
}

// GetEventsTopic returns the topic the outbox relay publishes to.
func GetEventsTopic(cfg *config.Config) string {
	return pick("COMMONS_EVENTS_TOPIC", cfg, func(k *config.Kafka) string { return k.EventsTopic }, config.DefaultEventsTopic)
}

// GetNotificationsTopic returns the push notification topic.
func GetNotificationsTopic(cfg *config.Config) string {
	return pick("COMMONS_NOTIFICATIONS_TOPIC", cfg, func(k *config.Kafka) string { return k.NotificationsTopic }, config.DefaultNotificationsTopic)
}

// GetDLQTopic returns the dead letter topic for failed deliveries.
func GetDLQTopic(cfg *config.Config) string {
	return pick("COMMONS_DLQ_TOPIC", cfg, func(k *config.Kafka) string { return k.DLQTopic }, config.DefaultDLQTopic)
}

// GetConsumerGroup returns the consumer group of the notifier workers.
func GetConsumerGroup(cfg *config.Config) string {
	return pick("COMMONS_CONSUMER_GROUP", cfg, func(k *config.Kafka) string { return k.ConsumerGroup }, config.DefaultConsumerGroup)
}

func pick(env string, cfg *config.Config, field func(*config.Kafka) string, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if cfg != nil && cfg.Kafka != nil {
		if v := field(cfg.Kafka); v != "" {
			return v
		}
	}
	return def
}
