package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openforge/commons/internal/config"
)

func TestGetters(t *testing.T) {
	t.Setenv("COMMONS_BROKERS", "")
	t.Setenv("COMMONS_EVENTS_TOPIC", "")
	t.Setenv("COMMONS_CONSUMER_GROUP", "")

	assert.Equal(t, []string{DefaultBroker}, GetBrokers(nil))
	assert.Equal(t, config.DefaultEventsTopic, GetEventsTopic(nil))
	assert.Equal(t, config.DefaultDLQTopic, GetDLQTopic(&config.Config{}))

	cfg := &config.Config{Kafka: &config.Kafka{
		Brokers:       []string{"a:9092"},
		EventsTopic:   "events",
		ConsumerGroup: "workers",
	}}
	assert.Equal(t, []string{"a:9092"}, GetBrokers(cfg))
	assert.Equal(t, "events", GetEventsTopic(cfg))
	assert.Equal(t, config.DefaultNotificationsTopic, GetNotificationsTopic(cfg))

	t.Setenv("COMMONS_BROKERS", "b:9092, c:9092,")
	t.Setenv("COMMONS_CONSUMER_GROUP", "override")
	assert.Equal(t, []string{"b:9092", "c:9092"}, GetBrokers(cfg))
	assert.Equal(t, "override", GetConsumerGroup(cfg))
}
