package config

import (
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/quiro-companion/internal/events"
)

// EventConfig holds configuration for event publishing
type EventConfig struct {
	Enabled       bool
	Publisher     string `validate:"oneof=kafka channel mock"`
	KafkaBrokers  string
	SessionsTopic string `validate:"required"`
}

func LoadEventConfig() EventConfig {
	return EventConfig{
		Enabled:       getBool("EVENTS_ENABLED", true),
		Publisher:     getEnv("EVENTS_PUBLISHER", "channel"),
		KafkaBrokers:  getEnv("KAFKA_BROKERS", "localhost:9092"),
		SessionsTopic: getEnv("SESSIONS_TOPIC", events.DefaultSessionsTopic),
	}
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// CreateEventPublisher builds the publisher sessions report to. The local
// channel publisher always receives events because the websocket hub
// follows it; external publishers are added on top.
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger, local *events.ChannelEventPublisher) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, session events stay in-process")
		return local, nil
	}

	switch c.Publisher {
	case "kafka":
		logger.Info("Creating Kafka event publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.SessionsTopic)

		kafkaPublisher, err := events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			TopicName:    c.SessionsTopic,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return events.NewMultiPublisher(local, kafkaPublisher), nil
	case "mock":
		logger.Info("Using mock event publisher")
		return events.NewMultiPublisher(local, events.NewMockEventPublisher(logger)), nil
	case "channel":
		return local, nil
	default:
		logger.Warn("Unknown event publisher type, falling back to in-process channel", "publisher", c.Publisher)
		return local, nil
	}
}
