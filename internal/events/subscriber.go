package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// SubscriberConfig holds configuration for the Kafka subscriber
type SubscriberConfig struct {
	KafkaBrokers  []string
	ConsumerGroup string
	Logger        *slog.Logger
}

// NewKafkaSubscriber reads session events published by KafkaEventPublisher.
func NewKafkaSubscriber(config SubscriberConfig) (message.Subscriber, error) {
	saramaConfig := kafka.DefaultSaramaSubscriberConfig()

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               config.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: saramaConfig,
		ConsumerGroup:         config.ConsumerGroup,
	}, watermill.NewSlogLogger(config.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}
	return subscriber, nil
}

// Consume decodes every message and passes it to handle until ctx is done or
// the channel closes. Messages the handler fails on are nacked for
// redelivery; undecodable ones are acked and dropped.
func Consume(ctx context.Context, messages <-chan *message.Message, logger *slog.Logger, handle func(*SessionEvent) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := DecodeSessionEvent(msg)
			if err != nil {
				logger.Warn("Dropping undecodable session event", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			if err := handle(event); err != nil {
				logger.Error("Session event handler failed",
					"event_id", event.ID,
					"event_type", event.Type,
					"error", err)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}
