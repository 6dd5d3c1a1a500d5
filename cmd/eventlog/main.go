// Command eventlog tails session events from Kafka and writes them to the log.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/SAP-F-2025/quiro-companion/internal/config"
	"github.com/SAP-F-2025/quiro-companion/internal/events"
	"github.com/SAP-F-2025/quiro-companion/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.NewDefaultLogger().LogError(err, "Invalid configuration")
		os.Exit(1)
	}
	logger := utils.NewEnvironmentLogger(cfg.Environment, "quiro-eventlog")
	slogger := utils.ToSlogLogger(logger)

	subscriber, err := events.NewKafkaSubscriber(events.SubscriberConfig{
		KafkaBrokers:  cfg.Events.GetKafkaBrokers(),
		ConsumerGroup: "quiro-eventlog",
		Logger:        slogger,
	})
	if err != nil {
		logger.LogError(err, "Failed to connect to Kafka")
		os.Exit(1)
	}
	defer subscriber.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages, err := subscriber.Subscribe(ctx, cfg.Events.SessionsTopic)
	if err != nil {
		logger.LogError(err, "Failed to subscribe", "topic", cfg.Events.SessionsTopic)
		os.Exit(1)
	}

	logger.Info("Tailing session events", "topic", cfg.Events.SessionsTopic)
	events.Consume(ctx, messages, slogger, func(event *events.SessionEvent) error {
		args := []any{
			"event_type", event.Type,
			"session_id", event.SessionID,
			"timestamp", event.Timestamp,
		}
		if event.Data != nil {
			args = append(args, "state", event.Data.State, "error", event.Data.Error)
		}
		logger.Info("Session event", args...)
		return nil
	})
}
