package events

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DeliverFunc sends one queued e-mail.
type DeliverFunc func(ctx context.Context, evt NotificationRequestedEvent) error

// NotificationConsumer listens to notification events and delivers the e-mails.
type NotificationConsumer struct {
	consumer *Consumer
	deliver  DeliverFunc
	logger   *zap.Logger
}

// NewNotificationConsumer creates a new NotificationConsumer.
func NewNotificationConsumer(
	brokers []string,
	groupID string,
	topic string,
	deliver DeliverFunc,
	logger *zap.Logger,
) *NotificationConsumer {
	return &NotificationConsumer{
		consumer: NewConsumer(brokers, groupID, topic, logger),
		deliver:  deliver,
		logger:   logger,
	}
}

// Start begins consuming notification events. This blocks until the context is cancelled.
func (c *NotificationConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.HandleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *NotificationConsumer) Close() error {
	return c.consumer.Close()
}

// HandleMessage decodes and delivers one message.
func (c *NotificationConsumer) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	var cloudEvent CloudEvent
	if err := json.Unmarshal(msg.Value, &cloudEvent); err != nil {
		c.logger.Error("failed to parse cloud event from notification topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case NotificationRequested:
		return c.handleNotificationRequested(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled notification event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *NotificationConsumer) handleNotificationRequested(ctx context.Context, cloudEvent CloudEvent) error {
	var evt NotificationRequestedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse NotificationRequestedEvent data",
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	if err := c.deliver(ctx, evt); err != nil {
		c.logger.Error("failed to deliver notification",
			zap.Int64("reservation_id", evt.ReservationID),
			zap.String("recipient", evt.Recipient),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("notification delivered",
		zap.Int64("reservation_id", evt.ReservationID),
		zap.String("recipient", evt.Recipient),
	)
	return nil
}
