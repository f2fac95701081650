package events

import (
	"context"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/events"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/kafka"
	"go.uber.org/zap"
)

// ClaimIngester records claim events. *application.ClaimService satisfies it.
type ClaimIngester interface {
	IngestClaimEvent(ctx context.Context, eventType string, event events.ClaimEvent) (bool, error)
}

// ClaimEventConsumer listens to claim events and feeds them to the ledger.
type ClaimEventConsumer struct {
	consumer *kafka.Consumer
	claims   ClaimIngester
	logger   *zap.Logger
}

// NewClaimEventConsumer creates a new consumer for claim events.
func NewClaimEventConsumer(
	brokers []string,
	groupID string,
	claims ClaimIngester,
	logger *zap.Logger,
) *ClaimEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, events.TopicClaimEvents, logger)
	return &ClaimEventConsumer{
		consumer: consumer,
		claims:   claims,
		logger:   logger,
	}
}

// Start begins consuming claim events. It blocks until the context is cancelled.
func (c *ClaimEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage routes incoming Kafka messages to the claim ingester.
// Malformed events are logged and acknowledged so they do not block the partition.
func (c *ClaimEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from claim topic",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
		return nil
	}

	if !application.IsClaimEvent(cloudEvent.Type) {
		c.logger.Debug("ignoring unhandled claim event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}

	var event events.ClaimEvent
	if err := cloudEvent.ParseData(&event); err != nil {
		c.logger.Error("failed to parse ClaimEvent data",
			zap.String("id", cloudEvent.ID),
			zap.Error(err),
		)
		return nil
	}

	if _, err := c.claims.IngestClaimEvent(ctx, cloudEvent.Type, event); err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			c.logger.Warn("rejected claim event",
				zap.String("id", cloudEvent.ID),
				zap.String("type", cloudEvent.Type),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	return nil
}

// Close closes the underlying Kafka consumer.
func (c *ClaimEventConsumer) Close() error {
	return c.consumer.Close()
}
