package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"TripMate/pkg/logger"
	"TripMate/pkg/snowflake"
	"TripMate/storage/mq"
)

type sendFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Publisher 通过 RabbitMQ topic exchange 发布行程变更事件
type Publisher struct {
	send sendFunc
}

func NewPublisher() *Publisher {
	return &Publisher{send: mq.PublishMessage}
}

// PublishItineraryEvent 发布行程变更事件
func (p *Publisher) PublishItineraryEvent(ctx context.Context, msg ItineraryEventMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.NextID()
		if err != nil {
			logger.Ctx(ctx).Error("Failed to generate message ID",
				zap.String("trip_id", msg.TripID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = fmt.Sprintf("itinerary_%d", id)
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = time.Now().Format(time.RFC3339)
	}

	routingKey := "itinerary." + msg.EventType

	if err := p.send(ctx, mq.ItineraryExchange, routingKey, msg.MessageID, msg); err != nil {
		logger.Ctx(ctx).Error("Failed to publish itinerary event",
			zap.String("message_id", msg.MessageID),
			zap.String("trip_id", msg.TripID),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	logger.Ctx(ctx).Info("Published itinerary event",
		zap.String("message_id", msg.MessageID),
		zap.String("trip_id", msg.TripID),
		zap.String("routing_key", routingKey),
	)
	return nil
}

// NopPublisher 未启用 RabbitMQ 时使用
type NopPublisher struct{}

func (NopPublisher) PublishItineraryEvent(context.Context, ItineraryEventMessage) error {
	return nil
}
