package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/pkg/logger"
	mqotel "TripMate/pkg/mq"
)

// ErrSkipMessage 处理方不再需要这条消息，直接 ack
var ErrSkipMessage = errors.New("skip message")

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue string
	// BindingKey 绑定到行程事件 exchange 的 routing key 模式
	BindingKey    string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 声明并绑定队列后阻塞消费，ctx 结束或通道关闭时返回
func Consume(ctx context.Context, opts ConsumeOptions) error {
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is not available")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", opts.Queue, err)
	}
	if err := ch.QueueBind(opts.Queue, opts.BindingKey, ItineraryExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", opts.Queue, err)
	}

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("binding_key", opts.BindingKey),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", opts.Queue)
			}
			deliver(ctx, opts, msg)
		}
	}
}

func deliver(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	start := time.Now()
	msgCtx, span := mqotel.StartConsumeSpan(ctx, config.Cfg.ServiceName, opts.Queue, msg.Headers)
	defer span.End()

	err := opts.Handler(msgCtx, msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
		mqotel.RecordConsume(msgCtx, opts.Queue, "success", time.Since(start))
	case errors.Is(err, ErrSkipMessage):
		logger.Ctx(msgCtx).Info("Message skipped",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		_ = msg.Ack(false)
		mqotel.RecordConsume(msgCtx, opts.Queue, "skipped", time.Since(start))
	default:
		logger.Ctx(msgCtx).Error("Failed to process message",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.Bool("redelivered", msg.Redelivered),
			zap.Error(err),
		)
		span.SetStatus(codes.Error, err.Error())
		// 已经重投过一次的消息不再回队列，避免毒消息循环
		_ = msg.Nack(false, !msg.Redelivered)
		mqotel.RecordConsume(msgCtx, opts.Queue, "error", time.Since(start))
	}
}
