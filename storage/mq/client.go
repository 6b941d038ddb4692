package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/pkg/logger"
)

// ItineraryExchange 行程变更事件的 topic exchange，routing key 形如 itinerary.item.created
const ItineraryExchange = "itinerary.events"

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		url := config.Cfg.GetRabbitMQURL()

		conn, connErr = amqp.Dial(url)
		if connErr != nil {
			connErr = fmt.Errorf("failed to connect to RabbitMQ: %w", connErr)
			return
		}

		connErr = declareTopology()
	})

	return connErr
}

// declareTopology 声明本服务发布用到的 exchange，消费方自行绑定队列
func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		ItineraryExchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", ItineraryExchange, err)
	}

	logger.Logger.Info("RabbitMQ topology declared",
		zap.String("component", "rabbitmq"),
		zap.String("exchange", ItineraryExchange),
	)
	return nil
}

// Enabled 连接是否已建立
func Enabled() bool {
	return conn != nil && !conn.IsClosed()
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		_ = publisherCh.Close()
	}
	publisherCh = nil
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
