package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"TripMate/pkg/logger"
	"TripMate/pkg/snowflake"
	"TripMate/storage/mq"
)

const (
	CacheSyncQueue      = "itinerary.cache_sync"
	cacheSyncBindingKey = "itinerary.#"
	processedTTL        = 48 * time.Hour
)

// Deduper 消息幂等标记
type Deduper interface {
	TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	UnmarkProcessing(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error
}

// CacheInvalidator 行程视图缓存失效
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tripID int64) error
}

// CacheSyncHandler 收到任意行程变更事件后失效对应行程的缓存。
// 写入实例在提交后已经失效过一次，这里兜底其它实例在失效失败时留下的旧视图。
type CacheSyncHandler struct {
	cache   CacheInvalidator
	deduper Deduper
}

func NewCacheSyncHandler(cache CacheInvalidator, deduper Deduper) *CacheSyncHandler {
	return &CacheSyncHandler{cache: cache, deduper: deduper}
}

func (h *CacheSyncHandler) Handle(ctx context.Context, body []byte) error {
	var msg ItineraryEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: malformed itinerary event: %v", mq.ErrSkipMessage, err)
	}

	tripID, err := snowflake.ParseID(msg.TripID)
	if err != nil {
		return fmt.Errorf("%w: itinerary event without valid trip id %q", mq.ErrSkipMessage, msg.TripID)
	}

	if msg.MessageID != "" && h.deduper != nil {
		first, err := h.deduper.TryMarkProcessing(ctx, msg.MessageID, 0)
		if err != nil {
			// 去重失败不阻塞，重复失效无副作用
			logger.Ctx(ctx).Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !first {
			return fmt.Errorf("%w: message %s already processed", mq.ErrSkipMessage, msg.MessageID)
		}
	}

	if err := h.cache.Invalidate(ctx, tripID); err != nil {
		if msg.MessageID != "" && h.deduper != nil {
			_ = h.deduper.UnmarkProcessing(ctx, msg.MessageID)
		}
		return fmt.Errorf("failed to invalidate itinerary cache: %w", err)
	}

	logger.Ctx(ctx).Info("Itinerary cache invalidated from event",
		zap.String("message_id", msg.MessageID),
		zap.String("event_type", msg.EventType),
		zap.Int64("trip_id", tripID),
	)

	if msg.MessageID != "" && h.deduper != nil {
		if err := h.deduper.MarkProcessed(ctx, msg.MessageID, processedTTL); err != nil {
			logger.Ctx(ctx).Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// StartCacheSyncConsumer 阻塞直到 ctx 结束
func StartCacheSyncConsumer(ctx context.Context, h *CacheSyncHandler) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         CacheSyncQueue,
		BindingKey:    cacheSyncBindingKey,
		ConsumerTag:   "itinerary_cache_sync",
		PrefetchCount: 20,
		Handler:       h.Handle,
	})
}
