package cache

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"TripMate/storage/redis"
)

const (
	messageProcessedPrefix = "msg:processed"
	processedTTL           = 24 * time.Hour
)

// MessageDeduper 用 SETNX 标记消息，防止重复消费
type MessageDeduper struct {
	client redislib.Cmdable
}

func NewMessageDeduper(client redislib.Cmdable) *MessageDeduper {
	return &MessageDeduper{client: client}
}

func messageKey(messageID string) string {
	return redis.Key(messageProcessedPrefix, messageID)
}

// TryMarkProcessing 首次标记返回 true，已被标记返回 false
func (d *MessageDeduper) TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = processedTTL
	}
	ok, err := d.client.SetNX(ctx, messageKey(messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

// UnmarkProcessing 处理失败时清除标记，允许重投后再处理
func (d *MessageDeduper) UnmarkProcessing(ctx context.Context, messageID string) error {
	return d.client.Del(ctx, messageKey(messageID)).Err()
}

// MarkProcessed 处理成功后延长保留时间
func (d *MessageDeduper) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return d.client.Set(ctx, messageKey(messageID), "completed", ttl).Err()
}
