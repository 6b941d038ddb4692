package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"TripMate/internal/model/dto"
	"TripMate/storage/redis"
)

const (
	itineraryPrefix        = "itinerary"
	itineraryVersionPrefix = "itinerary:ver"

	// 版本号只需比视图活得久
	versionTTL = 7 * 24 * time.Hour
)

// ItineraryCache 按行程缓存完整的行程视图。
// 视图键带版本号，写操作提交后递增版本，旧版本的视图不会再被读到。
type ItineraryCache struct {
	client  redislib.Cmdable
	ttl     time.Duration
	breaker *CircuitBreaker
}

// NewItineraryCache 连续失败 5 次后熔断，30 秒后尝试恢复
func NewItineraryCache(client redislib.Cmdable, ttl time.Duration) *ItineraryCache {
	return &ItineraryCache{
		client:  client,
		ttl:     ttl,
		breaker: NewCircuitBreaker("itinerary_cache", 5, 30*time.Second),
	}
}

func itineraryKey(tripID, version int64) string {
	return redis.Key(itineraryPrefix, strconv.FormatInt(tripID, 10), "v"+strconv.FormatInt(version, 10))
}

func versionKey(tripID int64) string {
	return redis.Key(itineraryVersionPrefix, strconv.FormatInt(tripID, 10))
}

// Get 返回当前版本号；未命中时调用方应带着这个版本号回填
func (c *ItineraryCache) Get(ctx context.Context, tripID int64) (*dto.ItineraryView, int64, bool, error) {
	var (
		data    []byte
		version int64
	)
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		version, err = c.client.Get(ctx, versionKey(tripID)).Int64()
		switch {
		case errors.Is(err, redislib.Nil):
			version = 0
		case err != nil:
			return err
		}

		data, err = c.client.Get(ctx, itineraryKey(tripID, version)).Bytes()
		if errors.Is(err, redislib.Nil) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get itinerary cache: %w", err)
	}
	if data == nil {
		return nil, version, false, nil
	}

	var view dto.ItineraryView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, version, false, fmt.Errorf("failed to unmarshal itinerary cache: %w", err)
	}
	return &view, version, true, nil
}

// Set 写入 version 对应的视图。读取期间有写操作提交时版本已前进，这份视图只会落在没人读的旧键上
func (c *ItineraryCache) Set(ctx context.Context, tripID, version int64, view *dto.ItineraryView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal itinerary cache: %w", err)
	}

	return c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, itineraryKey(tripID, version), data, c.ttl).Err()
	})
}

// Invalidate 递增版本号，当前视图随之作废
func (c *ItineraryCache) Invalidate(ctx context.Context, tripID int64) error {
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		_, err := c.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
			pipe.Incr(ctx, versionKey(tripID))
			pipe.Expire(ctx, versionKey(tripID), versionTTL)
			return nil
		})
		return err
	})
}

// NopItineraryCache 未启用 Redis 时使用，永远未命中
type NopItineraryCache struct{}

func (NopItineraryCache) Get(context.Context, int64) (*dto.ItineraryView, int64, bool, error) {
	return nil, 0, false, nil
}

func (NopItineraryCache) Set(context.Context, int64, int64, *dto.ItineraryView) error {
	return nil
}

func (NopItineraryCache) Invalidate(context.Context, int64) error {
	return nil
}
