package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"TripMate/config"
	"TripMate/pkg/errors"
	"TripMate/pkg/logger"
	"TripMate/pkg/response"
	"TripMate/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	KeyPrefix   string
	// 已认证时按用户限流，否则按 IP
	ByUserID bool
	ByIP     bool
	// 超过限制后禁止访问的时间（秒）
	BlockDuration int
}

// GenerateRateLimitConfig 生成行程调用较重，单独限流
func GenerateRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:        config.Cfg.GenerateWindowSeconds,
		MaxRequests:   config.Cfg.GenerateMaxPerWindow,
		KeyPrefix:     "rate:generate",
		ByUserID:      true,
		ByIP:          true,
		BlockDuration: config.Cfg.GenerateBlockSeconds,
	}
}

// RateLimiter 基于 zset 的滑动窗口限流器
type RateLimiter struct {
	config RateLimitConfig
	client redislib.Cmdable
}

func NewRateLimiter(client redislib.Cmdable, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
		client: client,
	}
}

func (rl *RateLimiter) identifier(ctx context.Context, c *app.RequestContext) string {
	if rl.config.ByUserID {
		if userID, ok := GetUserID(ctx, c); ok {
			return "user:" + strconv.FormatInt(userID, 10)
		}
	}
	if rl.config.ByIP {
		return "ip:" + c.ClientIP()
	}
	return "global"
}

func (rl *RateLimiter) windowKey(ctx context.Context, c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, rl.identifier(ctx, c))
}

func (rl *RateLimiter) blockKey(ctx context.Context, c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, "block", rl.identifier(ctx, c))
}

// Allow 记录本次请求并返回窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, c *app.RequestContext) (bool, int, error) {
	key := rl.windowKey(ctx, c)
	now := time.Now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) Block(ctx context.Context, c *app.RequestContext) error {
	return rl.client.Set(ctx, rl.blockKey(ctx, c), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, c *app.RequestContext) (bool, error) {
	result, err := rl.client.Exists(ctx, rl.blockKey(ctx, c)).Result()
	return result > 0, err
}

// RateLimitMiddleware client 为 nil 时不限流
func RateLimitMiddleware(client redislib.Cmdable, cfg RateLimitConfig) app.HandlerFunc {
	if client == nil {
		return func(ctx context.Context, c *app.RequestContext) {
			c.Next(ctx)
		}
	}
	limiter := NewRateLimiter(client, cfg)

	return func(ctx context.Context, c *app.RequestContext) {
		blocked, err := limiter.IsBlocked(ctx, c)
		if err != nil {
			logger.Ctx(ctx).Error("Failed to check block status", zap.Error(err))
			c.Abort()
			response.Error(ctx, c, err)
			return
		}
		if blocked {
			c.Abort()
			response.Error(ctx, c, errors.TooManyRequests)
			return
		}

		allowed, count, err := limiter.Allow(ctx, c)
		if err != nil {
			logger.Ctx(ctx).Error("Failed to check rate limit", zap.Error(err))
			c.Abort()
			response.Error(ctx, c, err)
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(cfg.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, c); err != nil {
				logger.Ctx(ctx).Error("Failed to block caller", zap.Error(err))
			}
			c.Abort()
			response.Error(ctx, c, errors.TooManyRequests)
			return
		}

		c.Next(ctx)
	}
}

// GenerateRateLimitMiddleware Redis 未启用时放行
func GenerateRateLimitMiddleware() app.HandlerFunc {
	if !redis.Enabled() {
		return RateLimitMiddleware(nil, GenerateRateLimitConfig())
	}
	return RateLimitMiddleware(redis.Client(), GenerateRateLimitConfig())
}
