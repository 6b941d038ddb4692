package cache

import (
	"context"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient 指向一个没有监听的端口，每个命令都会失败
func unreachableClient(t *testing.T) *redislib.Client {
	t.Helper()
	client := redislib.NewClient(&redislib.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestItineraryKeys(t *testing.T) {
	assert.Equal(t, "tm:itinerary:42:v0", itineraryKey(42, 0))
	assert.Equal(t, "tm:itinerary:42:v7", itineraryKey(42, 7))
	assert.Equal(t, "tm:itinerary:ver:42", versionKey(42))
}

func TestItineraryCache_BreakerOpensWhenRedisIsDown(t *testing.T) {
	c := NewItineraryCache(unreachableClient(t), time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, hit, err := c.Get(ctx, 1)
		require.Error(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, StateOpen, c.breaker.GetState())

	err := c.Invalidate(ctx, 1)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestNopItineraryCache(t *testing.T) {
	var c NopItineraryCache
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 1, 0, nil))
	view, version, hit, err := c.Get(ctx, 1)
	assert.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, hit)
	assert.Nil(t, view)
	assert.NoError(t, c.Invalidate(ctx, 1))
}
