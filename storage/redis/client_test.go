package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"TripMate/config"
)

func TestKey(t *testing.T) {
	original := config.Cfg.RedisPrefix
	t.Cleanup(func() { config.Cfg.RedisPrefix = original })

	config.Cfg.RedisPrefix = "tm"
	assert.Equal(t, "tm:itinerary:42", Key("itinerary", "42"))
	assert.Equal(t, "tm:rate_limit:user:7", Key("rate_limit", "", "user:7"))

	config.Cfg.RedisPrefix = ""
	assert.Equal(t, "tm:itinerary", Key("itinerary"))
}

func TestClientPanicsBeforeInit(t *testing.T) {
	if client != nil {
		t.Skip("client already initialized")
	}
	assert.Panics(t, func() { Client() })
	assert.False(t, Enabled())
}
