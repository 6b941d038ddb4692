package queue

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TripMate/pkg/snowflake"
	"TripMate/storage/mq"
)

func TestMain(m *testing.M) {
	if err := snowflake.Init(2, 1); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type sent struct {
	exchange   string
	routingKey string
	messageID  string
	body       interface{}
}

func capture(out *[]sent, err error) sendFunc {
	return func(_ context.Context, exchange, routingKey, messageID string, body interface{}) error {
		*out = append(*out, sent{exchange, routingKey, messageID, body})
		return err
	}
}

func TestPublishItineraryEvent_RoutingAndIDs(t *testing.T) {
	var got []sent
	p := &Publisher{send: capture(&got, nil)}

	err := p.PublishItineraryEvent(context.Background(), ItineraryEventMessage{
		EventType: EventItemsReordered,
		TripID:    "1001",
		ItemIDs:   []string{"1", "2"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, mq.ItineraryExchange, got[0].exchange)
	assert.Equal(t, "itinerary.items.reordered", got[0].routingKey)
	assert.True(t, strings.HasPrefix(got[0].messageID, "itinerary_"))

	msg, ok := got[0].body.(ItineraryEventMessage)
	require.True(t, ok)
	assert.Equal(t, got[0].messageID, msg.MessageID)
	assert.NotEmpty(t, msg.OccurredAt)
}

func TestPublishItineraryEvent_KeepsCallerMessageID(t *testing.T) {
	var got []sent
	p := &Publisher{send: capture(&got, nil)}

	require.NoError(t, p.PublishItineraryEvent(context.Background(), ItineraryEventMessage{
		MessageID:  "fixed",
		EventType:  EventItineraryGenerated,
		OccurredAt: "2024-06-01T00:00:00Z",
	}))
	assert.Equal(t, "fixed", got[0].messageID)
	assert.Equal(t, "itinerary.itinerary.generated", got[0].routingKey)
}

func TestPublishItineraryEvent_PropagatesError(t *testing.T) {
	var got []sent
	boom := errors.New("channel closed")
	p := &Publisher{send: capture(&got, boom)}

	err := p.PublishItineraryEvent(context.Background(), ItineraryEventMessage{EventType: EventItemDeleted})
	assert.ErrorIs(t, err, boom)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishItineraryEvent(context.Background(), ItineraryEventMessage{}))
}
