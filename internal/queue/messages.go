package queue

// 行程变更事件类型，同时作为 routing key 的后缀
const (
	EventItemCreated        = "item.created"
	EventItemUpdated        = "item.updated"
	EventItemDeleted        = "item.deleted"
	EventItemsReordered     = "items.reordered"
	EventItineraryGenerated = "itinerary.generated"
)

// ItineraryEventMessage 行程变更事件，只在事务提交后发布
type ItineraryEventMessage struct {
	MessageID  string   `json:"message_id"` // 消费方据此做幂等
	EventType  string   `json:"event_type"`
	TripID     string   `json:"trip_id"`
	ActorID    string   `json:"actor_id"`
	ItemIDs    []string `json:"item_ids,omitempty"`
	LogID      string   `json:"log_id,omitempty"`
	OccurredAt string   `json:"occurred_at"`
}
