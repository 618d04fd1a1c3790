package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	RoomID    string                 `json:"room_id"`
	Payload   map[string]interface{} `json:"payload"`
}

func NewEvent(eventType, source, roomID string, payload map[string]interface{}) Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		RoomID:    roomID,
		Payload:   payload,
	}
}

// Publisher is what room sessions report activity to.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Discard drops every event. Used when no brokers are configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, Event) error { return nil }
