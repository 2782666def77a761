// Package pubsub is the fan-out bus between chat-service instances. Every
// instance publishes room broadcasts to the bus and delivers whatever it
// receives to its own local connections.
package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event represents a message published to the bus.
type Event struct {
	Type      string          `json:"type"`
	RoomID    int             `json:"room_id"`
	Origin    string          `json:"origin,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp. payload is
// marshalled unless it already is a json.RawMessage.
func NewEvent(eventType string, roomID int, payload interface{}) (*Event, error) {
	data, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, err
		}
	}
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber subscribes to events from the bus. The returned channel is
// closed when ctx is cancelled or the bus is closed.
type Subscriber interface {
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
}

// PubSub combines Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
