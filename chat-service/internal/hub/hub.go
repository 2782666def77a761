package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/pubsub"
)

var ErrHubStopped = errors.New("hub stopped")

// Hub owns room membership for the connections of this instance and fans
// room broadcasts out to them. With a bus configured, broadcasts go through
// the bus so members connected to other instances receive them too.
type Hub struct {
	clients   map[string]*Client         // clientID -> client
	rooms     map[int]map[string]*Client // roomID -> clientID -> client
	broadcast chan *RoomMessage
	done      chan struct{}
	stopped   bool
	mu        sync.RWMutex

	bus    pubsub.PubSub
	origin string
}

// RoomMessage is an encoded frame addressed to every member of a room.
type RoomMessage struct {
	RoomID int
	// MessageID is the chat message carried by the frame, 0 if none.
	MessageID int64
	Message   []byte
}

// NewHub creates a hub. bus may be nil for a single-instance deployment.
func NewHub(bus pubsub.PubSub) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[int]map[string]*Client),
		broadcast: make(chan *RoomMessage, 256),
		done:      make(chan struct{}),
		bus:       bus,
		origin:    uuid.New().String(),
	}
}

// Start subscribes to the bus, if any, and runs the hub loop until ctx is
// cancelled. It returns once the hub is ready to broadcast.
func (h *Hub) Start(ctx context.Context) error {
	var events <-chan *pubsub.Event
	if h.bus != nil {
		var err error
		events, err = h.bus.SubscribePattern(ctx, pubsub.PatternRoom)
		if err != nil {
			return fmt.Errorf("failed to subscribe to room bus: %w", err)
		}
	}

	go h.run(ctx, events)
	return nil
}

// Done is closed once the hub loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) run(ctx context.Context, events <-chan *pubsub.Event) {
	l := log.L()
	defer func() {
		h.mu.Lock()
		h.stopped = true
		for _, client := range h.clients {
			h.removeLocked(client)
		}
		h.mu.Unlock()
		close(h.done)
		l.Info().Msg("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.broadcast:
			h.deliver(msg)

		case ev, ok := <-events:
			if !ok {
				l.Error().Msg("room bus subscription closed")
				events = nil
				continue
			}
			if ev.Type != pubsub.EventRoomBroadcast {
				continue
			}
			h.deliver(&RoomMessage{RoomID: ev.RoomID, MessageID: ev.MessageID, Message: ev.Payload})
		}
	}
}

// deliver writes msg to every local member of the room. Members whose send
// buffer is full are disconnected rather than stalling the room.
func (h *Hub) deliver(msg *RoomMessage) {
	h.mu.RLock()
	members := lo.Values(h.rooms[msg.RoomID])
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range members {
		if !client.deliver(msg.RoomID, msg.MessageID, msg.Message) {
			slow = append(slow, client)
		}
	}

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, client.ID).Int(log.FieldRoomID, msg.RoomID).Msg("dropping slow client")
		h.removeLocked(client)
	}
	h.mu.Unlock()
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for roomID, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.clients, client.ID)
	client.close()
}

// Register makes the client eligible for room membership.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrHubStopped
	}
	h.clients[client.ID] = client

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
	return nil
}

// Unregister drops the client and all its memberships and closes its send
// queue. It is safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(client)

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
}

// Join adds the client to a room. It reports whether the membership is new.
func (h *Hub) Join(client *Client, roomID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		// Never registered or already gone: nothing to deliver to.
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][client.ID] = client
	return client.Session.JoinRoom(roomID)
}

// Leave removes the client from a room. Leaving a room the client is not in
// is a no-op.
func (h *Hub) Leave(client *Client, roomID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	return client.Session.LeaveRoom(roomID)
}

// LeaveAll removes every membership of the client and returns the rooms left.
func (h *Hub) LeaveAll(client *Client) []int {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := client.Session.LeaveAll()
	for _, roomID := range rooms {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	return rooms
}

// BroadcastToRoom sends message to every member of the room, on this instance
// and, through the bus, on every other instance.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID int, message interface{}) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	messageID := messageIDOf(message)

	if h.bus != nil {
		ev, err := pubsub.NewEvent(pubsub.EventRoomBroadcast, roomID, json.RawMessage(data))
		if err != nil {
			return err
		}
		ev.Origin = h.origin
		ev.MessageID = messageID
		if err := h.bus.Publish(ctx, pubsub.RoomChannel(roomID), ev); err != nil {
			return fmt.Errorf("failed to publish room broadcast: %w", err)
		}
		return nil
	}

	select {
	case h.broadcast <- &RoomMessage{RoomID: roomID, MessageID: messageID, Message: data}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func messageIDOf(message interface{}) int64 {
	switch m := message.(type) {
	case *domain.ReceiveMessageEvent:
		return m.Message.ID
	case domain.ReceiveMessageEvent:
		return m.Message.ID
	}
	return 0
}

func (h *Hub) RoomClientCount(roomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
