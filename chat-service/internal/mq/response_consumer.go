package mq

import (
	"context"
	"fmt"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/pkg/contracts"
	"github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
)

// MessageAppender persists chat messages.
type MessageAppender interface {
	AddMessage(ctx context.Context, msg *domain.ChatMessage) error
}

// RoomBroadcaster delivers a frame to every member of a room.
type RoomBroadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID int, message interface{}) error
}

// ResponseConsumer posts bot responses into their rooms.
type ResponseConsumer struct {
	messages    MessageAppender
	broadcaster RoomBroadcaster
	consumer    *queue.Consumer
}

func NewResponseConsumer(broker queue.Broker, queueName string, policy queue.RetryPolicy, messages MessageAppender, broadcaster RoomBroadcaster) *ResponseConsumer {
	if queueName == "" {
		queueName = contracts.StockResponseQueue
	}
	rc := &ResponseConsumer{
		messages:    messages,
		broadcaster: broadcaster,
	}
	rc.consumer = queue.NewConsumer(broker, queueName, rc.Handle, policy)
	return rc
}

// Run consumes responses until ctx is cancelled.
func (rc *ResponseConsumer) Run(ctx context.Context) error {
	return rc.consumer.Run(ctx)
}

// Handle persists the bot message and then broadcasts it, so a member joining
// after the broadcast always finds it in the recent history. Any error leaves
// the delivery unacknowledged.
func (rc *ResponseConsumer) Handle(ctx context.Context, body []byte) error {
	resp, err := contracts.DecodeStockResponse(body)
	if err != nil {
		return queue.Permanent(err)
	}

	roomID := resp.ChatRoomID
	if roomID == 0 {
		roomID = domain.DefaultRoomID
	}

	msg := domain.NewBotMessage(resp.Message, roomID)
	if err := rc.messages.AddMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist bot message: %w", err)
	}

	if err := rc.broadcaster.BroadcastToRoom(ctx, roomID, domain.NewReceiveMessage(*msg)); err != nil {
		return fmt.Errorf("failed to broadcast bot message: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().Int(log.FieldRoomID, roomID).Int64("message_id", msg.ID).Msg("stock response delivered")
	return nil
}
