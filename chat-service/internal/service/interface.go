package service

import (
	"context"
	"errors"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/hub"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrInvalidRoom  = errors.New("room id must be positive")
)

// ChatService implements the realtime hub operations for one connection.
// Errors are returned to the calling connection only.
type ChatService interface {
	HandleConnect(ctx context.Context, client *hub.Client) error
	HandleDisconnect(ctx context.Context, client *hub.Client, cause error)
	HandleJoinRoom(ctx context.Context, client *hub.Client, roomID int) error
	HandleLeaveRoom(ctx context.Context, client *hub.Client, roomID int) error
	HandleSendMessage(ctx context.Context, client *hub.Client, text string, roomID int) error
}

// MessageService is the message store as seen by the hub and the response
// consumer: appends invalidate the recent-messages cache.
type MessageService interface {
	AddMessage(ctx context.Context, msg *domain.ChatMessage) error
	GetRecentMessages(ctx context.Context, roomID, limit int) ([]domain.ChatMessage, error)
}
