package repository

import (
	"context"
	"errors"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
)

// MessageRepository is the durable chat message store.
type MessageRepository interface {
	// Append validates and stores msg, assigning its ID.
	Append(ctx context.Context, msg *domain.ChatMessage) error
	// Recent returns at most count messages of a room, oldest first.
	Recent(ctx context.Context, roomID, count int) ([]domain.ChatMessage, error)
}
