package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultRoomID is the room used when a client does not name one.
	DefaultRoomID = 1

	// BotUsername authors every command result.
	BotUsername = "StockBot"

	MaxContentLength  = 1000
	MaxUsernameLength = 100
)

var validate = validator.New()

// ChatMessage is a single chat line. It is immutable once persisted.
type ChatMessage struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content" validate:"required,max=1000"`
	Username   string    `json:"username" validate:"required,max=100"`
	Timestamp  time.Time `json:"timestamp"`
	ChatRoomID int       `json:"chatRoomId"`
	IsBot      bool      `json:"isBot"`
}

// NewChatMessage creates a user message stamped with the current UTC time.
func NewChatMessage(content, username string, roomID int) *ChatMessage {
	return &ChatMessage{
		Content:    content,
		Username:   username,
		Timestamp:  time.Now().UTC(),
		ChatRoomID: roomID,
	}
}

// NewBotMessage creates a message authored by the stock bot.
func NewBotMessage(content string, roomID int) *ChatMessage {
	msg := NewChatMessage(content, BotUsername, roomID)
	msg.IsBot = true
	return msg
}

// Validate checks the field limits of the message.
func (m *ChatMessage) Validate() error {
	return validate.Struct(m)
}

// MessageModel is the GORM model for the chat_messages table.
type MessageModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Content    string    `gorm:"type:varchar(1000);not null"`
	Username   string    `gorm:"type:varchar(100);not null"`
	Timestamp  time.Time `gorm:"index:idx_chat_messages_room_ts,priority:2;not null"`
	ChatRoomID int       `gorm:"index:idx_chat_messages_room_ts,priority:1;not null;default:1"`
	IsBot      bool      `gorm:"not null;default:false"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts MessageModel to a ChatMessage.
func (m *MessageModel) ToDomain() ChatMessage {
	return ChatMessage{
		ID:         m.ID,
		Content:    m.Content,
		Username:   m.Username,
		Timestamp:  m.Timestamp.UTC(),
		ChatRoomID: m.ChatRoomID,
		IsBot:      m.IsBot,
	}
}

// MessageToModel converts a ChatMessage to MessageModel.
func MessageToModel(m *ChatMessage) *MessageModel {
	return &MessageModel{
		ID:         m.ID,
		Content:    m.Content,
		Username:   m.Username,
		Timestamp:  m.Timestamp.UTC(),
		ChatRoomID: m.ChatRoomID,
		IsBot:      m.IsBot,
	}
}
