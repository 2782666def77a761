package domain

import "github.com/Lucca-Muniz/Chat/pkg/response"

// WebSocket message types from client.
const (
	MsgTypeJoinRoom    = "join_chat_room"
	MsgTypeSendMessage = "send_message"
	MsgTypeLeaveRoom   = "leave_chat_room"
	MsgTypePing        = "ping"
)

// WebSocket message types to client. The event names are shared with the
// existing browser client.
const (
	MsgTypeConnected          = "connected"
	MsgTypeReceiveMessage     = "ReceiveMessage"
	MsgTypeLoadRecentMessages = "LoadRecentMessages"
	MsgTypeError              = "error"
	MsgTypePong               = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = response.CodeBadRequest
	ErrCodeUnauthorized  = response.CodeUnauthorized
	ErrCodeRateLimited   = response.CodeRateLimited
	ErrCodeInternalError = response.CodeInternalError
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinRoomMessage struct {
	Type   string `json:"type"`
	RoomID int    `json:"room_id"`
}

// SendMessageRequest carries a chat line or a command. RoomID is optional.
type SendMessageRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	RoomID  *int   `json:"room_id,omitempty"`
}

// Room returns the target room, falling back to DefaultRoomID.
func (m *SendMessageRequest) Room() int {
	if m.RoomID == nil {
		return DefaultRoomID
	}
	return *m.RoomID
}

type LeaveRoomMessage struct {
	Type   string `json:"type"`
	RoomID int    `json:"room_id"`
}

// Server -> Client messages

type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
}

type ReceiveMessageEvent struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

func NewReceiveMessage(msg ChatMessage) *ReceiveMessageEvent {
	return &ReceiveMessageEvent{
		Type:    MsgTypeReceiveMessage,
		Message: msg,
	}
}

type LoadRecentMessagesEvent struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

func NewLoadRecentMessages(msgs []ChatMessage) *LoadRecentMessagesEvent {
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return &LoadRecentMessagesEvent{
		Type:     MsgTypeLoadRecentMessages,
		Messages: msgs,
	}
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
