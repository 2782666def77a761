package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/audit"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/command"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/hub"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/mq"
	"github.com/Lucca-Muniz/Chat/pkg/log"
)

type chatService struct {
	hub         *hub.Hub
	messages    MessageService
	publisher   mq.CommandPublisher
	recentLimit int
}

func NewChatService(h *hub.Hub, messages MessageService, publisher mq.CommandPublisher, recentLimit int) ChatService {
	if recentLimit <= 0 {
		recentLimit = 50
	}
	return &chatService{
		hub:         h,
		messages:    messages,
		publisher:   publisher,
		recentLimit: recentLimit,
	}
}

func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client) error {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldConnectionID, c.ID).
		Str(log.FieldUsername, c.Session.Username).
		Bool("authenticated", c.Session.Authenticated).
		Msg("client connected")
	audit.Log(ctx, audit.ActionConnect, c.Session.Username, 0, "connection opened")

	return c.SendMessage(&domain.ConnectedMessage{
		Type:         domain.MsgTypeConnected,
		ConnectionID: c.ID,
		Username:     c.Session.Username,
	})
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client, cause error) {
	rooms := s.hub.LeaveAll(c)

	l := log.Ctx(ctx)
	if cause != nil {
		l.Error().Err(cause).Str(log.FieldConnectionID, c.ID).Ints("rooms", rooms).Msg("client disconnected abnormally")
	} else {
		l.Info().Str(log.FieldConnectionID, c.ID).Ints("rooms", rooms).Msg("client disconnected")
	}
	audit.Log(ctx, audit.ActionDisconnect, c.Session.Username, 0, "connection closed")
}

func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, roomID int) error {
	if roomID <= 0 {
		return ErrInvalidRoom
	}

	// Broadcasts arriving before the history frame wait behind it.
	c.HoldRoom(roomID)
	s.hub.Join(c, roomID)
	audit.Log(ctx, audit.ActionJoinRoom, c.Session.Username, roomID, "joined room")

	msgs, err := s.messages.GetRecentMessages(ctx, roomID, s.recentLimit)
	if err != nil {
		c.ReleaseRoom(roomID)
		return fmt.Errorf("failed to load recent messages: %w", err)
	}

	return c.SendHistory(roomID, msgs)
}

func (s *chatService) HandleLeaveRoom(ctx context.Context, c *hub.Client, roomID int) error {
	if s.hub.Leave(c, roomID) {
		audit.Log(ctx, audit.ActionLeaveRoom, c.Session.Username, roomID, "left room")
	}
	return nil
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, text string, roomID int) error {
	if roomID <= 0 {
		return ErrInvalidRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	username := c.Session.Username

	if code, ok := command.ParseStock(text); ok {
		if err := s.publisher.Publish(ctx, code, username, roomID); err != nil {
			return err
		}
		audit.LogWithDetail(ctx, audit.ActionStockCommand, username, roomID, code, "stock command queued")
		return nil
	}

	msg := domain.NewChatMessage(text, username, roomID)
	if err := s.messages.AddMessage(ctx, msg); err != nil {
		return err
	}

	if err := s.hub.BroadcastToRoom(ctx, roomID, domain.NewReceiveMessage(*msg)); err != nil {
		return fmt.Errorf("failed to broadcast message: %w", err)
	}

	audit.Log(ctx, audit.ActionSendMessage, username, roomID, "message sent")
	return nil
}
